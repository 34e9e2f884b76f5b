// Package vector provides embedding encoding, cosine similarity, and
// brute-force ranking over stored vectors.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes a vector as a little-endian IEEE 754 float32 sequence,
// the layout used for embedding BLOB columns.
func Encode(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// Decode deserializes a vector written by Encode. Returns an error if the
// blob length is not a multiple of 4.
func Decode(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
