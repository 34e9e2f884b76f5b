package models

import "time"

// ChunkType identifies the strategy that produced a chunk.
type ChunkType string

const (
	// ChunkParagraph marks chunks built from blank-line separated paragraphs.
	ChunkParagraph ChunkType = "paragraph"
	// ChunkSection marks chunks built from heading-delimited sections.
	ChunkSection ChunkType = "section"
)

// Document represents an uploaded document stored in a project database.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Content     string    `json:"content,omitempty"`
	Vectorized  bool      `json:"vectorized"`
	ChunkCount  int       `json:"chunk_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentChunk is a contiguous, offset-tracked slice of a document's text.
// StartOffset and EndOffset are a half-open [start, end) character range into
// the original content. Embedding is nil until the chunk is vectorized.
type DocumentChunk struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	ChunkIndex     int       `json:"chunk_index"`
	Content        string    `json:"content"`
	StartOffset    int       `json:"start_offset"`
	EndOffset      int       `json:"end_offset"`
	ChunkType      ChunkType `json:"chunk_type"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
