// Package chunker splits document text into offset-tracked chunks prior to
// embedding.
package chunker

import (
	"strings"

	"github.com/google/uuid"
	"github.com/wes/duckbake/internal/models"
)

// Chunker produces deterministic chunk boundaries: the same content and file
// type always yield the same chunks, so re-uploading a document re-chunks it
// identically. Only the chunk ids are fresh per call.
type Chunker struct {
	maxChunkSize int
	minChunkSize int
}

// New creates a chunker with the given size thresholds in bytes.
func New(maxChunkSize, minChunkSize int) *Chunker {
	return &Chunker{
		maxChunkSize: maxChunkSize,
		minChunkSize: minChunkSize,
	}
}

// Chunk splits content into ordered chunks. Markdown is chunked by heading
// sections, everything else by blank-line paragraphs. Offsets are cumulative
// positions into content including the stripped separators, so the last
// chunk's EndOffset equals len(content).
func (c *Chunker) Chunk(docID, content, fileType string) []models.DocumentChunk {
	switch strings.ToLower(fileType) {
	case "md", "markdown":
		return c.chunkSections(docID, content)
	default:
		return c.chunkParagraphs(docID, content)
	}
}

// chunkParagraphs accumulates blank-line separated paragraphs into a buffer
// and flushes whenever appending the next paragraph would exceed the maximum
// size. A short trailing buffer is merged into the previous chunk instead of
// standing alone, unless it is the only chunk.
func (c *Chunker) chunkParagraphs(docID, content string) []models.DocumentChunk {
	parts := strings.Split(content, "\n\n")

	var (
		chunks     []models.DocumentChunk
		buf        string
		index      int
		offset     int
		chunkStart int
	)
	for i, part := range parts {
		sep := 2
		if i == len(parts)-1 {
			sep = 0
		}
		para := strings.TrimSpace(part)
		if para == "" {
			offset += len(part) + sep
			continue
		}

		if buf != "" && len(buf)+len(para)+2 > c.maxChunkSize {
			chunks = append(chunks, newChunk(docID, index, models.ChunkParagraph, buf, chunkStart, offset))
			index++
			chunkStart = offset
			buf = ""
		}

		if buf != "" {
			buf += "\n\n"
		}
		buf += para
		offset += len(part) + sep
	}

	switch {
	case buf == "":
	case len(buf) >= c.minChunkSize || len(chunks) == 0:
		chunks = append(chunks, newChunk(docID, index, models.ChunkParagraph, buf, chunkStart, offset))
	default:
		last := &chunks[len(chunks)-1]
		last.Content += "\n\n" + buf
		last.EndOffset = offset
	}
	return chunks
}

// chunkSections walks lines and starts a new chunk at every heading. A
// non-heading line that would push the buffer past the maximum size also
// forces a flush. Emitted content is trimmed of surrounding whitespace.
func (c *Chunker) chunkSections(docID, content string) []models.DocumentChunk {
	lines := strings.Split(content, "\n")

	var (
		chunks     []models.DocumentChunk
		buf        string
		index      int
		offset     int
		chunkStart int
	)
	flush := func() {
		chunks = append(chunks, newChunk(docID, index, models.ChunkSection, strings.TrimSpace(buf), chunkStart, offset))
		index++
		chunkStart = offset
		buf = ""
	}
	for i, line := range lines {
		sep := 1
		if i == len(lines)-1 {
			sep = 0
		}
		heading := strings.HasPrefix(line, "#")

		if heading && strings.TrimSpace(buf) != "" {
			flush()
		}
		if !heading && buf != "" && len(buf)+len(line)+1 > c.maxChunkSize {
			flush()
		}

		if buf != "" {
			buf += "\n"
		}
		buf += line
		offset += len(line) + sep
	}
	if strings.TrimSpace(buf) != "" {
		flush()
	}

	if len(chunks) == 0 && strings.TrimSpace(content) != "" {
		chunks = append(chunks, newChunk(docID, 0, models.ChunkSection, strings.TrimSpace(content), 0, len(content)))
	}
	return chunks
}

func newChunk(docID string, index int, kind models.ChunkType, content string, start, end int) models.DocumentChunk {
	return models.DocumentChunk{
		ID:          uuid.New().String(),
		DocumentID:  docID,
		ChunkIndex:  index,
		Content:     content,
		StartOffset: start,
		EndOffset:   end,
		ChunkType:   kind,
	}
}
