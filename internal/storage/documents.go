package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/vector"
)

// ChunkEmbedding pairs a chunk id with its computed vector.
type ChunkEmbedding struct {
	ChunkID string
	Vector  []float32
}

// InsertDocument stores a document row.
func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+documentsTable+`
		 (id, filename, content_type, size_bytes, content, vectorized, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		doc.ID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.Content, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id, including its content.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc models.Document
	var vectorized int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, size_bytes, content, vectorized, created_at
		 FROM `+documentsTable+` WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.Content, &vectorized, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	doc.Vectorized = vectorized != 0
	return &doc, nil
}

// ListDocuments returns all documents without content, newest first, with
// chunk counts attached.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.filename, d.content_type, d.size_bytes, d.vectorized, d.created_at,
		        (SELECT COUNT(*) FROM `+chunksTable+` c WHERE c.document_id = d.id)
		 FROM `+documentsTable+` d ORDER BY d.created_at DESC, d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var vectorized int
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes,
			&vectorized, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, err
		}
		doc.Vectorized = vectorized != 0
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks. Chunks are deleted
// before the parent row; there is no declared constraint to fall back on, so
// this ordering is required.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+chunksTable+` WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM `+documentsTable+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return tx.Commit()
}

// InsertChunks stores a document's chunks in one transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+chunksTable+`
		 (id, document_id, chunk_index, content, start_offset, end_offset, chunk_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content,
			c.StartOffset, c.EndOffset, string(c.ChunkType), now,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// GetChunks returns all chunks of a document in index order, without
// embeddings.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	return s.chunkRange(ctx, documentID, -1, 0)
}

// ChunkPage returns one page of a document's chunks in index order.
func (s *Store) ChunkPage(ctx context.Context, documentID string, limit, offset int) ([]models.DocumentChunk, error) {
	return s.chunkRange(ctx, documentID, limit, offset)
}

func (s *Store) chunkRange(ctx context.Context, documentID string, limit, offset int) ([]models.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, document_id, chunk_index, content, start_offset, end_offset,
	                 chunk_type, embedding_model, created_at
	          FROM ` + chunksTable + ` WHERE document_id = ? ORDER BY chunk_index`
	args := []any{documentID}
	if limit >= 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		var chunkType string
		var model sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.StartOffset, &c.EndOffset, &chunkType, &model, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ChunkType = models.ChunkType(chunkType)
		c.EmbeddingModel = model.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of chunks a document has.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+chunksTable+` WHERE document_id = ?`, documentID,
	).Scan(&count)
	return count, err
}

// CountEmbeddedChunks returns how many of a document's chunks carry an
// embedding.
func (s *Store) CountEmbeddedChunks(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+chunksTable+`
		 WHERE document_id = ? AND embedding IS NOT NULL`, documentID,
	).Scan(&count)
	return count, err
}

// ClearChunkEmbeddings drops the embeddings of a document's chunks and
// unmarks the document, so a fresh vectorization run supersedes prior
// results.
func (s *Store) ClearChunkEmbeddings(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE `+chunksTable+`
		 SET embedding = NULL, embedding_model = NULL WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+documentsTable+` SET vectorized = 0 WHERE id = ?`, documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateChunkEmbeddings writes one batch of chunk vectors in a single
// transaction.
func (s *Store) UpdateChunkEmbeddings(ctx context.Context, entries []ChunkEmbedding, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE `+chunksTable+` SET embedding = ?, embedding_model = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, vector.Encode(e.Vector), model, e.ChunkID); err != nil {
			return fmt.Errorf("failed to update chunk %s: %w", e.ChunkID, err)
		}
	}
	return tx.Commit()
}

// MarkDocumentVectorized flags a document as fully vectorized.
func (s *Store) MarkDocumentVectorized(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+documentsTable+` SET vectorized = 1 WHERE id = ?`, documentID)
	return err
}

// SearchChunks ranks every embedded chunk in the project against queryVec by
// cosine similarity and returns the top k joined to their parent documents.
// Chunks are scanned in id order for stable tie handling.
func (s *Store) SearchChunks(ctx context.Context, queryVec []float32, k int) ([]models.DocumentSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding, d.filename
		 FROM `+chunksTable+` c
		 JOIN `+documentsTable+` d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk embeddings: %w", err)
	}
	defer rows.Close()

	var (
		hits    []models.DocumentSearchResult
		vectors [][]float32
	)
	for rows.Next() {
		var hit models.DocumentSearchResult
		var blob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.ChunkIndex,
			&hit.Content, &blob, &hit.Filename); err != nil {
			return nil, err
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for chunk %s: %w", hit.ChunkID, err)
		}
		hits = append(hits, hit)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := vector.Rank(queryVec, vectors, k)
	results := make([]models.DocumentSearchResult, 0, len(ranked))
	for _, hit := range ranked {
		r := hits[hit.Index]
		r.Score = hit.Score
		results = append(results, r)
	}
	return results, nil
}
