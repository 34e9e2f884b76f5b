package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/vector"
)

// EmbeddingEntry is one row of a vectorized batch.
type EmbeddingEntry struct {
	RowID   int64
	Content string
	Vector  []float32
}

// RowText is one row of source text assembled for embedding.
type RowText struct {
	RowID int64
	Text  string
}

// ColumnKey joins column names into the source_column key stored with each
// embedding record.
func ColumnKey(columns []string) string {
	return strings.Join(columns, "+")
}

// TextPage returns a page of (rowid, text) pairs from a user table, with the
// given columns cast to text, null-coalesced, and joined with single spaces.
// Rows are ordered by rowid so pagination is stable.
func (s *Store) TextPage(ctx context.Context, table string, columns []string, limit, offset int) ([]RowText, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exprs := make([]string, len(columns))
	for i, col := range columns {
		exprs[i] = "COALESCE(CAST(" + quoteIdentifier(col) + " AS TEXT), '')"
	}
	query := fmt.Sprintf(
		`SELECT rowid, %s FROM %s ORDER BY rowid LIMIT ? OFFSET ?`,
		strings.Join(exprs, " || ' ' || "), quoteIdentifier(table),
	)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", table, err)
	}
	defer rows.Close()

	var page []RowText
	for rows.Next() {
		var rt RowText
		if err := rows.Scan(&rt.RowID, &rt.Text); err != nil {
			return nil, err
		}
		page = append(page, rt)
	}
	return page, rows.Err()
}

// UpsertEmbeddings writes one batch of embedding records for a table in a
// single transaction, so a crash mid-write leaves either the whole batch or
// none of it.
func (s *Store) UpsertEmbeddings(ctx context.Context, table, columnKey string, entries []EmbeddingEntry, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+embeddingsTable+`
		 (table_name, source_column, row_id, content, embedding, embedding_model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			table, columnKey, e.RowID, e.Content, vector.Encode(e.Vector), model, now,
		); err != nil {
			return fmt.Errorf("failed to insert embedding for row %d: %w", e.RowID, err)
		}
	}
	return tx.Commit()
}

// RemoveEmbeddings deletes all embedding records for a table. Removing a
// table that was never vectorized is a no-op.
func (s *Store) RemoveEmbeddings(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+embeddingsTable+` WHERE table_name = ?`, table)
	return err
}

// SearchEmbeddings ranks every embedding record of a table against queryVec
// by cosine similarity and returns the top k. Records are scanned in row id
// order, so equal scores come back in stable order. Records whose stored
// dimensionality differs from the query are skipped.
func (s *Store) SearchEmbeddings(ctx context.Context, table string, queryVec []float32, k int) ([]models.TableSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, content, embedding FROM `+embeddingsTable+`
		 WHERE table_name = ? ORDER BY row_id`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	var (
		ids      []int64
		contents []string
		vectors  [][]float32
	)
	for rows.Next() {
		var (
			id      int64
			content string
			blob    []byte
		)
		if err := rows.Scan(&id, &content, &blob); err != nil {
			return nil, err
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for row %d: %w", id, err)
		}
		ids = append(ids, id)
		contents = append(contents, content)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := vector.Rank(queryVec, vectors, k)
	results := make([]models.TableSearchResult, 0, len(ranked))
	for _, hit := range ranked {
		results = append(results, models.TableSearchResult{
			RowID:   ids[hit.Index],
			Content: contents[hit.Index],
			Score:   hit.Score,
		})
	}
	return results, nil
}

// EmbeddingStatus summarizes the records stored for a table. The reported
// model is that of the most recently written record; mixed-model states are
// surfaced as-is.
func (s *Store) EmbeddingStatus(ctx context.Context, table string) (*models.VectorizationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &models.VectorizationStatus{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+embeddingsTable+` WHERE table_name = ?`, table,
	).Scan(&status.EmbeddingCount)
	if err != nil {
		return nil, err
	}
	status.IsVectorized = status.EmbeddingCount > 0
	if !status.IsVectorized {
		return status, nil
	}

	cols, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_column FROM `+embeddingsTable+`
		 WHERE table_name = ? ORDER BY source_column`, table)
	if err != nil {
		return nil, err
	}
	defer cols.Close()
	for cols.Next() {
		var col string
		if err := cols.Scan(&col); err != nil {
			return nil, err
		}
		status.VectorizedColumns = append(status.VectorizedColumns, col)
	}
	if err := cols.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT embedding_model FROM `+embeddingsTable+`
		 WHERE table_name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, table,
	).Scan(&status.EmbeddingModel)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return status, nil
}
