package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/wes/duckbake/internal/models"
)

// readOnlyPrefixes are the statement kinds Query accepts.
var readOnlyPrefixes = []string{"select", "with", "pragma", "explain"}

// IsReadOnly reports whether stmt starts with one of the read-only statement
// kinds (SELECT, WITH, PRAGMA, EXPLAIN). Callers that accept arbitrary SQL
// use it to route between Query and Exec.
func IsReadOnly(stmt string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(stmt))
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// Query runs a read-only SQL statement and decodes every cell into a tagged
// Value (see models.Value for the decode priority). Statements that are not
// SELECT, WITH, PRAGMA, or EXPLAIN are rejected; use Exec for those.
func (s *Store) Query(ctx context.Context, query string) (*models.QueryResult, error) {
	if !IsReadOnly(query) {
		return nil, fmt.Errorf("only read-only statements are allowed here")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &models.QueryResult{Columns: columns, Rows: [][]models.Value{}}

	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		decoded := make([]models.Value, len(columns))
		for i, v := range raw {
			decoded[i] = models.NewValue(v)
		}
		result.Rows = append(result.Rows, decoded)
	}
	return result, rows.Err()
}

// Exec runs a mutating SQL statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, stmt string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
