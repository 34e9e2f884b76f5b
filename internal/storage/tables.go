package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wes/duckbake/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName rejects names that are not plain identifiers or that
// collide with the reserved system-table prefix.
func ValidateTableName(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	if strings.HasPrefix(name, "_duckbake_") {
		return fmt.Errorf("table name %q uses the reserved prefix _duckbake_", name)
	}
	if strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return fmt.Errorf("table name %q uses the reserved prefix sqlite_", name)
	}
	return nil
}

// ListTables returns user tables with row counts, excluding system tables.
func (s *Store) ListTables(ctx context.Context) ([]models.TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table'
		   AND name NOT LIKE '\_duckbake\_%' ESCAPE '\'
		   AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]models.TableInfo, 0, len(names))
	for _, name := range names {
		var count int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+quoteIdentifier(name)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}
		tables = append(tables, models.TableInfo{Name: name, RowCount: count})
	}
	return tables, nil
}

// TableExists reports whether a user table with the given name exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tableExists(s.db, name)
}

// TableSchema returns the column layout and row count of a user table.
func (s *Store) TableSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := tableExists(s.db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("table not found: %s", table)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schema := &models.TableSchema{Table: table}
	for rows.Next() {
		var col models.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+quoteIdentifier(table)).Scan(&schema.RowCount)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// CountRows returns the number of rows in a user table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+quoteIdentifier(table)).Scan(&count)
	return count, err
}

// CreateTable creates a user table with the given columns. The replace flag
// drops an existing table of the same name first.
func (s *Store) CreateTable(ctx context.Context, table string, columns []models.ColumnInfo, replace bool) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		if _, err := s.db.ExecContext(ctx,
			`DROP TABLE IF EXISTS `+quoteIdentifier(table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdentifier(col.Name) + " " + col.Type
	}
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE `+quoteIdentifier(table)+` (`+strings.Join(defs, ", ")+`)`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// InsertRows appends rows to a user table in one transaction and returns the
// number inserted.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdentifier(table), strings.Join(quoted, ", "), placeholders,
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", i, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// DropTable removes a user table and any embedding records derived from it.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DROP TABLE IF EXISTS `+quoteIdentifier(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+embeddingsTable+` WHERE table_name = ?`, table); err != nil {
		return fmt.Errorf("failed to remove embeddings for %s: %w", table, err)
	}
	return tx.Commit()
}
