// Package storage provides the per-project SQLite store: user tables,
// embedding records, documents with chunks, and generic query execution.
// A Store serializes access through an internal mutex; callers get exclusive
// use of the underlying handle for the duration of each call, and no call
// performs network I/O.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// System tables live next to user tables in the project database and are
// hidden from table listings.
const (
	embeddingsTable = "_duckbake_embeddings"
	documentsTable  = "_duckbake_documents"
	chunksTable     = "_duckbake_document_chunks"
)

// Store is a single project's database handle.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens or creates the project database at path, enables WAL, and
// ensures the system tables exist, repairing legacy layouts first. Parent
// directories are created if they do not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := repairSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to repair schema: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ` + embeddingsTable + ` (
		table_name TEXT NOT NULL,
		source_column TEXT NOT NULL,
		row_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		embedding_model TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (table_name, source_column, row_id)
	);

	CREATE INDEX IF NOT EXISTS idx_duckbake_embeddings_table
		ON ` + embeddingsTable + `(table_name);

	CREATE TABLE IF NOT EXISTS ` + documentsTable + ` (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		content TEXT NOT NULL,
		vectorized INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ` + chunksTable + ` (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		chunk_type TEXT NOT NULL,
		embedding BLOB,
		embedding_model TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_duckbake_chunks_document
		ON ` + chunksTable + `(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// repairSchema migrates databases written by earlier layouts.
//
// Two legacy shapes are detected: an embeddings table with a surrogate id
// column (superseded by the composite key; the table holds derived data, so
// it is dropped and rebuilt by the next vectorization run), and a chunks
// table with a declared foreign key (chunk/document integrity is enforced at
// the deletion call sites because declared constraints block the bulk
// rebuilds done here; the table is recreated from its contents).
func repairSchema(db *sql.DB) error {
	hasLegacyID, err := tableHasColumn(db, embeddingsTable, "id")
	if err != nil {
		return err
	}
	if hasLegacyID {
		if _, err := db.Exec(`DROP TABLE ` + embeddingsTable); err != nil {
			return fmt.Errorf("failed to drop legacy embeddings table: %w", err)
		}
	}

	hasFK, err := tableHasForeignKey(db, chunksTable)
	if err != nil {
		return err
	}
	if hasFK {
		if err := rebuildChunksTable(db); err != nil {
			return fmt.Errorf("failed to rebuild chunks table: %w", err)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableHasColumn(db *sql.DB, table, column string) (bool, error) {
	exists, err := tableExists(db, table)
	if err != nil || !exists {
		return false, err
	}
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableHasForeignKey(db *sql.DB, table string) (bool, error) {
	exists, err := tableExists(db, table)
	if err != nil || !exists {
		return false, err
	}
	rows, err := db.Query(`SELECT "table" FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	has := rows.Next()
	return has, rows.Err()
}

// rebuildChunksTable recreates the chunks table without a declared foreign
// key, preserving its rows through a temporary copy.
func rebuildChunksTable(db *sql.DB) error {
	const tmp = chunksTable + "_repair"
	steps := []string{
		`DROP TABLE IF EXISTS ` + tmp,
		`CREATE TABLE ` + tmp + ` AS
			SELECT id, document_id, chunk_index, content, start_offset, end_offset,
			       chunk_type, embedding, embedding_model, created_at
			FROM ` + chunksTable,
		`DROP TABLE ` + chunksTable,
		`CREATE TABLE ` + chunksTable + ` (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			chunk_type TEXT NOT NULL,
			embedding BLOB,
			embedding_model TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`INSERT INTO ` + chunksTable + `
			SELECT id, document_id, chunk_index, content, start_offset, end_offset,
			       chunk_type, embedding, embedding_model, created_at
			FROM ` + tmp,
		`DROP TABLE ` + tmp,
	}
	for _, stmt := range steps {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// quoteIdentifier wraps a table or column name for safe interpolation into
// SQL text. Parameter placeholders cannot carry identifiers.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

