// Package importer loads tabular files into user tables.
//
// Supported formats are CSV, TSV, JSON arrays, JSON Lines and XLSX
// workbooks. Every format is reduced to a header plus rows of text
// cells, and column types are inferred from the data, so a preview
// shows the same types an import will create.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/storage"
)

// Mode selects how an import treats an existing table of the same name.
type Mode string

const (
	// ModeCreate makes a new table and fails if the name is taken.
	ModeCreate Mode = "create"
	// ModeReplace drops any existing table of the same name first.
	ModeReplace Mode = "replace"
	// ModeAppend adds rows to an existing table with a matching header.
	ModeAppend Mode = "append"
)

// ParseMode validates a mode string. The empty string selects ModeCreate.
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(strings.ToLower(s)); mode {
	case "":
		return ModeCreate, nil
	case ModeCreate, ModeReplace, ModeAppend:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid import mode %q (want create, replace or append)", s)
	}
}

// Preview describes a file before it is imported.
type Preview struct {
	Filename   string              `json:"filename"`
	FileType   string              `json:"file_type"`
	Columns    []models.ColumnInfo `json:"columns"`
	SampleRows [][]any             `json:"sample_rows"`
	TotalRows  int64               `json:"total_rows"`
}

// Result reports what an import wrote.
type Result struct {
	Table        string `json:"table"`
	RowsImported int64  `json:"rows_imported"`
	ColumnCount  int    `json:"column_count"`
}

// Importer parses tabular files and writes them to project tables.
type Importer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Importer {
	return &Importer{logger: logger}
}

// defaultSampleRows is the number of rows a preview shows when the caller
// does not ask for a specific count.
const defaultSampleRows = 10

// Preview parses a file and reports its columns, inferred types, and the
// first rows, without touching the database.
func (im *Importer) Preview(path string, limit int) (*Preview, error) {
	raw, fileType, err := readFile(path)
	if err != nil {
		return nil, err
	}
	columns := inferColumns(raw)
	if limit <= 0 {
		limit = defaultSampleRows
	}
	if limit > len(raw.rows) {
		limit = len(raw.rows)
	}
	sample := make([][]any, limit)
	for i := 0; i < limit; i++ {
		sample[i] = convertRow(raw.rows[i], columns)
	}
	return &Preview{
		Filename:   filepath.Base(path),
		FileType:   fileType,
		Columns:    columns,
		SampleRows: sample,
		TotalRows:  int64(len(raw.rows)),
	}, nil
}

// Import loads a file into the named table. ModeCreate refuses to touch
// an existing table, ModeReplace drops one first, and ModeAppend adds
// rows to one whose columns match the file header. Rows are written in
// a single transaction, so a failed import leaves the table's previous
// rows alone.
func (im *Importer) Import(ctx context.Context, store *storage.Store, table, path string, mode Mode) (*Result, error) {
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}
	raw, fileType, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateColumns(raw.columns); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	columns := inferColumns(raw)

	exists, err := store.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeCreate:
		if exists {
			return nil, fmt.Errorf("table %s already exists", table)
		}
		if err := store.CreateTable(ctx, table, columns, false); err != nil {
			return nil, err
		}
	case ModeReplace:
		if exists {
			// DropTable also discards embedding records derived from
			// the old contents.
			if err := store.DropTable(ctx, table); err != nil {
				return nil, err
			}
		}
		if err := store.CreateTable(ctx, table, columns, false); err != nil {
			return nil, err
		}
	case ModeAppend:
		if !exists {
			return nil, fmt.Errorf("table %s does not exist", table)
		}
		schema, err := store.TableSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		if err := matchHeader(schema.Columns, raw.columns); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid import mode %q", mode)
	}

	rows := make([][]any, len(raw.rows))
	for i, row := range raw.rows {
		rows[i] = convertRow(row, columns)
	}
	inserted, err := store.InsertRows(ctx, table, raw.columns, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rows: %w", err)
	}

	im.logger.Info("file imported",
		zap.String("table", table),
		zap.String("file", filepath.Base(path)),
		zap.String("type", fileType),
		zap.String("mode", string(mode)),
		zap.Int64("rows", inserted))
	return &Result{Table: table, RowsImported: inserted, ColumnCount: len(columns)}, nil
}

// validateColumns rejects headers a table cannot carry.
func validateColumns(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no columns found")
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("column %d has an empty name", i+1)
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			return fmt.Errorf("duplicate column name %q", name)
		}
		seen[lower] = true
	}
	return nil
}

// matchHeader checks that the file names the same columns as the table,
// in any order. Inserts name their columns explicitly, so order is free
// to differ.
func matchHeader(tableCols []models.ColumnInfo, fileCols []string) error {
	if len(fileCols) != len(tableCols) {
		return fmt.Errorf("file has %d columns, table has %d", len(fileCols), len(tableCols))
	}
	want := make(map[string]bool, len(tableCols))
	for _, col := range tableCols {
		want[strings.ToLower(col.Name)] = true
	}
	for _, name := range fileCols {
		if !want[strings.ToLower(name)] {
			return fmt.Errorf("file column %q does not exist in the table", name)
		}
	}
	return nil
}

// inferColumns derives a type for each column from its values. A column
// where every value parses as an integer is INTEGER, numeric columns
// widen to REAL, and anything else is TEXT. Null and empty cells carry
// no type, so an all-empty column defaults to TEXT.
func inferColumns(t *rawTable) []models.ColumnInfo {
	columns := make([]models.ColumnInfo, len(t.columns))
	for i, name := range t.columns {
		columns[i] = models.ColumnInfo{Name: name, Type: inferType(t.rows, i)}
	}
	return columns
}

func inferType(rows [][]*string, col int) string {
	typ := ""
	for _, row := range rows {
		if col >= len(row) || row[col] == nil || *row[col] == "" {
			continue
		}
		s := *row[col]
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			if typ == "" {
				typ = "INTEGER"
			}
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			typ = "REAL"
			continue
		}
		return "TEXT"
	}
	if typ == "" {
		return "TEXT"
	}
	return typ
}

// convertRow turns text cells into typed values for the inferred column
// types. Null cells stay null, and empty cells in numeric columns become
// null rather than zero.
func convertRow(row []*string, columns []models.ColumnInfo) []any {
	out := make([]any, len(row))
	for i, cell := range row {
		if cell == nil {
			continue
		}
		s := *cell
		if i >= len(columns) {
			out[i] = s
			continue
		}
		switch columns[i].Type {
		case "INTEGER":
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				out[i] = n
			} else {
				out[i] = s
			}
		case "REAL":
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out[i] = f
			} else {
				out[i] = s
			}
		default:
			out[i] = s
		}
	}
	return out
}
