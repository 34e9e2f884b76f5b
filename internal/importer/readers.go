package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// rawTable is a parsed file: a header plus rows of text cells. A nil cell
// is a null.
type rawTable struct {
	columns []string
	rows    [][]*string
}

// readFile parses a tabular file, picking the format by extension. It
// returns the parsed rows and the canonical file type name.
func readFile(path string) (*rawTable, string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "csv":
		t, err := readDelimited(path, ',')
		return t, "csv", err
	case "tsv":
		t, err := readDelimited(path, '\t')
		return t, "tsv", err
	case "json":
		t, err := readJSON(path)
		return t, "json", err
	case "jsonl", "ndjson":
		t, err := readJSONL(path)
		return t, "jsonl", err
	case "xlsx":
		t, err := readXLSX(path)
		return t, "xlsx", err
	default:
		return nil, "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

// readDelimited parses CSV or TSV. The first record is the header, and
// every record must have the same width.
func readDelimited(path string, comma rune) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}

	t := &rawTable{columns: records[0]}
	for _, record := range records[1:] {
		row := make([]*string, len(record))
		for i := range record {
			cell := record[i]
			row[i] = &cell
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// readJSON parses a top-level array of objects. Column order comes from
// the first object; keys missing from later objects read as null, and
// keys the first object does not have are ignored.
func readJSON(path string) (*rawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%s must contain a JSON array of objects", filepath.Base(path))
	}

	t := &rawTable{}
	for dec.More() {
		keys, values, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		if t.columns == nil {
			t.columns = keys
		}
		t.rows = append(t.rows, rowFromMap(values, t.columns))
	}
	if t.columns == nil {
		return nil, fmt.Errorf("%s has no objects", filepath.Base(path))
	}
	return t, nil
}

// readJSONL parses one object per line, skipping blank lines.
func readJSONL(path string) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	t := &rawTable{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		keys, values, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to parse line %d of %s: %w", line, filepath.Base(path), err)
		}
		if t.columns == nil {
			t.columns = keys
		}
		t.rows = append(t.rows, rowFromMap(values, t.columns))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if t.columns == nil {
		return nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}
	return t, nil
}

// readXLSX reads the first sheet of a workbook. The first row is the
// header. The sheet reader drops trailing empty cells, so rows are padded
// back to the header width.
func readXLSX(path string) (*rawTable, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", filepath.Base(path))
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}

	t := &rawTable{columns: rows[0]}
	for _, record := range rows[1:] {
		row := make([]*string, len(t.columns))
		for i := range t.columns {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			row[i] = &cell
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// decodeObject reads one JSON object from the decoder and keeps its key
// order.
func decodeObject(dec *json.Decoder) ([]string, map[string]*string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var keys []string
	values := make(map[string]*string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key, got %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values[key] = cellValue(v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func rowFromMap(values map[string]*string, columns []string) []*string {
	row := make([]*string, len(columns))
	for i, name := range columns {
		row[i] = values[name]
	}
	return row
}

// cellValue renders a decoded JSON value as a text cell. Nested arrays
// and objects keep their JSON form.
func cellValue(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &val
	case json.Number:
		s := val.String()
		return &s
	case bool:
		s := strconv.FormatBool(val)
		return &s
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s := fmt.Sprintf("%v", val)
			return &s
		}
		s := string(b)
		return &s
	}
}
