// Package cli renders command output for the DuckBake command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wes/duckbake/internal/models"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is one result per line, for piping into other tools.
	OutputCompact OutputFormat = "compact"
)

// ParseFormat validates an output format string. Empty selects OutputText.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return OutputText, nil
	case OutputText, OutputJSON, OutputCompact:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteProjects renders a project list.
func WriteProjects(w io.Writer, projects []*models.Project, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, projects)
	case OutputCompact:
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\n", p.ID, p.Name)
		}
		return nil
	default:
		if len(projects) == 0 {
			fmt.Fprintln(w, "No projects yet.")
			return nil
		}
		for _, p := range projects {
			fmt.Fprintf(w, "%s  %s", p.ID, p.Name)
			if p.Description != "" {
				fmt.Fprintf(w, "  (%s)", p.Description)
			}
			fmt.Fprintln(w)
		}
		return nil
	}
}

// WriteTableResults renders ranked rows from a table similarity search.
func WriteTableResults(w io.Writer, table string, results []models.TableSearchResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, results)
	case OutputCompact:
		for _, r := range results {
			fmt.Fprintf(w, "%.4f\t%d\t%s\n", r.Score, r.RowID, flatten(r.Content))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d matching rows in %s\n\n", len(results), table)
		for i, r := range results {
			fmt.Fprintf(w, "%2d. score %.4f  row %d\n    %s\n", i+1, r.Score, r.RowID, Truncate(flatten(r.Content), 200))
		}
		return nil
	}
}

// WriteDocumentResults renders a document search response. Semantic and
// keyword hits stay in separate sections because their scores are not
// comparable.
func WriteDocumentResults(w io.Writer, resp *models.DocumentSearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.SemanticResults {
			fmt.Fprintf(w, "semantic\t%.4f\t%s\t%s\n", r.Score, r.Filename, TruncateWords(flatten(r.Content), 12))
		}
		for _, r := range resp.KeywordResults {
			fmt.Fprintf(w, "keyword\t%.4f\t%s\t%s\n", r.Score, r.Filename, r.DocumentID)
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d semantic and %d keyword results in %dms\n\n",
			len(resp.SemanticResults), len(resp.KeywordResults), resp.QueryTimeMillis)
		if len(resp.SemanticResults) > 0 {
			fmt.Fprintln(w, "--- Semantic results ---")
			for _, r := range resp.SemanticResults {
				fmt.Fprintln(w, rule)
				fmt.Fprintf(w, "Score: %.4f | %s (chunk %d)\n", r.Score, r.Filename, r.ChunkIndex)
				fmt.Fprintf(w, "\n%s\n\n", Truncate(r.Content, 200))
			}
		}
		if len(resp.KeywordResults) > 0 {
			fmt.Fprintln(w, "--- Keyword results ---")
			for _, r := range resp.KeywordResults {
				fmt.Fprintf(w, "%.4f  %s  (%s)\n", r.Score, r.Filename, r.DocumentID)
			}
		}
		return nil
	}
}

// WriteQueryResult renders a generic query result as an aligned table.
func WriteQueryResult(w io.Writer, res *models.QueryResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, res)
	case OutputCompact:
		for _, row := range res.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = cellText(v)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		return nil
	default:
		widths := make([]int, len(res.Columns))
		for i, col := range res.Columns {
			widths[i] = len(col)
		}
		rendered := make([][]string, len(res.Rows))
		for ri, row := range res.Rows {
			rendered[ri] = make([]string, len(row))
			for ci, v := range row {
				cell := Truncate(flatten(cellText(v)), 40)
				rendered[ri][ci] = cell
				if ci < len(widths) && len(cell) > widths[ci] {
					widths[ci] = len(cell)
				}
			}
		}
		for i, col := range res.Columns {
			fmt.Fprintf(w, "%-*s  ", widths[i], col)
		}
		fmt.Fprintln(w)
		for i := range res.Columns {
			fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
		}
		fmt.Fprintln(w)
		for _, row := range rendered {
			for ci, cell := range row {
				width := len(cell)
				if ci < len(widths) {
					width = widths[ci]
				}
				fmt.Fprintf(w, "%-*s  ", width, cell)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
		return nil
	}
}

// ProgressLine renders one vectorization progress event for terminal display.
func ProgressLine(ev models.ProgressEvent) string {
	switch ev.Status {
	case models.StatusLoadingModel:
		return fmt.Sprintf("%s: loading model", ev.SourceID)
	case models.StatusCompleted:
		return fmt.Sprintf("%s: done, %d units embedded", ev.SourceID, ev.ProcessedUnits)
	case models.StatusCancelled:
		return fmt.Sprintf("%s: cancelled after %d/%d", ev.SourceID, ev.ProcessedUnits, ev.TotalUnits)
	case models.StatusError:
		return fmt.Sprintf("%s: failed: %s", ev.SourceID, ev.Error)
	default:
		if ev.TotalUnits > 0 {
			pct := ev.ProcessedUnits * 100 / ev.TotalUnits
			return fmt.Sprintf("%s: %d/%d (%d%%)", ev.SourceID, ev.ProcessedUnits, ev.TotalUnits, pct)
		}
		return fmt.Sprintf("%s: %s", ev.SourceID, ev.Status)
	}
}

// cellText renders one query cell. Null renders as NULL so it cannot be
// mistaken for an empty string.
func cellText(v models.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	return v.String()
}

// flatten collapses all whitespace runs to single spaces.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
