// Package keyword provides keyword search over ingested documents.
package keyword

import (
	"context"

	"github.com/wes/duckbake/internal/models"
)

// Result is a single keyword search hit.
type Result struct {
	DocumentID string
	Score      float64
}

// Index defines keyword indexing and search operations. Entries are scoped
// by project; search never crosses project boundaries.
type Index interface {
	Index(ctx context.Context, projectID string, doc *models.Document) error
	Delete(ctx context.Context, documentID string) error
	DeleteProject(ctx context.Context, projectID string) error
	Search(ctx context.Context, projectID, query string, limit int) ([]Result, error)
	// DocCount returns the total number of indexed documents across projects.
	DocCount() (uint64, error)
	Close() error
}
