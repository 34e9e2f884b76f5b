package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/wes/duckbake/internal/models"
)

// BleveIndex implements Index using a single Bleve index shared by all
// projects, with a keyword field scoping every query to one project.
type BleveIndex struct {
	index bleve.Index
}

// indexEntry is the shape stored per document. Bleve maps the fields through
// their json tags, which the document mapping below refers to.
type indexEntry struct {
	ProjectID string `json:"project_id"`
	Filename  string `json:"filename"`
	Content   string `json:"content"`
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; if the mapping in code changes, remove the index
// directory to force a rebuild from the stored documents.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match
	// the exact word; stemming analyzers make e.g. "bayes" miss "Bayesian".
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("filename", textFieldMapping)
	docMapping.AddFieldMappingsAt("project_id", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces the entry for doc under its project.
func (b *BleveIndex) Index(ctx context.Context, projectID string, doc *models.Document) error {
	entry := indexEntry{ProjectID: projectID, Filename: normalizeFilename(doc.Filename), Content: doc.Content}
	if err := b.index.Index(doc.ID, entry); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return nil
}

// normalizeFilename splits separators into spaces so each filename part
// becomes its own search term: "migration-runbook.md" indexes as
// "migration runbook md".
func normalizeFilename(name string) string {
	for _, sep := range []string{"_", "-", "."} {
		name = strings.ReplaceAll(name, sep, " ")
	}
	return strings.TrimSpace(name)
}

// Delete removes one document from the index.
func (b *BleveIndex) Delete(ctx context.Context, documentID string) error {
	return b.index.Delete(documentID)
}

// DeleteProject removes every entry belonging to projectID.
func (b *BleveIndex) DeleteProject(ctx context.Context, projectID string) error {
	scope := bleve.NewTermQuery(projectID)
	scope.SetField("project_id")
	for {
		req := bleve.NewSearchRequest(scope)
		req.Size = 1000
		results, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to list project entries: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete project entries: %w", err)
		}
	}
}

// Search runs a match query over content and filename, restricted to the
// given project, and returns up to limit hits ordered by score.
func (b *BleveIndex) Search(ctx context.Context, projectID, query string, limit int) ([]Result, error) {
	scope := bleve.NewTermQuery(projectID)
	scope.SetField("project_id")
	match := bleve.NewMatchQuery(query)

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(scope, match))
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	out := make([]Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Result{DocumentID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the total number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
