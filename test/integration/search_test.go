// Package integration wires real storage, the keyword index and the mock
// embedder together in process, without the HTTP layer.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/chunker"
	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/documents"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/extract"
	"github.com/wes/duckbake/internal/keyword"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/registry"
	"github.com/wes/duckbake/internal/search"
	"github.com/wes/duckbake/internal/storage"
	"github.com/wes/duckbake/internal/vectorize"
)

func TestIntegration_TableSearch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := zap.NewNop()

	reg, err := registry.Open(filepath.Join(dir, "projects.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	project, err := reg.Create("integration", "")
	if err != nil {
		t.Fatal(err)
	}

	stores := storage.NewCache()
	defer stores.CloseAll()
	store, err := stores.Acquire(project.ID, filepath.Join(dir, project.ID+".db"))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.CreateTable(ctx, "notes", []models.ColumnInfo{{Name: "note", Type: "TEXT"}}, false); err != nil {
		t.Fatal(err)
	}
	notes := [][]any{
		{"meeting notes from the design review"},
		{"migration routes of arctic terns"},
		{"grocery list for the weekend"},
	}
	if _, err := store.InsertRows(ctx, "notes", []string{"note"}, notes); err != nil {
		t.Fatal(err)
	}

	embedder := embedding.NewMockEmbedder(8)
	v := vectorize.New(embedder, vectorize.NewHub(), vectorize.NewCancellationSet(),
		config.VectorizeConfig{TableBatchSize: 2, ChunkBatchSize: 2}, logger)
	if err := v.VectorizeTable(ctx, store, "notes", []string{"note"}); err != nil {
		t.Fatal(err)
	}

	status, err := store.EmbeddingStatus(ctx, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsVectorized || status.EmbeddingCount != int64(len(notes)) {
		t.Fatalf("status = %+v, want %d embeddings", status, len(notes))
	}
	if status.EmbeddingModel != "mock" {
		t.Errorf("embedding model = %q, want mock", status.EmbeddingModel)
	}

	engine := search.NewEngine(embedder, nil, config.SearchConfig{DefaultLimit: 5, MaxLimit: 50}, logger)

	// The mock embedder maps identical text to identical vectors, so the
	// exact row text is the provably nearest neighbor.
	got, err := engine.SearchTable(ctx, store, "notes", "migration routes of arctic terns", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if got[0].RowID != 2 {
		t.Errorf("top row id = %d, want 2 (%q)", got[0].RowID, got[0].Content)
	}
	if got[0].Score < 0.999 {
		t.Errorf("top score = %f, want ~1", got[0].Score)
	}
}

func TestIntegration_DocumentSearch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := zap.NewNop()

	reg, err := registry.Open(filepath.Join(dir, "projects.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	project, err := reg.Create("integration-docs", "")
	if err != nil {
		t.Fatal(err)
	}

	stores := storage.NewCache()
	defer stores.CloseAll()
	store, err := stores.Acquire(project.ID, filepath.Join(dir, project.ID+".db"))
	if err != nil {
		t.Fatal(err)
	}

	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "index.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer kw.Close()

	content := "Migration routes of arctic terns span both hemispheres every year."
	path := filepath.Join(dir, "terns.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := documents.NewService(extract.New(), chunker.New(1000, 100), kw, logger)
	doc, err := svc.Upload(ctx, store, project.ID, path)
	if err != nil {
		t.Fatal(err)
	}

	embedder := embedding.NewMockEmbedder(8)
	v := vectorize.New(embedder, vectorize.NewHub(), vectorize.NewCancellationSet(),
		config.VectorizeConfig{TableBatchSize: 2, ChunkBatchSize: 2}, logger)
	if err := v.VectorizeDocument(ctx, store, doc.ID); err != nil {
		t.Fatal(err)
	}

	engine := search.NewEngine(embedder, kw, config.SearchConfig{DefaultLimit: 5, MaxLimit: 50}, logger)

	// The file is one short paragraph, so its single chunk is the whole
	// content and the exact text scores ~1 on the semantic path.
	resp, err := engine.SearchDocuments(ctx, store, project.ID, content, 5,
		search.Options{Semantic: true, Keyword: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.SemanticResults) == 0 {
		t.Fatal("no semantic results")
	}
	if got := resp.SemanticResults[0]; got.Filename != "terns.txt" || got.Score < 0.999 {
		t.Errorf("top semantic hit = %q score %f, want terns.txt ~1", got.Filename, got.Score)
	}
	if len(resp.KeywordResults) == 0 {
		t.Fatal("no keyword results")
	}
	if got := resp.KeywordResults[0].Filename; got != "terns.txt" {
		t.Errorf("top keyword hit = %q, want terns.txt", got)
	}
}
