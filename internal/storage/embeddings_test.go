package storage

import (
	"context"
	"testing"

	"github.com/wes/duckbake/internal/models"
)

func seedArticles(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	cols := []models.ColumnInfo{{Name: "title", Type: "TEXT"}, {Name: "body", Type: "TEXT"}}
	if err := store.CreateTable(ctx, "articles", cols, false); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"alpha", "one"},
		{"beta", nil},
		{nil, nil},
	}
	if _, err := store.InsertRows(ctx, "articles", []string{"title", "body"}, rows); err != nil {
		t.Fatal(err)
	}
}

func TestColumnKey(t *testing.T) {
	if got := ColumnKey([]string{"title"}); got != "title" {
		t.Errorf("ColumnKey single = %q", got)
	}
	if got := ColumnKey([]string{"title", "body"}); got != "title+body" {
		t.Errorf("ColumnKey joined = %q", got)
	}
}

func TestTextPage_joinsAndPaginates(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store)
	ctx := context.Background()

	page, err := store.TextPage(ctx, "articles", []string{"title", "body"}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("first page has %d rows, want 2", len(page))
	}
	if page[0].RowID != 1 || page[0].Text != "alpha one" {
		t.Errorf("row 0 = %+v", page[0])
	}
	// Null columns coalesce to empty strings but keep the separator.
	if page[1].RowID != 2 || page[1].Text != "beta " {
		t.Errorf("row 1 = %+v", page[1])
	}

	page, err = store.TextPage(ctx, "articles", []string{"title", "body"}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].RowID != 3 || page[0].Text != " " {
		t.Errorf("second page = %+v", page)
	}

	page, err = store.TextPage(ctx, "articles", []string{"title", "body"}, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Errorf("page past end has %d rows, want 0", len(page))
	}
}

func TestUpsertAndSearchEmbeddings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []EmbeddingEntry{
		{RowID: 1, Content: "alpha one", Vector: []float32{1, 0}},
		{RowID: 2, Content: "beta", Vector: []float32{0, 1}},
		{RowID: 3, Content: "gamma", Vector: []float32{0.9, 0.1}},
	}
	if err := store.UpsertEmbeddings(ctx, "articles", "title+body", entries, "test-model"); err != nil {
		t.Fatal(err)
	}

	results, err := store.SearchEmbeddings(ctx, "articles", []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].RowID != 1 || results[0].Content != "alpha one" {
		t.Errorf("top hit = %+v", results[0])
	}
	if results[1].RowID != 3 {
		t.Errorf("second hit = %+v", results[1])
	}
	if results[0].Score < results[1].Score {
		t.Error("results not in descending score order")
	}
}

func TestSearchEmbeddings_skipsMismatchedDimensions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []EmbeddingEntry{
		{RowID: 1, Content: "two dims", Vector: []float32{1, 0}},
		{RowID: 2, Content: "three dims", Vector: []float32{1, 0, 0}},
	}
	if err := store.UpsertEmbeddings(ctx, "articles", "title", entries, "test-model"); err != nil {
		t.Fatal(err)
	}

	results, err := store.SearchEmbeddings(ctx, "articles", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].RowID != 1 {
		t.Errorf("results = %+v, want only the matching-dimension row", results)
	}
}

func TestRemoveEmbeddings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []EmbeddingEntry{{RowID: 1, Content: "x", Vector: []float32{1}}}
	if err := store.UpsertEmbeddings(ctx, "articles", "title", entries, "m"); err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveEmbeddings(ctx, "articles"); err != nil {
		t.Fatal(err)
	}

	status, err := store.EmbeddingStatus(ctx, "articles")
	if err != nil {
		t.Fatal(err)
	}
	if status.IsVectorized || status.EmbeddingCount != 0 {
		t.Errorf("status after remove = %+v", status)
	}
}

func TestEmbeddingStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	status, err := store.EmbeddingStatus(ctx, "articles")
	if err != nil {
		t.Fatal(err)
	}
	if status.IsVectorized {
		t.Error("empty table reported as vectorized")
	}

	first := []EmbeddingEntry{{RowID: 1, Content: "a", Vector: []float32{1}}}
	if err := store.UpsertEmbeddings(ctx, "articles", "title", first, "model-old"); err != nil {
		t.Fatal(err)
	}
	second := []EmbeddingEntry{{RowID: 2, Content: "b", Vector: []float32{1}}}
	if err := store.UpsertEmbeddings(ctx, "articles", "body+title", second, "model-new"); err != nil {
		t.Fatal(err)
	}

	status, err = store.EmbeddingStatus(ctx, "articles")
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsVectorized || status.EmbeddingCount != 2 {
		t.Errorf("status = %+v", status)
	}
	if len(status.VectorizedColumns) != 2 ||
		status.VectorizedColumns[0] != "body+title" || status.VectorizedColumns[1] != "title" {
		t.Errorf("columns = %v", status.VectorizedColumns)
	}
	// The most recently written record decides the reported model.
	if status.EmbeddingModel != "model-new" {
		t.Errorf("model = %q, want model-new", status.EmbeddingModel)
	}
}
