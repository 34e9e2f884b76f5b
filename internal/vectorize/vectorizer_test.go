package vectorize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/storage"
)

// fakeEmbedder records calls and can be programmed to fail at specific
// points, request cancellation mid-batch, or return too few vectors.
type fakeEmbedder struct {
	model     string
	dims      int
	warmupErr error
	errOnCall int // 1-based EmbedBatch call that fails, 0 disables
	shortBy   int // vectors dropped from every response
	onBatch   func(call int, texts []string)

	warmups int
	batches [][]string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "fake-model", dims: 4}
}

func (f *fakeEmbedder) Warmup(ctx context.Context) error {
	f.warmups++
	return f.warmupErr
}

func (f *fakeEmbedder) Model() string { return f.model }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	call := len(f.batches)
	if f.onBatch != nil {
		f.onBatch(call, texts)
	}
	if f.errOnCall != 0 && call == f.errOnCall {
		return nil, errors.New("embed failed")
	}
	n := len(texts) - f.shortBy
	if n < 0 {
		n = 0
	}
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, f.dims)
		for j := range vec {
			vec[j] = float32(len(texts[i])+j) * 0.01
		}
		out[i] = vec
	}
	return out, nil
}

func newTestVectorizer(emb *fakeEmbedder) (*Vectorizer, *Hub) {
	hub := NewHub()
	cfg := config.VectorizeConfig{TableBatchSize: 50, ChunkBatchSize: 20}
	return New(emb, hub, NewCancellationSet(), cfg, zap.NewNop()), hub
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "project.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedArticles(t *testing.T, store *storage.Store, n int) {
	t.Helper()
	ctx := context.Background()
	cols := []models.ColumnInfo{{Name: "title", Type: "TEXT"}, {Name: "body", Type: "TEXT"}}
	if err := store.CreateTable(ctx, "articles", cols, false); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("title %d", i), fmt.Sprintf("body %d", i)}
	}
	if _, err := store.InsertRows(ctx, "articles", []string{"title", "body"}, rows); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
}

func seedDocument(t *testing.T, store *storage.Store, chunkCount int) string {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{
		ID:          uuid.New().String(),
		Filename:    "notes.txt",
		ContentType: "txt",
		SizeBytes:   256,
		Content:     "seed content",
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	chunks := make([]models.DocumentChunk, chunkCount)
	for i := range chunks {
		chunks[i] = models.DocumentChunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     fmt.Sprintf("chunk %d text", i),
			StartOffset: i * 16,
			EndOffset:   i*16 + 12,
			ChunkType:   models.ChunkParagraph,
			CreatedAt:   time.Now().UTC(),
		}
	}
	if err := store.InsertChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertChunks: %v", err)
	}
	return doc.ID
}

func drainEvents(ch <-chan models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func assertEvent(t *testing.T, ev models.ProgressEvent, status models.JobStatus, processed int) {
	t.Helper()
	if ev.Status != status || ev.ProcessedUnits != processed {
		t.Fatalf("got event %s/%d, want %s/%d", ev.Status, ev.ProcessedUnits, status, processed)
	}
}

func TestVectorizeTable_fullRun(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 120)
	emb := newFakeEmbedder()
	v, hub := newTestVectorizer(emb)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	if err := v.VectorizeTable(context.Background(), store, "articles", []string{"title", "body"}); err != nil {
		t.Fatalf("VectorizeTable: %v", err)
	}

	got := drainEvents(events)
	if len(got) != 6 {
		t.Fatalf("got %d events, want 6: %+v", len(got), got)
	}
	assertEvent(t, got[0], models.StatusLoadingModel, 0)
	assertEvent(t, got[1], models.StatusProcessing, 0)
	assertEvent(t, got[2], models.StatusProcessing, 50)
	assertEvent(t, got[3], models.StatusProcessing, 100)
	assertEvent(t, got[4], models.StatusProcessing, 120)
	assertEvent(t, got[5], models.StatusCompleted, 120)
	for _, ev := range got {
		if ev.SourceID != "articles" || ev.TotalUnits != 120 {
			t.Fatalf("unexpected event fields: %+v", ev)
		}
	}

	if emb.warmups != 1 {
		t.Fatalf("warmups = %d, want 1", emb.warmups)
	}
	if len(emb.batches) != 3 || len(emb.batches[0]) != 50 || len(emb.batches[1]) != 50 || len(emb.batches[2]) != 20 {
		t.Fatalf("unexpected batch sizes: %d", len(emb.batches))
	}

	status, err := store.EmbeddingStatus(context.Background(), "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if !status.IsVectorized || status.EmbeddingCount != 120 {
		t.Fatalf("status = %+v, want 120 records", status)
	}
	if status.EmbeddingModel != "fake-model" {
		t.Fatalf("model = %q, want fake-model", status.EmbeddingModel)
	}
	if len(status.VectorizedColumns) != 1 || status.VectorizedColumns[0] != "title+body" {
		t.Fatalf("columns = %v, want [title+body]", status.VectorizedColumns)
	}
}

func TestVectorizeTable_rerunReplacesRecords(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 30)
	ctx := context.Background()

	first := newFakeEmbedder()
	first.model = "fake-v1"
	v1, _ := newTestVectorizer(first)
	if err := v1.VectorizeTable(ctx, store, "articles", []string{"title"}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newFakeEmbedder()
	second.model = "fake-v2"
	v2, _ := newTestVectorizer(second)
	if err := v2.VectorizeTable(ctx, store, "articles", []string{"title"}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	status, err := store.EmbeddingStatus(ctx, "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if status.EmbeddingCount != 30 {
		t.Fatalf("count = %d, want 30 after rerun", status.EmbeddingCount)
	}
	if status.EmbeddingModel != "fake-v2" {
		t.Fatalf("model = %q, want fake-v2", status.EmbeddingModel)
	}
}

func TestVectorizeTable_cancelDuringBatch(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 120)
	emb := newFakeEmbedder()
	v, hub := newTestVectorizer(emb)
	emb.onBatch = func(call int, texts []string) {
		if call == 1 {
			v.Cancel("articles")
		}
	}
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	if err := v.VectorizeTable(context.Background(), store, "articles", []string{"title", "body"}); err != nil {
		t.Fatalf("VectorizeTable: %v", err)
	}

	got := drainEvents(events)
	last := got[len(got)-1]
	assertEvent(t, last, models.StatusCancelled, 50)
	if len(emb.batches) != 1 {
		t.Fatalf("embedded %d batches after cancel, want 1", len(emb.batches))
	}

	status, err := store.EmbeddingStatus(context.Background(), "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if status.EmbeddingCount != 50 {
		t.Fatalf("count = %d, want the 50 rows committed before cancellation", status.EmbeddingCount)
	}
}

func TestVectorizeTable_staleCancelRequestIgnored(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 20)
	emb := newFakeEmbedder()
	v, _ := newTestVectorizer(emb)

	// A request left over from before the job starts must not cancel it.
	v.Cancel("articles")
	if err := v.VectorizeTable(context.Background(), store, "articles", []string{"title"}); err != nil {
		t.Fatalf("VectorizeTable: %v", err)
	}

	status, err := store.EmbeddingStatus(context.Background(), "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if status.EmbeddingCount != 20 {
		t.Fatalf("count = %d, want full 20", status.EmbeddingCount)
	}
}

func TestVectorizeTable_embedErrorKeepsEarlierBatches(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 120)
	emb := newFakeEmbedder()
	emb.errOnCall = 2
	v, hub := newTestVectorizer(emb)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	err := v.VectorizeTable(context.Background(), store, "articles", []string{"title", "body"})
	if err == nil || !strings.Contains(err.Error(), "embed failed") {
		t.Fatalf("err = %v, want embed failure", err)
	}

	got := drainEvents(events)
	last := got[len(got)-1]
	if last.Status != models.StatusError || last.Error == "" {
		t.Fatalf("last event = %+v, want error status with message", last)
	}
	if last.ProcessedUnits != 50 {
		t.Fatalf("processed = %d, want 50 from the committed batch", last.ProcessedUnits)
	}

	status, err := store.EmbeddingStatus(context.Background(), "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if status.EmbeddingCount != 50 {
		t.Fatalf("count = %d, want 50 surviving records", status.EmbeddingCount)
	}
}

func TestVectorizeTable_warmupFailureKeepsPriorRecords(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 10)
	ctx := context.Background()

	prior := []storage.EmbeddingEntry{
		{RowID: 1, Content: "a", Vector: []float32{1, 0}},
		{RowID: 2, Content: "b", Vector: []float32{0, 1}},
		{RowID: 3, Content: "c", Vector: []float32{1, 1}},
	}
	if err := store.UpsertEmbeddings(ctx, "articles", "title", prior, "old-model"); err != nil {
		t.Fatalf("UpsertEmbeddings: %v", err)
	}

	emb := newFakeEmbedder()
	emb.warmupErr = errors.New("model not found")
	v, hub := newTestVectorizer(emb)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	err := v.VectorizeTable(ctx, store, "articles", []string{"title"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v, want warmup failure", err)
	}
	if len(emb.batches) != 0 {
		t.Fatalf("embed called %d times after failed warmup, want 0", len(emb.batches))
	}

	got := drainEvents(events)
	last := got[len(got)-1]
	assertEvent(t, last, models.StatusError, 0)

	status, err := store.EmbeddingStatus(ctx, "articles")
	if err != nil {
		t.Fatalf("EmbeddingStatus: %v", err)
	}
	if status.EmbeddingCount != 3 || status.EmbeddingModel != "old-model" {
		t.Fatalf("prior records disturbed by failed warmup: %+v", status)
	}
}

func TestVectorizeTable_countMismatch(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 50)
	emb := newFakeEmbedder()
	emb.shortBy = 1
	v, _ := newTestVectorizer(emb)

	err := v.VectorizeTable(context.Background(), store, "articles", []string{"title"})
	if err == nil || !strings.Contains(err.Error(), "embedding count mismatch: got 49, expected 50") {
		t.Fatalf("err = %v, want count mismatch", err)
	}

	status, statusErr := store.EmbeddingStatus(context.Background(), "articles")
	if statusErr != nil {
		t.Fatalf("EmbeddingStatus: %v", statusErr)
	}
	if status.EmbeddingCount != 0 {
		t.Fatalf("count = %d, want 0 after mismatched batch", status.EmbeddingCount)
	}
}

func TestVectorizeTable_requiresColumns(t *testing.T) {
	store := openTestStore(t)
	seedArticles(t, store, 5)
	v, _ := newTestVectorizer(newFakeEmbedder())

	err := v.VectorizeTable(context.Background(), store, "articles", nil)
	if err == nil || !strings.Contains(err.Error(), "no columns") {
		t.Fatalf("err = %v, want column validation error", err)
	}
}

func TestVectorizeDocument_fullRun(t *testing.T) {
	store := openTestStore(t)
	docID := seedDocument(t, store, 45)
	emb := newFakeEmbedder()
	v, hub := newTestVectorizer(emb)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	if err := v.VectorizeDocument(context.Background(), store, docID); err != nil {
		t.Fatalf("VectorizeDocument: %v", err)
	}

	got := drainEvents(events)
	if len(got) != 6 {
		t.Fatalf("got %d events, want 6: %+v", len(got), got)
	}
	assertEvent(t, got[0], models.StatusLoadingModel, 0)
	assertEvent(t, got[1], models.StatusProcessing, 0)
	assertEvent(t, got[2], models.StatusProcessing, 20)
	assertEvent(t, got[3], models.StatusProcessing, 40)
	assertEvent(t, got[4], models.StatusProcessing, 45)
	assertEvent(t, got[5], models.StatusCompleted, 45)

	embedded, err := store.CountEmbeddedChunks(context.Background(), docID)
	if err != nil {
		t.Fatalf("CountEmbeddedChunks: %v", err)
	}
	if embedded != 45 {
		t.Fatalf("embedded chunks = %d, want 45", embedded)
	}

	doc, err := store.GetDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !doc.Vectorized {
		t.Fatal("document not marked vectorized after completion")
	}
}

func TestVectorizeDocument_modelSwitchRestamps(t *testing.T) {
	store := openTestStore(t)
	docID := seedDocument(t, store, 5)
	ctx := context.Background()

	first := newFakeEmbedder()
	first.model = "fake-v1"
	v1, _ := newTestVectorizer(first)
	if err := v1.VectorizeDocument(ctx, store, docID); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newFakeEmbedder()
	second.model = "fake-v2"
	v2, _ := newTestVectorizer(second)
	if err := v2.VectorizeDocument(ctx, store, docID); err != nil {
		t.Fatalf("second run: %v", err)
	}

	chunks, err := store.ChunkPage(ctx, docID, 10, 0)
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	for _, c := range chunks {
		if c.EmbeddingModel != "fake-v2" {
			t.Fatalf("chunk %d model = %q, want fake-v2", c.ChunkIndex, c.EmbeddingModel)
		}
	}
}

func TestVectorizeDocument_cancelKeepsPartial(t *testing.T) {
	store := openTestStore(t)
	docID := seedDocument(t, store, 45)
	emb := newFakeEmbedder()
	v, hub := newTestVectorizer(emb)
	emb.onBatch = func(call int, texts []string) {
		if call == 1 {
			v.Cancel(docID)
		}
	}
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	if err := v.VectorizeDocument(context.Background(), store, docID); err != nil {
		t.Fatalf("VectorizeDocument: %v", err)
	}

	got := drainEvents(events)
	assertEvent(t, got[len(got)-1], models.StatusCancelled, 20)

	embedded, err := store.CountEmbeddedChunks(context.Background(), docID)
	if err != nil {
		t.Fatalf("CountEmbeddedChunks: %v", err)
	}
	if embedded != 20 {
		t.Fatalf("embedded chunks = %d, want 20 from the finished batch", embedded)
	}

	doc, err := store.GetDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Vectorized {
		t.Fatal("cancelled document must not be marked vectorized")
	}
}

func TestVectorizeDocument_missingDocument(t *testing.T) {
	store := openTestStore(t)
	v, hub := newTestVectorizer(newFakeEmbedder())
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	err := v.VectorizeDocument(context.Background(), store, uuid.New().String())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := drainEvents(events); len(got) != 0 {
		t.Fatalf("got %d events for missing document, want none", len(got))
	}
}
