package vectorize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/storage"
)

// Vectorizer runs vectorization jobs over tables and documents. A job walks
// the state machine pending, loading_model, processing, then one of
// completed, cancelled, or error. Batches already written stay persisted
// whatever the terminal state; a fresh run always removes prior records
// first, so partial results never mix with a newer model's output.
type Vectorizer struct {
	embedder   embedding.Embedder
	hub        *Hub
	cancels    *CancellationSet
	tableBatch int
	chunkBatch int
	logger     *zap.Logger
}

// New creates a vectorizer using the given embedder for all jobs.
func New(embedder embedding.Embedder, hub *Hub, cancels *CancellationSet, cfg config.VectorizeConfig, logger *zap.Logger) *Vectorizer {
	return &Vectorizer{
		embedder:   embedder,
		hub:        hub,
		cancels:    cancels,
		tableBatch: cfg.TableBatchSize,
		chunkBatch: cfg.ChunkBatchSize,
		logger:     logger,
	}
}

// Cancel requests cancellation of the running job for sourceID, either a
// table name or a document id. It takes effect at the next batch boundary;
// a batch already in flight completes and stays persisted. With no job
// running the request has no effect.
func (v *Vectorizer) Cancel(sourceID string) {
	v.cancels.Request(sourceID)
	v.logger.Info("cancellation requested", zap.String("source", sourceID))
}

func (v *Vectorizer) emit(sourceID string, total, processed int, status models.JobStatus, errMsg string) {
	v.hub.Publish(models.ProgressEvent{
		SourceID:       sourceID,
		TotalUnits:     total,
		ProcessedUnits: processed,
		Status:         status,
		Error:          errMsg,
	})
}

// VectorizeTable embeds the given columns of every row of a table. Column
// values are cast to text and joined per row; the joined column names form
// the source column key on the stored records.
func (v *Vectorizer) VectorizeTable(ctx context.Context, store *storage.Store, table string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns selected for vectorization")
	}
	totalRows, err := store.CountRows(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	total := int(totalRows)

	v.cancels.Clear(table)
	v.emit(table, total, 0, models.StatusLoadingModel, "")
	v.logger.Info("vectorizing table",
		zap.String("table", table),
		zap.Strings("columns", columns),
		zap.Int("rows", total))

	// Warm-up failure stops the job before anything is fetched or removed,
	// so prior embeddings stay intact on this path.
	if err := v.embedder.Warmup(ctx); err != nil {
		v.emit(table, total, 0, models.StatusError, err.Error())
		return err
	}

	if err := store.RemoveEmbeddings(ctx, table); err != nil {
		v.emit(table, total, 0, models.StatusError, err.Error())
		return err
	}
	v.cancels.Clear(table)
	v.emit(table, total, 0, models.StatusProcessing, "")

	columnKey := storage.ColumnKey(columns)
	model := v.embedder.Model()
	processed := 0
	offset := 0

	for {
		if v.cancels.Consume(table) {
			v.emit(table, total, processed, models.StatusCancelled, "")
			v.logger.Info("table vectorization cancelled",
				zap.String("table", table), zap.Int("processed", processed))
			return nil
		}

		page, err := store.TextPage(ctx, table, columns, v.tableBatch, offset)
		if err != nil {
			v.emit(table, total, processed, models.StatusError, err.Error())
			return err
		}
		if len(page) == 0 {
			break
		}

		texts := make([]string, len(page))
		ids := make([]int64, len(page))
		for i, row := range page {
			texts[i] = row.Text
			ids[i] = row.RowID
		}

		vectors, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			v.emit(table, total, processed, models.StatusError, err.Error())
			return err
		}
		if len(vectors) != len(ids) {
			err := fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(ids))
			v.emit(table, total, processed, models.StatusError, err.Error())
			return err
		}

		entries := make([]storage.EmbeddingEntry, len(page))
		for i := range page {
			entries[i] = storage.EmbeddingEntry{RowID: ids[i], Content: texts[i], Vector: vectors[i]}
		}
		if err := store.UpsertEmbeddings(ctx, table, columnKey, entries, model); err != nil {
			v.emit(table, total, processed, models.StatusError, err.Error())
			return err
		}

		processed += len(page)
		offset += len(page)
		v.emit(table, total, processed, models.StatusProcessing, "")
	}

	v.emit(table, total, processed, models.StatusCompleted, "")
	v.logger.Info("table vectorization completed",
		zap.String("table", table), zap.Int("processed", processed))
	return nil
}

// VectorizeDocument embeds every chunk of a document and marks the document
// vectorized on completion. Prior chunk embeddings are cleared after warm-up
// so a rerun fully supersedes earlier results.
func (v *Vectorizer) VectorizeDocument(ctx context.Context, store *storage.Store, documentID string) error {
	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	totalChunks, err := store.CountChunks(ctx, documentID)
	if err != nil {
		return err
	}
	total := int(totalChunks)

	v.cancels.Clear(documentID)
	v.emit(documentID, total, 0, models.StatusLoadingModel, "")
	v.logger.Info("vectorizing document",
		zap.String("document", documentID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", total))

	if err := v.embedder.Warmup(ctx); err != nil {
		v.emit(documentID, total, 0, models.StatusError, err.Error())
		return err
	}

	if err := store.ClearChunkEmbeddings(ctx, documentID); err != nil {
		v.emit(documentID, total, 0, models.StatusError, err.Error())
		return err
	}
	v.cancels.Clear(documentID)
	v.emit(documentID, total, 0, models.StatusProcessing, "")

	model := v.embedder.Model()
	processed := 0
	offset := 0

	for {
		if v.cancels.Consume(documentID) {
			v.emit(documentID, total, processed, models.StatusCancelled, "")
			v.logger.Info("document vectorization cancelled",
				zap.String("document", documentID), zap.Int("processed", processed))
			return nil
		}

		chunks, err := store.ChunkPage(ctx, documentID, v.chunkBatch, offset)
		if err != nil {
			v.emit(documentID, total, processed, models.StatusError, err.Error())
			return err
		}
		if len(chunks) == 0 {
			break
		}

		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
			ids[i] = c.ID
		}

		vectors, err := v.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			v.emit(documentID, total, processed, models.StatusError, err.Error())
			return err
		}
		if len(vectors) != len(ids) {
			err := fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(ids))
			v.emit(documentID, total, processed, models.StatusError, err.Error())
			return err
		}

		entries := make([]storage.ChunkEmbedding, len(chunks))
		for i := range chunks {
			entries[i] = storage.ChunkEmbedding{ChunkID: ids[i], Vector: vectors[i]}
		}
		if err := store.UpdateChunkEmbeddings(ctx, entries, model); err != nil {
			v.emit(documentID, total, processed, models.StatusError, err.Error())
			return err
		}

		processed += len(chunks)
		offset += len(chunks)
		v.emit(documentID, total, processed, models.StatusProcessing, "")
	}

	if err := store.MarkDocumentVectorized(ctx, documentID); err != nil {
		v.emit(documentID, total, processed, models.StatusError, err.Error())
		return err
	}
	v.emit(documentID, total, processed, models.StatusCompleted, "")
	v.logger.Info("document vectorization completed",
		zap.String("document", documentID), zap.Int("processed", processed))
	return nil
}
