// Package documents orchestrates document ingestion: extraction, storage,
// chunking, and keyword indexing.
package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/chunker"
	"github.com/wes/duckbake/internal/extract"
	"github.com/wes/duckbake/internal/keyword"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/storage"
)

// Service ingests document files into a project store and keeps the keyword
// index in step. Vectorization is a separate, explicit step.
type Service struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	keyword   keyword.Index
	logger    *zap.Logger
}

// NewService creates a document service. kw may be nil, which skips keyword
// indexing.
func NewService(extractor *extract.Extractor, ch *chunker.Chunker, kw keyword.Index, logger *zap.Logger) *Service {
	return &Service{
		extractor: extractor,
		chunker:   ch,
		keyword:   kw,
		logger:    logger,
	}
}

// Upload extracts the file at path, stores the document and its chunks, and
// indexes it for keyword search. The returned document carries its chunk
// count; chunks start unembedded.
func (s *Service) Upload(ctx context.Context, store *storage.Store, projectID, path string) (*models.Document, error) {
	text, fileType, err := s.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		Filename:    filepath.Base(path),
		ContentType: fileType,
		SizeBytes:   info.Size(),
		Content:     text,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	chunks := s.chunker.Chunk(doc.ID, text, fileType)
	if len(chunks) > 0 {
		if err := store.InsertChunks(ctx, chunks); err != nil {
			return nil, fmt.Errorf("failed to store chunks: %w", err)
		}
	}

	if s.keyword != nil {
		if err := s.keyword.Index(ctx, projectID, doc); err != nil {
			return nil, fmt.Errorf("failed to index keywords: %w", err)
		}
	}

	doc.ChunkCount = len(chunks)
	s.logger.Info("document uploaded",
		zap.String("project", projectID),
		zap.String("document", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// Delete removes a document, its chunks, and its keyword entry.
func (s *Service) Delete(ctx context.Context, store *storage.Store, documentID string) error {
	if err := store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if s.keyword != nil {
		if err := s.keyword.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("failed to remove keyword entry: %w", err)
		}
	}
	s.logger.Info("document deleted", zap.String("document", documentID))
	return nil
}

// Get returns one document including its content and chunk count.
func (s *Service) Get(ctx context.Context, store *storage.Store, documentID string) (*models.Document, error) {
	doc, err := store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	count, err := store.CountChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc.ChunkCount = int(count)
	return doc, nil
}

// List returns the project's documents, newest first, without content.
func (s *Service) List(ctx context.Context, store *storage.Store) ([]*models.Document, error) {
	return store.ListDocuments(ctx)
}
