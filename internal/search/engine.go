// Package search runs similarity search over vectorized tables and
// documents. Table search is purely semantic; document search runs semantic
// and keyword lookups in parallel and returns the two result lists side by
// side without merging their score spaces.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/keyword"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/storage"
)

// queryCacheSize bounds the number of cached query vectors.
const queryCacheSize = 128

// Options selects which document search paths run. The zero value runs
// nothing, so callers default both to true.
type Options struct {
	Semantic bool
	Keyword  bool
}

// Engine answers search requests against a project's store.
type Engine struct {
	embedder     embedding.Embedder
	keyword      keyword.Index
	cache        *embedding.QueryCache
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger
}

// NewEngine creates a search engine. kw may be nil, which disables the
// keyword path.
func NewEngine(embedder embedding.Embedder, kw keyword.Index, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{
		embedder:     embedder,
		keyword:      kw,
		cache:        embedding.NewQueryCache(queryCacheSize),
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       logger,
	}
}

func (e *Engine) clampK(k int) int {
	if k <= 0 {
		k = e.defaultLimit
	}
	if e.maxLimit > 0 && k > e.maxLimit {
		k = e.maxLimit
	}
	return k
}

// queryVector embeds queryText, serving repeated queries from the cache.
// Cache entries are scoped by model so a model switch never reuses vectors.
func (e *Engine) queryVector(ctx context.Context, queryText string) ([]float32, error) {
	model := e.embedder.Model()
	if vec, ok := e.cache.Get(model, queryText); ok {
		return vec, nil
	}
	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	e.cache.Set(model, queryText, vec)
	return vec, nil
}

// SearchTable embeds queryText and returns the k most similar rows of a
// vectorized table. A table without embedding records yields an empty result.
func (e *Engine) SearchTable(ctx context.Context, store *storage.Store, table, queryText string, k int) ([]models.TableSearchResult, error) {
	k = e.clampK(k)
	vec, err := e.queryVector(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return store.SearchEmbeddings(ctx, table, vec, k)
}

// SearchDocuments returns chunk-level semantic hits joined to their parent
// documents plus document-level keyword hits, up to k of each. The selected
// paths run concurrently; the first failure fails the whole request.
func (e *Engine) SearchDocuments(ctx context.Context, store *storage.Store, projectID, queryText string, k int, opts Options) (*models.DocumentSearchResponse, error) {
	startTime := time.Now()
	k = e.clampK(k)

	resp := &models.DocumentSearchResponse{Query: queryText}
	var (
		wg      sync.WaitGroup
		errChan = make(chan error, 2)
	)

	if opts.Semantic {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := e.queryVector(ctx, queryText)
			if err != nil {
				errChan <- fmt.Errorf("failed to embed query: %w", err)
				return
			}
			results, err := store.SearchChunks(ctx, vec, k)
			if err != nil {
				errChan <- fmt.Errorf("semantic search failed: %w", err)
				return
			}
			resp.SemanticResults = results
		}()
	}

	if opts.Keyword && e.keyword != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.keyword.Search(ctx, projectID, queryText, k)
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			results := make([]models.KeywordSearchResult, 0, len(hits))
			for _, hit := range hits {
				doc, err := store.GetDocument(ctx, hit.DocumentID)
				if err != nil {
					// An index entry can outlive its row briefly during
					// deletion; skip rather than fail the search.
					continue
				}
				results = append(results, models.KeywordSearchResult{
					DocumentID: hit.DocumentID,
					Filename:   doc.Filename,
					Score:      hit.Score,
				})
			}
			resp.KeywordResults = results
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	if resp.SemanticResults == nil {
		resp.SemanticResults = []models.DocumentSearchResult{}
	}
	if resp.KeywordResults == nil {
		resp.KeywordResults = []models.KeywordSearchResult{}
	}
	resp.QueryTimeMillis = time.Since(startTime).Milliseconds()

	e.logger.Debug("document search",
		zap.String("project", projectID),
		zap.Int("semantic", len(resp.SemanticResults)),
		zap.Int("keyword", len(resp.KeywordResults)),
		zap.Int64("ms", resp.QueryTimeMillis))
	return resp, nil
}
