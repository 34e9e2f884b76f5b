// Package server provides the HTTP API for DuckBake.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/chat"
	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/documents"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/importer"
	"github.com/wes/duckbake/internal/keyword"
	"github.com/wes/duckbake/internal/registry"
	"github.com/wes/duckbake/internal/search"
	"github.com/wes/duckbake/internal/storage"
	"github.com/wes/duckbake/internal/vectorize"
	"github.com/wes/duckbake/internal/watcher"
)

// Components bundles everything the HTTP API serves. The Inbox is
// optional; everything else must be set.
type Components struct {
	Config     *config.Config
	Registry   *registry.Registry
	Stores     *storage.Cache
	Ollama     *embedding.Client
	Vectorizer *vectorize.Vectorizer
	Hub        *vectorize.Hub
	Engine     *search.Engine
	Documents  *documents.Service
	Importer   *importer.Importer
	Keyword    keyword.Index
	Chat       *chat.Relay
	Inbox      *watcher.Inbox
	Logger     *zap.Logger
}

// Server is the HTTP server for the DuckBake API.
type Server struct {
	c      *Components
	server *http.Server
	jobs   sync.WaitGroup
}

// NewServer creates a server over the given components.
func NewServer(c *Components) *Server {
	return &Server{c: c}
}

// Router builds the API handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// No Timeout middleware: the events stream lives until the client hangs
	// up, and search requests may wait on a cold model load.
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ollama/status", s.handleOllamaStatus)
		// Streams until the client hangs up.
		r.Get("/events", s.handleEvents)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject)
			r.Get("/", s.handleListProjects)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handleUpdateProject)
				r.Delete("/", s.handleDeleteProject)

				r.Get("/tables", s.handleListTables)
				r.Get("/tables/{table}", s.handleTableSchema)
				r.Delete("/tables/{table}", s.handleDropTable)

				r.Post("/import", s.handleImport)
				r.Get("/import/preview", s.handleImportPreview)

				r.Post("/documents", s.handleUploadDocument)
				r.Get("/documents", s.handleListDocuments)
				r.Get("/documents/{documentID}", s.handleGetDocument)
				r.Delete("/documents/{documentID}", s.handleDeleteDocument)

				r.Post("/vectorize/table", s.handleVectorizeTable)
				r.Post("/vectorize/document", s.handleVectorizeDocument)
				r.Post("/vectorize/cancel", s.handleVectorizeCancel)
				r.Get("/vectorize/status", s.handleVectorizeStatus)

				r.Post("/search/table", s.handleSearchTable)
				r.Post("/search/documents", s.handleSearchDocuments)
				r.Post("/query", s.handleQuery)
				r.Post("/chat", s.handleChat)
			})
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.c.Config.Server.Host, s.c.Config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.c.Logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server, then waits for in-flight
// vectorization jobs until ctx expires. Interrupted jobs keep the
// progress they made; a later run picks up by replacing their records.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.c.Logger.Warn("shutdown grace period expired with jobs running")
	}
	return err
}

// startJob runs fn on its own goroutine. Vectorization outlives the
// request that started it; callers follow along on the events stream.
func (s *Server) startJob(fn func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		fn(context.Background())
	}()
}
