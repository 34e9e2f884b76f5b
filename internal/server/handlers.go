package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/importer"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/registry"
	"github.com/wes/duckbake/internal/search"
	"github.com/wes/duckbake/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ollamaStatusResponse struct {
	Connected bool                  `json:"connected"`
	Version   string                `json:"version,omitempty"`
	Models    []embedding.ModelInfo `json:"models"`
}

func (s *Server) handleOllamaStatus(w http.ResponseWriter, r *http.Request) {
	resp := ollamaStatusResponse{Models: []embedding.ModelInfo{}}
	resp.Connected, resp.Version = s.c.Ollama.Available(r.Context())
	if resp.Connected {
		models, err := s.c.Ollama.ListModels(r.Context())
		if err != nil {
			s.c.Logger.Warn("failed to list models", zap.Error(err))
		} else {
			resp.Models = models
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	project, err := s.c.Registry.Create(req.Name, req.Description)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.c.Inbox != nil {
		if err := s.c.Inbox.AddProject(project.ID); err != nil {
			s.c.Logger.Warn("failed to watch project inbox",
				zap.String("project", project.ID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.c.Registry.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	project, err := s.c.Registry.Update(chi.URLParam(r, "projectID"), req.Description)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "project not found")
		} else {
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	if s.c.Inbox != nil {
		s.c.Inbox.RemoveProject(project.ID)
	}
	// The open handle must go before the file does.
	if err := s.c.Stores.Release(project.ID); err != nil {
		s.c.Logger.Warn("failed to close project store",
			zap.String("project", project.ID), zap.Error(err))
	}
	if err := s.c.Registry.Delete(project.ID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.c.Keyword != nil {
		if err := s.c.Keyword.DeleteProject(r.Context(), project.ID); err != nil {
			s.c.Logger.Warn("failed to clear keyword entries",
				zap.String("project", project.ID), zap.Error(err))
		}
	}
	dbPath := s.c.Config.DatabasePath(project.ID)
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.c.Logger.Warn("failed to remove database file",
				zap.String("path", path), zap.Error(err))
		}
	}
	if err := os.RemoveAll(s.c.Config.InboxDir(project.ID)); err != nil {
		s.c.Logger.Warn("failed to remove inbox folder",
			zap.String("project", project.ID), zap.Error(err))
	}
	s.c.Logger.Info("project deleted", zap.String("project", project.ID))
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	tables, err := store.ListTables(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tables == nil {
		tables = []models.TableInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	schema, err := store.TableSchema(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		if strings.Contains(err.Error(), "table not found") {
			s.respondError(w, http.StatusNotFound, err.Error())
		} else {
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, schema)
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	table := chi.URLParam(r, "table")
	if err := store.DropTable(r.Context(), table); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.c.Logger.Info("table dropped", zap.String("table", table))
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type importRequest struct {
	Path  string `json:"path"`
	Table string `json:"table"`
	Mode  string `json:"mode"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.Table == "" {
		s.respondError(w, http.StatusBadRequest, "path and table are required")
		return
	}
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.c.Importer.Import(r.Context(), store, req.Table, req.Path, mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	preview, err := s.c.Importer.Preview(path, limit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, preview)
}

type uploadRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	store, project, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	doc, err := s.c.Documents.Upload(r.Context(), store, project.ID, req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	docs, err := s.c.Documents.List(r.Context(), store)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	doc, err := s.c.Documents.Get(r.Context(), store, chi.URLParam(r, "documentID"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	if err := s.c.Documents.Delete(r.Context(), store, chi.URLParam(r, "documentID")); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type vectorizeTableRequest struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

func (s *Server) handleVectorizeTable(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req vectorizeTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Table == "" || len(req.Columns) == 0 {
		s.respondError(w, http.StatusBadRequest, "table and columns are required")
		return
	}
	exists, err := store.TableExists(r.Context(), req.Table)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		s.respondError(w, http.StatusNotFound, "table not found: "+req.Table)
		return
	}
	s.startJob(func(ctx context.Context) {
		if err := s.c.Vectorizer.VectorizeTable(ctx, store, req.Table, req.Columns); err != nil {
			s.c.Logger.Error("table vectorization failed",
				zap.String("table", req.Table), zap.Error(err))
		}
	})
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"source_id": req.Table,
		"status":    "started",
	})
}

type vectorizeDocumentRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *Server) handleVectorizeDocument(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req vectorizeDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		s.respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if _, err := store.GetDocument(r.Context(), req.DocumentID); err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.startJob(func(ctx context.Context) {
		if err := s.c.Vectorizer.VectorizeDocument(ctx, store, req.DocumentID); err != nil {
			s.c.Logger.Error("document vectorization failed",
				zap.String("document", req.DocumentID), zap.Error(err))
		}
	})
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"source_id": req.DocumentID,
		"status":    "started",
	})
}

type vectorizeCancelRequest struct {
	SourceID string `json:"source_id"`
}

func (s *Server) handleVectorizeCancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	var req vectorizeCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" {
		s.respondError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	s.c.Vectorizer.Cancel(req.SourceID)
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleVectorizeStatus(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		s.respondError(w, http.StatusBadRequest, "table is required")
		return
	}
	status, err := store.EmbeddingStatus(r.Context(), table)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

type searchTableRequest struct {
	Table string `json:"table"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleSearchTable(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req searchTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Table == "" || req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "table and query are required")
		return
	}
	results, err := s.c.Engine.SearchTable(r.Context(), store, req.Table, req.Query, req.Limit)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	if results == nil {
		results = []models.TableSearchResult{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type searchDocumentsRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Semantic *bool  `json:"semantic,omitempty"`
	Keyword  *bool  `json:"keyword,omitempty"`
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	store, project, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req searchDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts := search.Options{Semantic: true, Keyword: true}
	if req.Semantic != nil {
		opts.Semantic = *req.Semantic
	}
	if req.Keyword != nil {
		opts.Keyword = *req.Keyword
	}
	response, err := s.c.Engine.SearchDocuments(r.Context(), store, project.ID, req.Query, req.Limit, opts)
	if err != nil {
		s.respondUpstreamError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		s.respondError(w, http.StatusBadRequest, "sql is required")
		return
	}
	result, err := store.Query(r.Context(), req.SQL)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// lookupProject resolves the project named in the URL without opening
// its store. On failure the response is already written.
func (s *Server) lookupProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	project, err := s.c.Registry.Get(chi.URLParam(r, "projectID"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "project not found")
		} else {
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return project, true
}

// projectStore resolves the project in the URL and returns its open
// store. On failure the response is already written.
func (s *Server) projectStore(w http.ResponseWriter, r *http.Request) (*storage.Store, *models.Project, bool) {
	project, ok := s.lookupProject(w, r)
	if !ok {
		return nil, nil, false
	}
	store, err := s.c.Stores.Acquire(project.ID, s.c.Config.DatabasePath(project.ID))
	if err != nil {
		s.c.Logger.Error("failed to open project database",
			zap.String("project", project.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to open project database")
		return nil, nil, false
	}
	return store, project, true
}

// respondUpstreamError maps embedding backend failures to gateway-style
// statuses so clients can tell "start the model server" apart from a bug.
func (s *Server) respondUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, embedding.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, embedding.ErrTimeout):
		s.respondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
