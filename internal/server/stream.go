package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wes/duckbake/internal/chat"
	"github.com/wes/duckbake/internal/storage"
)

// handleEvents streams vectorization progress as server-sent events.
// Every subscriber sees every event; slow readers miss events rather
// than stall the pipeline.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	events, cancel := s.c.Hub.Subscribe()
	defer cancel()

	sseHeaders(w)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

type chatStreamRequest struct {
	Messages []chat.Message `json:"messages"`
}

// handleChat relays a conversation to the chat model and streams the
// answer back as SSE. The model is given a summary of the project's
// tables so it can write queries against them.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.projectStore(w, r)
	if !ok {
		return
	}
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, "messages are required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	contextText, err := databaseContext(r.Context(), store)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sseHeaders(w)
	flusher.Flush()

	err = s.c.Chat.Stream(r.Context(), req.Messages, contextText, func(delta string) error {
		payload, err := json.Marshal(map[string]string{"content": delta})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", payload)
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone, so the failure travels as an event.
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// databaseContext renders one "table(col, col)" line per user table for
// the chat system prompt. An empty database renders as an empty string.
func databaseContext(ctx context.Context, store *storage.Store) (string, error) {
	tables, err := store.ListTables(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, table := range tables {
		schema, err := store.TableSchema(ctx, table.Name)
		if err != nil {
			return "", err
		}
		names := make([]string, len(schema.Columns))
		for i, col := range schema.Columns {
			names[i] = col.Name
		}
		fmt.Fprintf(&b, "%s(%s)\n", table.Name, strings.Join(names, ", "))
	}
	return strings.TrimSpace(b.String()), nil
}
