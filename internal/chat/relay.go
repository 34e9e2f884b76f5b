// Package chat relays streaming chat completions from a local Ollama
// endpoint. Responses arrive as NDJSON; each content delta is handed to the
// caller as it is decoded, nothing is buffered into a full answer.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/pkg/utils"
)

const systemPrompt = `You are a helpful data analyst assistant working with a SQLite project database. Answer questions about the data directly and concisely. When a SQL query would answer the question, include it in a sql code block using valid SQLite syntax with an appropriate LIMIT clause.`

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamChunk struct {
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Relay streams chat completions from the configured chat model.
type Relay struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// NewRelay creates a relay against cfg.BaseURL using cfg.ChatModel.
func NewRelay(cfg config.OllamaConfig, logger *zap.Logger) *Relay {
	return &Relay{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.ChatModel,
		// No client timeout: the stream stays open for as long as the model
		// generates. Callers cancel through ctx.
		http:   &http.Client{},
		logger: logger,
	}
}

// Model returns the configured chat model name.
func (r *Relay) Model() string { return r.model }

// Stream sends the conversation to the chat endpoint and invokes onDelta for
// every content fragment until the model reports done. A non-empty
// contextText is folded into the system message so the model can ground its
// answers in the project's schema. If onDelta returns an error the stream is
// abandoned and that error returned.
func (r *Relay) Stream(ctx context.Context, messages []Message, contextText string, onDelta func(delta string) error) error {
	system := systemPrompt
	if contextText != "" {
		system += "\n\nDATABASE CONTEXT:\n" + contextText
	} else {
		system += "\n\nNo tables in the database yet."
	}

	all := make([]Message, 0, len(messages)+1)
	all = append(all, Message{Role: "system", Content: system})
	all = append(all, messages...)

	body, err := json.Marshal(chatRequest{Model: r.model, Messages: all, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w at %s: %v", embedding.ErrUnavailable, r.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat failed (%d): %s. Make sure '%s' model is installed (ollama pull %s)",
			resp.StatusCode, utils.Excerpt(errBody, 200), r.model, r.model)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Lines outside the stream schema are skipped, matching the
			// endpoint's tolerance for keep-alive noise.
			continue
		}
		if chunk.Message != nil && chunk.Message.Content != "" {
			if err := onDelta(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("chat stream interrupted: %w", err)
	}
	return nil
}
