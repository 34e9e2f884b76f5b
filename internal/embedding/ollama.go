package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/pkg/utils"
)

var (
	// ErrUnavailable marks connectivity failures, so callers can prompt the
	// user to start the server instead of showing a raw dial error.
	ErrUnavailable = errors.New("ollama service not available")
	// ErrTimeout marks calls that exceeded the configured bound. The model
	// may still be loading server-side, so a retry is reasonable.
	ErrTimeout = errors.New("request timed out")
)

// Client calls a local Ollama server. Embedding and warmup requests share a
// long timeout because first-use model loading is slow.
type Client struct {
	baseURL   string
	model     string
	keepAlive string
	timeout   time.Duration
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a client from the Ollama section of the config.
func NewClient(cfg config.OllamaConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.EmbeddingModel,
		keepAlive: cfg.KeepAlive,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ModelInfo describes one model installed on the server.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
	ModifiedAt string `json:"modified_at"`
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Warmup sends a single throwaway input so the model is loaded into memory
// before the first real batch. The returned vector is discarded.
func (c *Client) Warmup(ctx context.Context) error {
	c.logger.Debug("warming up embedding model", zap.String("model", c.model))
	_, err := c.postEmbed(ctx, []string{"warmup"}, "model warmup")
	return err
}

// Embed returns the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := c.postEmbed(ctx, texts, "embedding request")
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) postEmbed(ctx context.Context, texts []string, op string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model:     c.model,
		Input:     texts,
		KeepAlive: c.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		excerpt := utils.Excerpt(body, 200)
		return nil, fmt.Errorf("%s failed (%d): %s. Make sure '%s' model is installed (ollama pull %s)",
			op, resp.StatusCode, excerpt, c.model, c.model)
	}

	var res embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	return res.Embeddings, nil
}

func (c *Client) transportError(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%s: %w after %d seconds, the model may still be loading, try again",
			op, ErrTimeout, int(c.timeout.Seconds()))
	}
	return fmt.Errorf("%s: %w at %s: %v", op, ErrUnavailable, c.baseURL, err)
}

// Available probes the version endpoint. An unreachable or unhealthy server
// reports as not connected rather than as an error.
func (c *Client) Available(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return false, ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, ""
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return false, ""
	}
	return true, v.Version
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w at %s: %v", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: %w (status %d)", ErrUnavailable, resp.StatusCode)
	}
	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	return tags.Models, nil
}
