package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/retry"
)

// Serialize local embedding requests. The sentence-transformer server runs a
// single model instance and degrades badly under concurrent batches.
var localEmbedMu sync.Mutex

// LocalEmbedder implements Embedder against a local sentence-transformer
// server speaking the same batch JSON protocol as Ollama's /api/embed.
//
// The default model is multilingual (Indonesian + English corpus) with
// 384-dimensional output.
type LocalEmbedder struct {
	client    *http.Client
	retryer   *retry.Retryer
	baseURL   string
	model     string
	dimension int
	batchSize int
}

// LocalConfig configures the local embedder.
type LocalConfig struct {
	// BaseURL of the embedding server (default: http://localhost:11434).
	BaseURL string

	// Model name (default: paraphrase-multilingual-minilm).
	Model string

	// Dimension of embeddings (default: 384).
	Dimension int

	// Timeout for requests (default: 30s).
	Timeout time.Duration

	// BatchSize per request (default: 32).
	BatchSize int
}

type localRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"` // string or []string
}

type localResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewLocalEmbedder creates a new local embedder.
func NewLocalEmbedder(cfg LocalConfig) (*LocalEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "paraphrase-multilingual-minilm"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 384
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 32
	}

	return &LocalEmbedder{
		client:    &http.Client{Timeout: timeout},
		retryer:   retry.New(retry.DefaultConfig()),
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

// Embed converts text to a vector embedding.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from local server")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts to vector embeddings.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	localEmbedMu.Lock()
	defer localEmbedMu.Unlock()

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		embeddings, err := retry.DoWithResult(ctx, e.retryer, "local embed", func() ([][]float32, error) {
			return e.embedBatch(ctx, batch)
		})
		if err != nil {
			if retry.IsExhausted(err) {
				return nil, oerr.E(oerr.KindEmbeddingUnavailable, "embedder.EmbedBatch", err)
			}
			return nil, err
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

func (e *LocalEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.Debug("Local embedding batch request", "model", e.model, "count", len(texts))

	var input interface{} = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	req := localRequest{
		Model: e.model,
		Input: input,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		slog.Error("Local embedding failed", "error", err, "model", e.model)
		return nil, fmt.Errorf("failed to send request to embedding server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, string(body))
	}

	var response localResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("received empty embeddings from server")
	}

	return response.Embeddings, nil
}

// Dimension returns the embedding vector dimension.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// Model returns the model name being used.
func (e *LocalEmbedder) Model() string {
	return e.model
}

// Provider returns "local".
func (e *LocalEmbedder) Provider() string {
	return "local"
}

// Close releases any resources.
func (e *LocalEmbedder) Close() error {
	return nil
}

// Ensure LocalEmbedder implements Embedder.
var _ Embedder = (*LocalEmbedder)(nil)
