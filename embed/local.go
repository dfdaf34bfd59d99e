package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/ucc/retry"
)

// LocalEmbedder calls an Ollama embeddings endpoint. Ollama embeds one text
// per request, so batches loop.
type LocalEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewLocalEmbedder builds a local backend. endpoint defaults to the standard
// Ollama address.
func NewLocalEmbedder(endpoint, model string) *LocalEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &LocalEmbedder{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		client:   httpClient(),
	}
}

// ModelID implements Embedder.
func (l *LocalEmbedder) ModelID() string {
	return "local/" + l.model
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed implements Embedder.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(localRequest{Model: l.model, Prompt: text})
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("marshal request: %w", err))
	}

	respBody, err := postJSON(ctx, l.client, l.endpoint+"/api/embeddings", nil, body)
	if err != nil {
		return nil, err
	}

	var parsed localResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, retry.Fatal(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Embedding) == 0 {
		return nil, retry.Fatal(fmt.Errorf("empty embedding for model %s", l.model))
	}
	return Normalize(parsed.Embedding), nil
}

// EmbedBatch implements Embedder.
func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}
