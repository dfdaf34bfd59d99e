package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/ucc/retry"
)

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint.
type RemoteEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewRemoteEmbedder builds a remote backend. baseURL defaults to the OpenAI
// API; model must name an embeddings model.
func NewRemoteEmbedder(baseURL, apiKey, model string) *RemoteEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &RemoteEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpClient(),
	}
}

// ModelID implements Embedder.
func (r *RemoteEmbedder) ModelID() string {
	return "remote/" + r.model
}

type remoteRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type remoteResponse struct {
	Data []remoteEmbedding `json:"data"`
}

// Embed implements Embedder.
func (r *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Vectors come back in input order; the API's
// index field is honored in case the server reorders.
func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(remoteRequest{Model: r.model, Input: texts})
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("marshal request: %w", err))
	}

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["Authorization"] = "Bearer " + r.apiKey
	}

	respBody, err := postJSON(ctx, r.client, r.baseURL+"/embeddings", headers, body)
	if err != nil {
		return nil, err
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, retry.Fatal(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Data) != len(texts) {
		return nil, retry.Fatal(fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data)))
	}

	vecs := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, retry.Fatal(fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vecs[d.Index] = Normalize(d.Embedding)
	}
	return vecs, nil
}
