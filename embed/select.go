package embed

// Settings carries the backend wiring resolved from configuration.
type Settings struct {
	// Backend is one of "auto", "local", "remote".
	Backend string

	// Model is the embeddings model id.
	Model string

	// OllamaEndpoint is the local backend address.
	OllamaEndpoint string

	// APIBaseURL and APIKey configure the remote backend.
	APIBaseURL string
	APIKey     string
}

// Select resolves the configured backend. "auto" prefers the remote backend
// when credentials are present and falls back to local otherwise.
func Select(s Settings) Embedder {
	backend := s.Backend
	if backend == "" || backend == "auto" {
		if s.APIKey != "" {
			backend = "remote"
		} else {
			backend = "local"
		}
	}
	switch backend {
	case "remote":
		model := s.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewRemoteEmbedder(s.APIBaseURL, s.APIKey, model)
	default:
		model := s.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewLocalEmbedder(s.OllamaEndpoint, model)
	}
}
