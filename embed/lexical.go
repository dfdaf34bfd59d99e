package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// LexicalDim is the dimensionality of the hashed bag-of-words space.
const LexicalDim = 256

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// LexicalEmbedder is a deterministic hashed bag-of-words vectorizer. It is
// the fallback when no embedding backend is reachable, and the default in
// tests: same text always maps to the same unit vector, with shared tokens
// producing proportional overlap.
type LexicalEmbedder struct{}

// NewLexicalEmbedder returns the lexical vectorizer.
func NewLexicalEmbedder() *LexicalEmbedder {
	return &LexicalEmbedder{}
}

// ModelID implements Embedder.
func (l *LexicalEmbedder) ModelID() string {
	return "lexical/fnv-256"
}

// Embed implements Embedder.
func (l *LexicalEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, LexicalDim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % LexicalDim)
		// Sign bit from the hash spreads tokens over both directions,
		// reducing accidental collisions' similarity inflation.
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch implements Embedder.
func (l *LexicalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
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
