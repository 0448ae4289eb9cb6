package embedding

import (
	"context"
	"fmt"
	"math"
)

// Provider is the interface that all embedding backends must implement.
type Provider interface {
	// ID returns the provider identity (e.g. "openai", "local").
	ID() string
	// Model returns the model name.
	Model() string
	// EmbedQuery embeds a single text into a vector.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds multiple texts, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider string // "openai" | "local"
	APIKey   string
	BaseURL  string
	Model    string
	Dims     int
}

// New creates the provider named by opts.Provider.
func New(opts Options) (Provider, error) {
	switch opts.Provider {
	case "", "local":
		return NewLocalProvider(opts.Dims), nil
	case "openai":
		if opts.APIKey == "" && opts.BaseURL == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key or base URL")
		}
		return NewOpenAIProvider(OpenAIOptions{APIKey: opts.APIKey, BaseURL: opts.BaseURL, Model: opts.Model}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}

// ProviderKey returns a stable key identifier for the provider.
func ProviderKey(p Provider) string {
	return p.ID() + ":" + p.Model()
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	length := len(a)
	if len(b) < length {
		length = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < length; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Distance is the squared euclidean distance between the unit-length forms
// of a and b, i.e. 2*(1-cosine). It ranges from 0 (same direction) to 4.
func Distance(a, b []float32) float64 {
	return 2 * (1 - CosineSimilarity(a, b))
}
