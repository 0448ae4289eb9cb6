package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// localProvider embeds text by feature hashing of lowercase word unigrams and
// bigrams into a fixed number of signed buckets. It needs no network access and
// is meant for development and offline demos.
type localProvider struct {
	dims int
}

// NewLocalProvider returns a hashing provider with the given dimensionality.
func NewLocalProvider(dims int) Provider {
	if dims <= 0 {
		dims = 384
	}
	return &localProvider{dims: dims}
}

func (p *localProvider) ID() string    { return "local" }
func (p *localProvider) Model() string { return "feature-hash" }

func (p *localProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(text), nil
}

func (p *localProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *localProvider) embed(text string) []float32 {
	vec := make([]float32, p.dims)
	words := Tokenize(text)
	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(vec)
}

func (p *localProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
