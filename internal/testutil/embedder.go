// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/cortexai/coursebot/internal/embedding"
)

// VocabEmbedder gives every distinct token its own dimension, so two texts are
// similar exactly when they share words. Unlike hashing it has no collisions
// as long as the vocabulary stays below Dims.
type VocabEmbedder struct {
	Dims int

	mu    sync.Mutex
	vocab map[string]int
}

func NewVocabEmbedder() *VocabEmbedder {
	return &VocabEmbedder{Dims: 1024, vocab: make(map[string]int)}
}

func (v *VocabEmbedder) ID() string    { return "vocab" }
func (v *VocabEmbedder) Model() string { return "test" }

func (v *VocabEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.embed(text), nil
}

func (v *VocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *VocabEmbedder) embed(text string) []float32 {
	vec := make([]float32, v.Dims)
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, tok := range embedding.Tokenize(text) {
		idx, ok := v.vocab[tok]
		if !ok {
			idx = len(v.vocab) % v.Dims
			v.vocab[tok] = idx
		}
		vec[idx]++
	}
	return embedding.Normalize(vec)
}
