package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// FakeEmbedder produces deterministic pseudo-embeddings from a text hash.
// It exists for tests and offline tooling: identical inputs always produce
// identical unit-length vectors, and similar texts do NOT produce similar
// vectors (no semantics).
type FakeEmbedder struct {
	Dim int
}

// NewFakeEmbedder creates a fake embedder with the given dimension.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &FakeEmbedder{Dim: dim}
}

func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := sha256.Sum256([]byte(text))
	vec := make([]float32, f.Dim)
	var norm float64
	for i := 0; i < f.Dim; i++ {
		seed := binary.BigEndian.Uint32(h[(i*4)%28 : (i*4)%28+4])
		v := float32(seed%1000)/500.0 - 1.0
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (f *FakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *FakeEmbedder) Dimension() int   { return f.Dim }
func (f *FakeEmbedder) Model() string    { return "fake" }
func (f *FakeEmbedder) Provider() string { return "fake" }
func (f *FakeEmbedder) Close() error     { return nil }

var _ Embedder = (*FakeEmbedder)(nil)
