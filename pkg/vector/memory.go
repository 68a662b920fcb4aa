package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/balidesk/oracle/pkg/oerr"
)

// MemoryStore is an in-process Store for tests and offline validation.
// It implements cosine similarity and the same contract enforcement as the
// Qdrant gateway.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection

	// SearchCalls counts Search invocations, so tests can assert that the
	// golden cache short-circuits retrieval.
	SearchCalls int
}

type memoryCollection struct {
	dim    int
	points map[string]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &memoryCollection{dim: dim, points: make(map[string]Point)}
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return oerr.E(oerr.KindCollectionMissing, "vector.Upsert",
			fmt.Errorf("collection %s does not exist", collection))
	}
	if err := validatePoints("vector.Upsert", col.dim, points); err != nil {
		return err
	}
	for _, p := range points {
		col.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, queryVector []float32, filter *Filter, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	s.SearchCalls++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, oerr.E(oerr.KindCollectionMissing, "vector.Search",
			fmt.Errorf("collection %s does not exist", collection))
	}
	if len(queryVector) != col.dim {
		return nil, oerr.E(oerr.KindDimensionMismatch, "vector.Search",
			fmt.Errorf("query vector length %d, collection dimension is %d", len(queryVector), col.dim))
	}

	var results []SearchResult
	for _, p := range col.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		results = append(results, SearchResult{
			ID:      p.ID,
			Score:   cosineSimilarity(queryVector, p.Vector),
			Payload: p.Payload,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		return oerr.E(oerr.KindCollectionMissing, "vector.Delete",
			fmt.Errorf("collection %s does not exist", collection))
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[collection]
	if !ok {
		return nil, oerr.E(oerr.KindCollectionMissing, "vector.Stats",
			fmt.Errorf("collection %s does not exist", collection))
	}
	return &CollectionStats{
		Name:       collection,
		PointCount: uint64(len(col.points)),
		Dimension:  col.dim,
	}, nil
}

func (s *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
