// Package retrieval runs the multi-collection search pipeline: route the
// query, embed it, fan out across collections with tier enforcement, merge
// and deduplicate, optionally rerank, and flag contradictory passages.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/vector"
)

// DefaultLimit is the result count when the caller does not specify one.
const DefaultLimit = 10

// rerankFanout widens the candidate pool fed to the reranker.
const rerankFanout = 3

// Request describes one retrieval run.
type Request struct {
	Query     string
	UserLevel int

	// Filter is merged with the tier filter. Optional.
	Filter *vector.Filter

	// CollectionOverride pins the search to one collection.
	CollectionOverride string

	// NoFilters disables both the tier filter and the caller filter.
	NoFilters bool

	Limit int
}

// Passage is one retrieved chunk.
type Passage struct {
	Text     string
	Score    float32
	Metadata map[string]interface{}
}

// Result is the retrieval outcome.
type Result struct {
	Query             string
	CollectionUsed    string
	Results           []Passage
	AllowedTiers      []string
	ConflictsDetected []Conflict
	ResolutionNotes   []string
	Reranked          bool
}

// Config tunes the engine. Zero values take the package defaults.
type Config struct {
	// DefaultLimit is the result count when the request does not set one.
	DefaultLimit int

	// RerankMultiplier widens the candidate pool fed to the reranker.
	RerankMultiplier int
}

// Engine ties routing, embedding and vector search together.
type Engine struct {
	embedder embedder.Embedder
	store    vector.Store
	reranker *Reranker
	cfg      Config
}

// NewEngine creates the engine. reranker may be nil to skip reranking.
func NewEngine(emb embedder.Embedder, store vector.Store, reranker *Reranker, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.RerankMultiplier <= 0 {
		cfg.RerankMultiplier = rerankFanout
	}
	return &Engine{embedder: emb, store: store, reranker: reranker, cfg: cfg}
}

// Retrieve runs the full pipeline for one query.
func (e *Engine) Retrieve(ctx context.Context, req *Request) (*Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	route := router.RouteCollections(req.Query, req.CollectionOverride)
	allowed := AllowedTiers(req.UserLevel)

	queryVector, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter *vector.Filter
	if !req.NoFilters {
		filter = mergeTierFilter(req.Filter, allowed)
	}

	// Fetch a wider pool when a reranker will narrow it down afterwards.
	searchLimit := limit
	if e.reranker != nil {
		searchLimit = limit * e.cfg.RerankMultiplier
	}

	var mu sync.Mutex
	var all []vector.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range route.Collections {
		g.Go(func() error {
			hits, err := e.store.Search(gctx, collection, queryVector, filter, searchLimit)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	passages := mergeResults(all, searchLimit)

	reranked := false
	if e.reranker != nil && len(passages) > 1 {
		if ordered, ok := e.reranker.Rerank(ctx, req.Query, passages); ok {
			passages = ordered
			reranked = true
		}
	}
	if len(passages) > limit {
		passages = passages[:limit]
	}

	conflicts, notes := DetectConflicts(passages)
	if len(conflicts) > 0 {
		slog.Debug("Conflicting passages detected",
			"query", req.Query, "conflicts", len(conflicts))
	}

	return &Result{
		Query:             req.Query,
		CollectionUsed:    route.CollectionName,
		Results:           passages,
		AllowedTiers:      allowed,
		ConflictsDetected: conflicts,
		ResolutionNotes:   notes,
		Reranked:          reranked,
	}, nil
}

// mergeTierFilter overlays the tier restriction on the caller's filter
// without mutating it.
func mergeTierFilter(base *vector.Filter, allowed []string) *vector.Filter {
	merged := &vector.Filter{InSet: map[string][]string{"tier": allowed}}
	if base == nil {
		return merged
	}
	if len(base.Equals) > 0 {
		merged.Equals = make(map[string]interface{}, len(base.Equals))
		for k, v := range base.Equals {
			merged.Equals[k] = v
		}
	}
	for k, v := range base.InSet {
		if k != "tier" {
			merged.InSet[k] = v
		}
	}
	if len(base.Range) > 0 {
		merged.Range = make(map[string]vector.RangeCond, len(base.Range))
		for k, v := range base.Range {
			merged.Range[k] = v
		}
	}
	return merged
}

// mergeResults sorts hits across collections by score and deduplicates by
// (parent_id, chunk_index).
func mergeResults(hits []vector.SearchResult, limit int) []Passage {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	seen := make(map[string]bool)
	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		key := fmt.Sprintf("%v:%v", h.Payload["parent_id"], h.Payload["chunk_index"])
		if seen[key] {
			continue
		}
		seen[key] = true

		text, _ := h.Payload["text"].(string)
		passages = append(passages, Passage{
			Text:     text,
			Score:    h.Score,
			Metadata: h.Payload,
		})
		if len(passages) == limit {
			break
		}
	}
	return passages
}
