// Package golden is the curated answer and routing cache. It matches
// incoming queries against known question clusters, first exactly by hash,
// then semantically against in-process embedding matrices: one over curated
// answers, one over golden routes that steer retrieval when no curated
// answer exists.
//
// The exact path never embeds anything, so a hit costs one relational
// lookup and zero vector or LLM traffic.
package golden

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/philippgille/chromem-go"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/store"
)

// Chromem collections holding the canonical-question and canonical-query
// embedding matrices.
const (
	answerMatrix = "golden_questions"
	routeMatrix  = "golden_routes"
)

// AnswerStore is the slice of the relational gateway the cache needs.
type AnswerStore interface {
	LookupCluster(ctx context.Context, queryHash string) (*store.QueryCluster, error)
	GetGoldenAnswer(ctx context.Context, clusterID string) (*store.GoldenAnswer, error)
	ListGoldenAnswers(ctx context.Context) ([]*store.GoldenAnswer, error)
	LoadGoldenRoutes(ctx context.Context) ([]*store.GoldenRoute, error)
	CountGoldenRoutes(ctx context.Context) (int, error)
	IncrementGoldenUsage(ctx context.Context, clusterID string)
	IncrementGoldenRouteUsage(ctx context.Context, routeID string)
}

// Hit is a cache match. Exactly one of Answer and Route is set: Answer
// short-circuits the whole pipeline, Route only steers retrieval.
type Hit struct {
	Answer *store.GoldenAnswer
	Route  *store.GoldenRoute

	// MatchType is "exact", "semantic" or "route".
	MatchType string

	// Similarity is the cosine similarity for semantic hits, 1.0 for exact.
	Similarity float32
}

// Cache is the two-level golden answer cache.
type Cache struct {
	answers  AnswerStore
	embedder embedder.Embedder

	threshold float32
	cachePath string

	mu        sync.RWMutex
	db        *chromem.DB
	answerCol *chromem.Collection
	routeCol  *chromem.Collection
	routes    map[string]*store.GoldenRoute
	ready     atomic.Bool
}

// Config configures the cache.
type Config struct {
	// SemanticThreshold is the cosine floor for a semantic hit.
	SemanticThreshold float32

	// CachePath persists the embedding matrices between restarts. Empty
	// keeps them in memory only.
	CachePath string
}

// NewCache creates the cache. Call Load to build the semantic matrices;
// until then only exact matching is available.
func NewCache(answers AnswerStore, emb embedder.Embedder, cfg Config) (*Cache, error) {
	threshold := cfg.SemanticThreshold
	if threshold == 0 {
		threshold = 0.85
	}

	var db *chromem.DB
	var err error
	if cfg.CachePath != "" {
		db, err = chromem.NewPersistentDB(cfg.CachePath, false)
		if err != nil {
			slog.Warn("Failed to open persistent golden cache, using in-memory", "error", err)
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &Cache{
		answers:   answers,
		embedder:  emb,
		threshold: threshold,
		cachePath: cfg.CachePath,
		db:        db,
	}, nil
}

// NormalizeQuestion lowercases and trims a question for exact matching.
// Punctuation is deliberately preserved: clusters are seeded from the same
// normalization, so stripping it here would orphan existing hashes.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// QuestionHash returns the MD5 hex digest of the normalized question.
func QuestionHash(q string) string {
	sum := md5.Sum([]byte(NormalizeQuestion(q)))
	return hex.EncodeToString(sum[:])
}

// Load builds or reuses the semantic matrices. Each matrix snapshot is
// keyed on its row count: a mismatch regenerates every embedding. Meant to
// run asynchronously at startup; Lookup degrades to exact-only until it
// completes.
func (c *Cache) Load(ctx context.Context) error {
	if err := c.loadRoutes(ctx); err != nil {
		return err
	}
	if err := c.loadAnswers(ctx); err != nil {
		return err
	}
	c.ready.Store(true)
	return nil
}

func (c *Cache) loadRoutes(ctx context.Context) error {
	routeCount, err := c.answers.CountGoldenRoutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to count golden routes: %w", err)
	}
	routes, err := c.answers.LoadGoldenRoutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load golden routes: %w", err)
	}

	byID := make(map[string]*store.GoldenRoute, len(routes))
	for _, r := range routes {
		byID[r.RouteID] = r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = byID

	col := c.db.GetCollection(routeMatrix, noEmbed)
	if col != nil && col.Count() == routeCount {
		c.routeCol = col
		slog.Info("Golden route matrix snapshot reused", "routes", routeCount)
		return nil
	}

	col, err = c.rebuildMatrix(ctx, routeMatrix, len(routes), func(i int) (id, text string) {
		return routes[i].RouteID, routes[i].CanonicalQuery
	})
	if err != nil {
		return err
	}
	c.routeCol = col
	slog.Info("Golden route matrix generated", "routes", len(routes))
	return nil
}

func (c *Cache) loadAnswers(ctx context.Context) error {
	answers, err := c.answers.ListGoldenAnswers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load golden answers: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.db.GetCollection(answerMatrix, noEmbed)
	if col != nil && col.Count() == len(answers) {
		c.answerCol = col
		slog.Info("Golden answer matrix snapshot reused", "questions", len(answers))
		return nil
	}

	col, err = c.rebuildMatrix(ctx, answerMatrix, len(answers), func(i int) (id, text string) {
		return answers[i].ClusterID, answers[i].CanonicalQuestion
	})
	if err != nil {
		return err
	}
	c.answerCol = col
	slog.Info("Golden answer matrix generated", "questions", len(answers))
	return nil
}

// rebuildMatrix drops and regenerates one embedding matrix. Caller holds
// the write lock.
func (c *Cache) rebuildMatrix(ctx context.Context, name string, n int, row func(i int) (id, text string)) (*chromem.Collection, error) {
	if c.db.GetCollection(name, noEmbed) != nil {
		if err := c.db.DeleteCollection(name); err != nil {
			return nil, fmt.Errorf("failed to reset %s matrix: %w", name, err)
		}
	}
	col, err := c.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s matrix: %w", name, err)
	}
	if n == 0 || c.embedder == nil {
		return col, nil
	}

	texts := make([]string, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i], texts[i] = row(i)
		texts[i] = NormalizeQuestion(texts[i])
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s matrix: %w", name, err)
	}

	docs := make([]chromem.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   texts[i],
			Metadata:  map[string]string{"id": ids[i]},
			Embedding: vectors[i],
		}
	}
	if err := col.AddDocuments(ctx, docs, 4); err != nil {
		return nil, fmt.Errorf("failed to build %s matrix: %w", name, err)
	}
	return col, nil
}

// Lookup checks the cache. A nil Hit with nil error is a miss. Usage
// counters are incremented in the background, never blocking the reply.
func (c *Cache) Lookup(ctx context.Context, query string) (*Hit, error) {
	// Exact: hash → cluster → answer. Runs before any embedding work.
	cluster, err := c.answers.LookupCluster(ctx, QuestionHash(query))
	if err == nil {
		answer, err := c.answers.GetGoldenAnswer(ctx, cluster.ClusterID)
		if err == nil {
			go c.answers.IncrementGoldenUsage(context.WithoutCancel(ctx), cluster.ClusterID)
			return &Hit{Answer: answer, MatchType: "exact", Similarity: 1.0}, nil
		}
		if !oerr.Is(err, oerr.KindNotFound) {
			return nil, err
		}
	} else if !oerr.Is(err, oerr.KindNotFound) {
		return nil, err
	}

	return c.semanticLookup(ctx, query)
}

// semanticLookup queries the answer matrix first; a curated answer beats a
// route. Below-threshold answers fall through to the route matrix.
func (c *Cache) semanticLookup(ctx context.Context, query string) (*Hit, error) {
	if !c.ready.Load() || c.embedder == nil {
		return nil, nil
	}

	c.mu.RLock()
	answerCol := c.answerCol
	routeCol := c.routeCol
	routes := c.routes
	c.mu.RUnlock()

	vec, err := c.embedder.Embed(ctx, NormalizeQuestion(query))
	if err != nil {
		// Semantic matching is an optimization; embedding trouble means a
		// miss, not a failure.
		slog.Warn("Golden semantic lookup degraded", "error", err)
		return nil, nil
	}

	if id, sim, ok := bestMatch(ctx, answerCol, vec, c.threshold); ok {
		answer, err := c.answers.GetGoldenAnswer(ctx, id)
		if err == nil {
			go c.answers.IncrementGoldenUsage(context.WithoutCancel(ctx), id)
			return &Hit{Answer: answer, MatchType: "semantic", Similarity: sim}, nil
		}
		if !oerr.Is(err, oerr.KindNotFound) {
			return nil, err
		}
	}

	if id, sim, ok := bestMatch(ctx, routeCol, vec, c.threshold); ok {
		if route, found := routes[id]; found {
			go c.answers.IncrementGoldenRouteUsage(context.WithoutCancel(ctx), id)
			return &Hit{Route: route, MatchType: "route", Similarity: sim}, nil
		}
	}

	return nil, nil
}

// bestMatch returns the closest document in col when it clears threshold.
func bestMatch(ctx context.Context, col *chromem.Collection, vec []float32, threshold float32) (string, float32, bool) {
	if col == nil || col.Count() == 0 {
		return "", 0, false
	}
	results, err := col.QueryEmbedding(ctx, vec, 1, nil, nil)
	if err != nil || len(results) == 0 {
		return "", 0, false
	}
	best := results[0]
	if best.Similarity < threshold {
		return "", 0, false
	}
	return best.Metadata["id"], best.Similarity, true
}

// noEmbed guards against accidental text embedding inside chromem: every
// document and query carries a precomputed vector.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("golden matrices require precomputed embeddings")
}
