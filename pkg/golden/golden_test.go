package golden

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/store"
)

// fakeAnswerStore is an in-memory AnswerStore.
type fakeAnswerStore struct {
	mu         sync.Mutex
	clusters   map[string]*store.QueryCluster // by query hash
	answers    map[string]*store.GoldenAnswer // by cluster id
	routes     []*store.GoldenRoute
	usage      map[string]int
	routeUsage map[string]int
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{
		clusters:   make(map[string]*store.QueryCluster),
		answers:    make(map[string]*store.GoldenAnswer),
		usage:      make(map[string]int),
		routeUsage: make(map[string]int),
	}
}

func (f *fakeAnswerStore) seed(canonical, answer string) {
	clusterID := fmt.Sprintf("cluster-%d", len(f.answers)+1)
	f.clusters[QuestionHash(canonical)] = &store.QueryCluster{
		ClusterID: clusterID,
		QueryHash: QuestionHash(canonical),
		QueryText: canonical,
	}
	f.answers[clusterID] = &store.GoldenAnswer{
		ClusterID:         clusterID,
		CanonicalQuestion: canonical,
		Answer:            answer,
		Confidence:        1.0,
	}
}

func (f *fakeAnswerStore) LookupCluster(ctx context.Context, hash string) (*store.QueryCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clusters[hash]; ok {
		return c, nil
	}
	return nil, oerr.E(oerr.KindNotFound, "fake.LookupCluster", errors.New("no cluster"))
}

func (f *fakeAnswerStore) GetGoldenAnswer(ctx context.Context, clusterID string) (*store.GoldenAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.answers[clusterID]; ok {
		return a, nil
	}
	return nil, oerr.E(oerr.KindNotFound, "fake.GetGoldenAnswer", errors.New("no answer"))
}

func (f *fakeAnswerStore) ListGoldenAnswers(ctx context.Context) ([]*store.GoldenAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.GoldenAnswer
	for _, a := range f.answers {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAnswerStore) seedRoute(routeID, canonical string, collections ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, &store.GoldenRoute{
		RouteID:        routeID,
		CanonicalQuery: canonical,
		Collections:    collections,
	})
}

func (f *fakeAnswerStore) LoadGoldenRoutes(ctx context.Context) ([]*store.GoldenRoute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*store.GoldenRoute(nil), f.routes...), nil
}

func (f *fakeAnswerStore) CountGoldenRoutes(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routes), nil
}

func (f *fakeAnswerStore) IncrementGoldenUsage(ctx context.Context, clusterID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[clusterID]++
}

func (f *fakeAnswerStore) IncrementGoldenRouteUsage(ctx context.Context, routeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeUsage[routeID]++
}

func (f *fakeAnswerStore) routeUsageOf(routeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routeUsage[routeID]
}

func (f *fakeAnswerStore) usageOf(clusterID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[clusterID]
}

// scriptedEmbedder returns preassigned vectors per exact text.
type scriptedEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *scriptedEmbedder) Dimension() int   { return 3 }
func (s *scriptedEmbedder) Model() string    { return "scripted" }
func (s *scriptedEmbedder) Provider() string { return "scripted" }
func (s *scriptedEmbedder) Close() error     { return nil }

func (s *scriptedEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNormalizeAndHash(t *testing.T) {
	if NormalizeQuestion("  How Much is Investor KITAS?  ") != "how much is investor kitas?" {
		t.Error("normalization wrong")
	}
	if QuestionHash("How much is Investor KITAS?") != QuestionHash("how much is investor kitas?") {
		t.Error("hash not case-insensitive")
	}
	if QuestionHash("a") == QuestionHash("b") {
		t.Error("distinct questions collide")
	}
}

func TestLookup_ExactHitWithoutEmbedding(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seed("How much is Investor KITAS?", "Investor KITAS: 15,000,000 IDR per person.")
	emb := &scriptedEmbedder{}

	cache, err := NewCache(answers, emb, Config{})
	if err != nil {
		t.Fatal(err)
	}

	hit, err := cache.Lookup(context.Background(), "How much is Investor KITAS?")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil {
		t.Fatal("expected exact hit")
	}
	if hit.MatchType != "exact" {
		t.Errorf("match type = %s, want exact", hit.MatchType)
	}
	if hit.Answer.Answer != "Investor KITAS: 15,000,000 IDR per person." {
		t.Errorf("answer = %q", hit.Answer.Answer)
	}
	if emb.callCount() != 0 {
		t.Errorf("exact hit made %d embedding calls, want 0", emb.callCount())
	}

	// Usage increments asynchronously.
	deadline := time.Now().Add(time.Second)
	for answers.usageOf(hit.Answer.ClusterID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if answers.usageOf(hit.Answer.ClusterID) != 1 {
		t.Error("usage count not incremented")
	}
}

func TestLookup_SemanticHit(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seed("How much is Investor KITAS?", "Investor KITAS: 15,000,000 IDR per person.")

	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"how much is investor kitas?":           {1, 0, 0},
		"what's the price of the investor kitas?": {0.99, 0.14, 0},
	}}

	cache, err := NewCache(answers, emb, Config{SemanticThreshold: 0.85})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	hit, err := cache.Lookup(context.Background(), "What's the price of the Investor KITAS?")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil {
		t.Fatal("expected semantic hit")
	}
	if hit.MatchType != "semantic" {
		t.Errorf("match type = %s, want semantic", hit.MatchType)
	}
	if hit.Similarity < 0.85 {
		t.Errorf("similarity %f below threshold", hit.Similarity)
	}
	if hit.Answer.Answer != "Investor KITAS: 15,000,000 IDR per person." {
		t.Errorf("answer = %q", hit.Answer.Answer)
	}
}

func TestLookup_MissBelowThreshold(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seed("How much is Investor KITAS?", "Investor KITAS: 15,000,000 IDR per person.")

	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"how much is investor kitas?": {1, 0, 0},
		"how do i open a restaurant?": {0, 1, 0},
	}}

	cache, err := NewCache(answers, emb, Config{SemanticThreshold: 0.85})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	hit, err := cache.Lookup(context.Background(), "How do I open a restaurant?")
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Errorf("expected miss, got %+v", hit)
	}
}

func TestLookup_RouteHitSteersWithoutAnswer(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seed("How much is Investor KITAS?", "Investor KITAS: 15,000,000 IDR per person.")
	answers.seedRoute("route-tax", "How do I pay income tax?", "tax_genius", "legal_architect")

	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"how much is investor kitas?":  {1, 0, 0},
		"how do i pay income tax?":     {0, 1, 0},
		"how to pay my income taxes?":  {0.1, 0.99, 0},
	}}

	cache, err := NewCache(answers, emb, Config{SemanticThreshold: 0.85})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	hit, err := cache.Lookup(context.Background(), "How to pay my income taxes?")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil {
		t.Fatal("expected route hit")
	}
	if hit.Answer != nil {
		t.Error("route hit must not carry a curated answer")
	}
	if hit.MatchType != "route" {
		t.Errorf("match type = %s, want route", hit.MatchType)
	}
	if hit.Route == nil || hit.Route.RouteID != "route-tax" {
		t.Fatalf("route = %+v", hit.Route)
	}
	if len(hit.Route.Collections) == 0 || hit.Route.Collections[0] != "tax_genius" {
		t.Errorf("route collections = %v", hit.Route.Collections)
	}

	deadline := time.Now().Add(time.Second)
	for answers.routeUsageOf("route-tax") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if answers.routeUsageOf("route-tax") != 1 {
		t.Error("route usage count not incremented")
	}
}

func TestLoad_RouteMatrixKeyedOnRouteCount(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seedRoute("route-visa", "Which visa do I need?", "visa_oracle")

	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"which visa do i need?":       {1, 0, 0},
		"what about company permits?": {0, 1, 0},
	}}

	cache, err := NewCache(answers, emb, Config{SemanticThreshold: 0.85})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same count: the snapshot is reused without re-embedding.
	embedsAfterFirstLoad := emb.callCount()
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if emb.callCount() != embedsAfterFirstLoad {
		t.Error("unchanged route count re-embedded the matrix")
	}

	// Count change: the matrix regenerates and the new route is matchable.
	answers.seedRoute("route-kbli", "What about company permits?", "kbli_eye")
	if err := cache.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	hit, err := cache.Lookup(context.Background(), "What about company permits?")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || hit.Route == nil || hit.Route.RouteID != "route-kbli" {
		t.Fatalf("new route not matchable after regeneration: %+v", hit)
	}
}

func TestLookup_SemanticUnavailableBeforeLoad(t *testing.T) {
	answers := newFakeAnswerStore()
	answers.seed("How much is Investor KITAS?", "answer")
	emb := &scriptedEmbedder{}

	cache, err := NewCache(answers, emb, Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Matrix not loaded: unknown question is a plain miss.
	hit, err := cache.Lookup(context.Background(), "something else entirely")
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Error("expected miss before Load")
	}
}
