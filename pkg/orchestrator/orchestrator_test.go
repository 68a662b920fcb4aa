package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidesk/oracle/pkg/golden"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/memory"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/retrieval"
	"github.com/balidesk/oracle/pkg/session"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/tools"
)

type fakeGolden struct {
	hit *golden.Hit
	err error
}

func (f *fakeGolden) Lookup(ctx context.Context, query string) (*golden.Hit, error) {
	return f.hit, f.err
}

type fakeRetriever struct {
	mu      sync.Mutex
	calls   int
	lastReq *retrieval.Request
	result  *retrieval.Result
	err     error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req *retrieval.Request) (*retrieval.Result, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &retrieval.Result{Query: req.Query}, nil
}

func (f *fakeRetriever) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRetriever) LastRequest() *retrieval.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeRecall struct {
	mu       sync.Mutex
	notes    []string
	searches []string
	stored   []string
	err      error
}

func (f *fakeRecall) Search(ctx context.Context, email, query string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.notes, f.err
}

func (f *fakeRecall) Store(ctx context.Context, email string, notes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, notes...)
	return nil
}

func (f *fakeRecall) Searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type fakeAssembler struct {
	ctx *memory.MemoryContext
	err error
}

func (f *fakeAssembler) Assemble(ctx context.Context, email, query string) (*memory.MemoryContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.ctx != nil {
		return f.ctx, nil
	}
	return &memory.MemoryContext{}, nil
}

type fakeMemoryWriter struct {
	mu       sync.Mutex
	existing *store.UserMemory
	upserted *store.UserMemory
}

func (f *fakeMemoryWriter) GetUserMemory(ctx context.Context, userID string) (*store.UserMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existing == nil {
		return nil, oerr.Errorf(oerr.KindNotFound, "test.GetUserMemory", "no memory for %s", userID)
	}
	return f.existing, nil
}

func (f *fakeMemoryWriter) UpsertUserMemory(ctx context.Context, m *store.UserMemory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = m
	return nil
}

type recordingTool struct {
	mu    sync.Mutex
	calls []map[string]interface{}
}

func (t *recordingTool) Def() llm.ToolDef {
	return llm.ToolDef{Name: "pricing_lookup", Description: "look up a price"}
}

func (t *recordingTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	return "KITAS investor: IDR 15,000,000", nil
}

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Chat == nil {
		cfg.Chat = &llm.FakeProvider{ModelName: "fake-model"}
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewMemoryStore()
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func TestProcessQuery_GoldenHitSkipsRetrievalAndLLM(t *testing.T) {
	chat := &llm.FakeProvider{ModelName: "fake-model"}
	retriever := &fakeRetriever{}
	sessions := session.NewMemoryStore()
	o := newTestOrchestrator(t, Config{
		Golden: &fakeGolden{hit: &golden.Hit{
			Answer:     &store.GoldenAnswer{Answer: "A KITAS investor permit costs IDR 15,000,000."},
			MatchType:  "exact",
			Similarity: 1.0,
		}},
		Retriever: retriever,
		Chat:      chat,
		Sessions:  sessions,
	})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "kitas cost",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, GoldenModelName, resp.ModelUsed)
	assert.Contains(t, resp.Answer, "15,000,000")
	assert.Equal(t, 0, retriever.Calls(), "golden hit must not touch retrieval")
	assert.Equal(t, 0, chat.Calls(), "golden hit must not touch the model")

	turns, err := sessions.Recent(context.Background(), resp.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, GoldenModelName, turns[1].Model)
}

func TestProcessQuery_RouteHitSteersRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "Income tax is paid monthly via DJP Online."}},
		},
	}
	o := newTestOrchestrator(t, Config{
		Golden: &fakeGolden{hit: &golden.Hit{
			Route:      &store.GoldenRoute{RouteID: "route-tax", Collections: []string{"tax_genius"}},
			MatchType:  "route",
			Similarity: 0.9,
		}},
		Retriever: retriever,
		Chat:      chat,
	})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "how do i pay income tax"})
	require.NoError(t, err)

	assert.Equal(t, "fake-model", resp.ModelUsed, "route hit must not short-circuit the answer")
	require.Equal(t, 1, retriever.Calls())
	assert.Equal(t, "tax_genius", retriever.LastRequest().CollectionOverride)
}

func TestProcessQuery_ExplicitCollectionBeatsRouteHit(t *testing.T) {
	retriever := &fakeRetriever{}
	o := newTestOrchestrator(t, Config{
		Golden: &fakeGolden{hit: &golden.Hit{
			Route:     &store.GoldenRoute{RouteID: "route-tax", Collections: []string{"tax_genius"}},
			MatchType: "route",
		}},
		Retriever: retriever,
		Chat: &llm.FakeProvider{ModelName: "fake-model", Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "ok"}},
		}},
	})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:              "how do i pay income tax",
		CollectionOverride: "visa_oracle",
	})
	require.NoError(t, err)
	assert.Equal(t, "visa_oracle", retriever.LastRequest().CollectionOverride)
}

func TestProcessQuery_IdentityQueryRecallsMemoryNotes(t *testing.T) {
	recall := &fakeRecall{notes: []string{"Runs a villa rental business in Canggu"}}
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "You run a villa rental business in Canggu."}},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat, Recall: recall})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "what can you do for me",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, recall.Searches())
	require.NotEmpty(t, chat.Requests())
	assert.Contains(t, chat.Requests()[0].System, "Runs a villa rental business in Canggu")
}

func TestProcessQuery_BusinessQuerySkipsRecall(t *testing.T) {
	recall := &fakeRecall{notes: []string{"note"}}
	o := newTestOrchestrator(t, Config{
		Recall: recall,
		Chat: &llm.FakeProvider{ModelName: "fake-model", Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "An investor KITAS costs IDR 15,000,000."}},
		}},
	})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "kitas cost",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, recall.Searches())
}

func TestProcessQuery_ToolLoop(t *testing.T) {
	tool := &recordingTool{}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tool))

	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "pricing_lookup", Input: map[string]interface{}{"service": "kitas investor"}},
			}}},
			{Resp: &llm.Response{Text: "An investor KITAS costs IDR 15,000,000 [1]."}},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat, Tools: registry})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "kitas cost"})
	require.NoError(t, err)

	assert.Equal(t, 2, chat.Calls())
	require.Len(t, tool.calls, 1)
	assert.Equal(t, "kitas investor", tool.calls[0]["service"])
	assert.Contains(t, resp.Answer, "15,000,000")
}

func TestProcessQuery_ToolHopLimit(t *testing.T) {
	tool := &recordingTool{}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tool))

	// The model never stops asking for tools; the loop must.
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "checking prices", ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "pricing_lookup", Input: map[string]interface{}{"service": "kitas"}},
			}}},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat, Tools: registry})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "kitas cost"})
	require.NoError(t, err)

	assert.Equal(t, maxToolHops+1, chat.Calls())
	assert.Equal(t, "checking prices", resp.Answer)
}

func TestProcessQuery_ConfiguredToolHopLimit(t *testing.T) {
	tool := &recordingTool{}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tool))

	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "checking prices", ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "pricing_lookup", Input: map[string]interface{}{"service": "kitas"}},
			}}},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat, Tools: registry, ToolHopLimit: 2})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "kitas cost"})
	require.NoError(t, err)
	assert.Equal(t, 3, chat.Calls())
}

func TestProcessQuery_RetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: oerr.Errorf(oerr.KindTransport, "test.Retrieve", "qdrant down")}
	o := newTestOrchestrator(t, Config{
		Retriever: retriever,
		Chat: &llm.FakeProvider{ModelName: "fake-model", Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "I cannot confirm the exact fee right now."}},
		}},
	})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "kitas cost"})
	require.NoError(t, err)

	assert.Equal(t, 1, retriever.Calls())
	assert.Contains(t, resp.Degraded, "retrieval")
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Answer)
}

func TestProcessQuery_LLMFailureReturnsLocalizedFallback(t *testing.T) {
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Err: oerr.Errorf(oerr.KindLLMUnavailable, "test.Generate", "all tiers exhausted")},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat})

	resp, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:            "berapa biaya kitas untuk investor",
		LanguageOverride: "",
	})
	require.NoError(t, err)

	assert.Equal(t, "fallback", resp.ModelUsed)
	assert.Contains(t, resp.Degraded, "llm")
	assert.Equal(t, oerr.FallbackMessage(oerr.KindLLMUnavailable, "id"), resp.Answer)
}

func TestProcessQuery_CancelledRequestPersistsNothing(t *testing.T) {
	sessions := session.NewMemoryStore()
	o := newTestOrchestrator(t, Config{Sessions: sessions})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.ProcessQuery(ctx, &QueryRequest{Query: "kitas cost", SessionID: "sess-1"})
	if err == nil {
		// The scripted model ignores cancellation, so the pipeline may
		// still produce an answer. Persistence must not have happened.
		turns, recentErr := sessions.Recent(context.Background(), "sess-1", 10)
		require.NoError(t, recentErr)
		assert.Empty(t, turns)
		return
	}
	assert.True(t, oerr.Is(err, oerr.KindCancelled))
}

func TestProcessQuery_EmptyQueryRejected(t *testing.T) {
	o := newTestOrchestrator(t, Config{})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{Query: "   "})
	require.Error(t, err)
	assert.True(t, oerr.Is(err, oerr.KindInputInvalid))
}

func TestProcessQuery_ExtractsFactsAfterBusinessAnswer(t *testing.T) {
	writer := &fakeMemoryWriter{}
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "An investor KITAS costs IDR 15,000,000."}},
			{Resp: &llm.Response{Text: `["Is applying for an investor KITAS"]`}},
		},
	}
	o := newTestOrchestrator(t, Config{Chat: chat, MemoryWriter: writer})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "kitas cost",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, writer.upserted)
	assert.Equal(t, []string{"Is applying for an investor KITAS"}, writer.upserted.ProfileFacts)
}

func TestProcessQuery_UpdatesUsageCounters(t *testing.T) {
	writer := &fakeMemoryWriter{}
	recall := &fakeRecall{}
	retriever := &fakeRetriever{result: &retrieval.Result{
		Results: []retrieval.Passage{{Text: "KITAS investor: IDR 15,000,000", Score: 0.9}},
	}}
	chat := &llm.FakeProvider{
		ModelName: "fake-model",
		Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "An investor KITAS costs IDR 15,000,000 [1]."}},
			{Resp: &llm.Response{Text: `["Is applying for an investor KITAS"]`}},
		},
	}
	o := newTestOrchestrator(t, Config{
		Chat:         chat,
		Retriever:    retriever,
		MemoryWriter: writer,
		Recall:       recall,
	})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "kitas cost",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, writer.upserted)
	assert.Equal(t, 1, writer.upserted.Counters["conversations"])
	assert.Equal(t, 1, writer.upserted.Counters["searches"])
	assert.Equal(t, []string{"Is applying for an investor KITAS"}, recall.stored)
}

func TestProcessQuery_GreetingCountsConversationOnly(t *testing.T) {
	writer := &fakeMemoryWriter{existing: &store.UserMemory{
		UserID:   "amanda@example.com",
		Counters: map[string]int{"conversations": 4},
	}}
	o := newTestOrchestrator(t, Config{
		Chat: &llm.FakeProvider{ModelName: "fake-model", Script: []llm.FakeResult{
			{Resp: &llm.Response{Text: "Hello! How can I help?"}},
		}},
		MemoryWriter: writer,
	})

	_, err := o.ProcessQuery(context.Background(), &QueryRequest{
		Query:     "hello",
		UserEmail: "amanda@example.com",
	})
	require.NoError(t, err)

	require.NotNil(t, writer.upserted)
	assert.Equal(t, 5, writer.upserted.Counters["conversations"])
	assert.Equal(t, 0, writer.upserted.Counters["searches"])
	assert.Empty(t, writer.upserted.ProfileFacts)
}

func TestBuildSystemPrompt_NumbersPassages(t *testing.T) {
	prompt := buildSystemPrompt("technical", nil, []retrieval.Passage{
		{Text: "KITAS validity is 2 years.", Metadata: map[string]interface{}{"title": "Visa Guide"}},
		{Text: "Extensions require a sponsor.", Metadata: map[string]interface{}{"source_file": "kitas.md"}},
	})

	assert.Contains(t, prompt, "[1] (Visa Guide)")
	assert.Contains(t, prompt, "[2] (kitas.md)")
	assert.Less(t, strings.Index(prompt, "[1]"), strings.Index(prompt, "[2]"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "it", detectLanguage("IT", "", "what is a kitas"))
	assert.Equal(t, "id", detectLanguage("", "id-ID", "what is a kitas"))
	assert.Equal(t, "id", detectLanguage("", "", "berapa biaya kitas untuk investor"))
	assert.Equal(t, "it", detectLanguage("", "", "quanto costa il kitas"))
	assert.Equal(t, "en", detectLanguage("", "", "how much is a kitas"))
}

func TestCleanResponse(t *testing.T) {
	in := "Answer.\n\n\n\nMore.\n\n"
	assert.Equal(t, "Answer.\n\nMore.", cleanResponse(in))
}

func TestUserLocks_SerializesAndEvicts(t *testing.T) {
	l := newUserLocks()
	l.cap = 2

	a := l.acquire("a")
	l.release(a)
	b := l.acquire("b")
	l.release(b)
	c := l.acquire("c")
	l.release(c)

	if len(l.locks) > 2 {
		t.Fatalf("expected eviction to cap the table at 2, got %d", len(l.locks))
	}

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := l.acquire("same-user")
			mu.Lock()
			order = append(order, "turn")
			mu.Unlock()
			l.release(entry)
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 10)
}
