// Package orchestrator runs the full query pipeline: classify, golden
// check, memory fetch, retrieval, prompt assembly, LLM tool loop, and
// post-turn persistence.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/balidesk/oracle/pkg/golden"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/memory"
	"github.com/balidesk/oracle/pkg/observability"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/retrieval"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/session"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/tools"
)

const (
	// maxToolHops bounds the tool-use loop per query.
	maxToolHops = 5

	// defaultQueryTimeout bounds one end-to-end request.
	defaultQueryTimeout = 60 * time.Second

	// GoldenModelName marks answers served from the golden cache.
	GoldenModelName = "golden_cache"
)

// ChatModel is the LLM surface the orchestrator needs.
type ChatModel interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// GoldenCache is the curated answer cache surface.
type GoldenCache interface {
	Lookup(ctx context.Context, query string) (*golden.Hit, error)
}

// Retriever runs the retrieval pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req *retrieval.Request) (*retrieval.Result, error)
}

// MemoryAssembler builds the per-user context.
type MemoryAssembler interface {
	Assemble(ctx context.Context, email, query string) (*memory.MemoryContext, error)
}

// MemoryWriter persists post-turn memory updates.
type MemoryWriter interface {
	GetUserMemory(ctx context.Context, userID string) (*store.UserMemory, error)
	UpsertUserMemory(ctx context.Context, m *store.UserMemory) error
}

// MemorySearcher recalls and stores user memory notes by similarity.
type MemorySearcher interface {
	Search(ctx context.Context, email, query string, limit int) ([]string, error)
	Store(ctx context.Context, email string, notes []string) error
}

// QueryRequest is one user query.
type QueryRequest struct {
	Query              string
	UserEmail          string
	SessionID          string
	LanguageOverride   string
	CollectionOverride string
}

// Source identifies where an answer passage came from.
type Source struct {
	DocID      string  `json:"doc_id"`
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// QueryResponse is the orchestrator's reply.
type QueryResponse struct {
	Answer    string               `json:"answer"`
	ModelUsed string               `json:"model_used"`
	Sources   []Source             `json:"sources"`
	Conflicts []retrieval.Conflict `json:"conflicts,omitempty"`
	Mode      string               `json:"mode"`
	Category  string               `json:"category"`
	LatencyMS int64                `json:"latency_ms"`
	SessionID string               `json:"session_id"`

	// Degraded lists subsystems that failed while the answer was still
	// produced (e.g. "retrieval", "memory", "llm").
	Degraded []string `json:"degraded,omitempty"`
}

// Orchestrator wires the pipeline. Optional collaborators may be nil and
// their stages degrade gracefully.
type Orchestrator struct {
	golden       GoldenCache
	assembler    MemoryAssembler
	retriever    Retriever
	chat         ChatModel
	tools        *tools.Registry
	sessions     session.Store
	memoryWriter MemoryWriter
	recall       MemorySearcher
	metrics      *observability.Metrics

	maxTokens   int
	temperature float64
	toolHops    int

	locks *userLocks
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Golden       GoldenCache
	Assembler    MemoryAssembler
	Retriever    Retriever
	Chat         ChatModel
	Tools        *tools.Registry
	Sessions     session.Store
	MemoryWriter MemoryWriter
	Recall       MemorySearcher
	Metrics      *observability.Metrics

	// MaxTokens and Temperature are passed through to answer generation.
	// Zero values leave the provider defaults in place.
	MaxTokens   int
	Temperature float64

	// ToolHopLimit bounds the tool-use loop per query. Zero uses the
	// built-in default.
	ToolHopLimit int
}

// New creates the orchestrator. Chat and Sessions are required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("orchestrator requires a chat model")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("orchestrator requires a session store")
	}
	toolHops := cfg.ToolHopLimit
	if toolHops <= 0 {
		toolHops = maxToolHops
	}
	return &Orchestrator{
		golden:       cfg.Golden,
		assembler:    cfg.Assembler,
		retriever:    cfg.Retriever,
		chat:         cfg.Chat,
		tools:        cfg.Tools,
		sessions:     cfg.Sessions,
		memoryWriter: cfg.MemoryWriter,
		recall:       cfg.Recall,
		metrics:      cfg.Metrics,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		toolHops:     toolHops,
		locks:        newUserLocks(),
	}, nil
}

// ProcessQuery runs the pipeline for one query.
func (o *Orchestrator) ProcessQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	started := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, oerr.Errorf(oerr.KindInputInvalid, "orchestrator.ProcessQuery", "query cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	intent := router.Classify(query)
	resp := &QueryResponse{
		Mode:      string(intent.Mode),
		Category:  string(intent.Category),
		SessionID: req.SessionID,
	}

	// Golden check runs before any model or vector work. A curated answer
	// short-circuits the pipeline; a route hit only steers retrieval.
	collectionOverride := req.CollectionOverride
	if o.golden != nil {
		hit, err := o.golden.Lookup(ctx, query)
		if err != nil {
			slog.Warn("Golden lookup failed, continuing", "error", err)
		} else if hit != nil && hit.Answer != nil {
			o.metrics.RecordGoldenHit(ctx, hit.MatchType)
			resp.Answer = hit.Answer.Answer
			resp.ModelUsed = GoldenModelName
			resp.LatencyMS = time.Since(started).Milliseconds()
			o.persistTurn(ctx, req, resp, query)
			o.metrics.RecordQuery(ctx, resp.Category, time.Since(started), nil)
			return resp, nil
		} else if hit != nil && hit.Route != nil {
			o.metrics.RecordGoldenHit(ctx, hit.MatchType)
			if collectionOverride == "" && len(hit.Route.Collections) > 0 {
				collectionOverride = hit.Route.Collections[0]
			}
		}
	}

	// Memory fetch. Business and identity intents use it; greetings skip.
	var mem *memory.MemoryContext
	userLevel := 1
	if o.assembler != nil && req.UserEmail != "" && (intent.RequireMemory || isBusiness(intent.Category)) {
		var err error
		mem, err = o.assembler.Assemble(ctx, req.UserEmail, query)
		if err != nil {
			slog.Warn("Memory assembly failed, continuing without", "error", err)
			resp.Degraded = append(resp.Degraded, "memory")
		} else if mem.Profile != nil && mem.Profile.Level > 0 {
			userLevel = mem.Profile.Level
		}
	}

	// Identity and team queries also recall the user's memory notes by
	// similarity instead of touching the document collections.
	if o.recall != nil && req.UserEmail != "" && intent.RequireMemory {
		notes, err := o.recall.Search(ctx, req.UserEmail, query, memory.MaxRecall)
		if err != nil {
			slog.Warn("Memory recall failed, continuing without", "error", err)
			resp.Degraded = append(resp.Degraded, "memory")
		} else if len(notes) > 0 {
			if mem == nil {
				mem = &memory.MemoryContext{}
			}
			mem.Memories = notes
		}
	}

	// Retrieval. Failure never aborts: the model answers from memory and
	// persona with a degraded flag.
	var passages []retrieval.Passage
	if o.retriever != nil && isBusiness(intent.Category) {
		result, err := o.retriever.Retrieve(ctx, &retrieval.Request{
			Query:              query,
			UserLevel:          userLevel,
			CollectionOverride: collectionOverride,
		})
		if err != nil {
			slog.Warn("Retrieval failed, continuing with empty passages", "error", err)
			resp.Degraded = append(resp.Degraded, "retrieval")
		} else {
			passages = result.Results
			resp.Conflicts = result.ConflictsDetected
			resp.Sources = sourcesFrom(passages)
		}
	}

	history, err := o.sessions.Recent(ctx, req.SessionID, session.DefaultRecentTurns)
	if err != nil {
		slog.Warn("Session history unavailable", "session_id", req.SessionID, "error", err)
	}

	lang := detectLanguage(req.LanguageOverride, preferredLanguage(mem), query)

	answer, model, err := o.generateAnswer(ctx, buildSystemPrompt(intent.Mode, mem, passages), history, query)
	if err != nil {
		if oerr.Is(err, oerr.KindCancelled) || ctx.Err() != nil {
			return nil, oerr.E(oerr.KindCancelled, "orchestrator.ProcessQuery", err)
		}
		// Total LLM failure still answers, with the localized fallback.
		slog.Error("All LLM tiers failed", "error", err)
		resp.Answer = oerr.FallbackMessage(oerr.KindLLMUnavailable, lang)
		resp.ModelUsed = "fallback"
		resp.Degraded = append(resp.Degraded, "llm")
		resp.LatencyMS = time.Since(started).Milliseconds()
		o.metrics.RecordQuery(ctx, resp.Category, time.Since(started), err)
		return resp, nil
	}

	resp.Answer = cleanResponse(answer)
	resp.ModelUsed = model
	resp.LatencyMS = time.Since(started).Milliseconds()

	o.persistTurn(ctx, req, resp, query)
	o.metrics.RecordQuery(ctx, resp.Category, time.Since(started), nil)
	return resp, nil
}

// generateAnswer runs the LLM tool loop up to the hop limit.
func (o *Orchestrator) generateAnswer(ctx context.Context, system string, history []*session.Turn, query string) (string, string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	var defs []llm.ToolDef
	if o.tools != nil {
		defs = o.tools.Defs()
	}

	lastText := ""
	model := ""
	for hop := 0; hop <= o.toolHops; hop++ {
		started := time.Now()
		resp, err := o.chat.Generate(ctx, &llm.Request{
			System:      system,
			Messages:    messages,
			Tools:       defs,
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
		})
		if err != nil {
			return "", "", err
		}
		o.metrics.RecordLLMCall(ctx, resp.Model, time.Since(started), resp.InputTokens, resp.OutputTokens)
		model = resp.Model
		if resp.Text != "" {
			lastText = resp.Text
		}

		if len(resp.ToolCalls) == 0 || o.tools == nil {
			return lastText, model, nil
		}
		if hop == o.toolHops {
			slog.Warn("Tool hop limit reached, returning last text", "hops", hop)
			return lastText, model, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		var results []llm.ToolResult
		for _, call := range resp.ToolCalls {
			toolStarted := time.Now()
			out, execErr := o.tools.Execute(ctx, call)
			o.metrics.RecordToolExecution(ctx, call.Name, time.Since(toolStarted), execErr)
			if execErr != nil {
				slog.Warn("Tool execution failed", "tool", call.Name, "error", execErr)
			}
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    out,
			})
		}
		messages = append(messages, llm.Message{Role: llm.RoleTool, ToolResults: results})
	}

	return lastText, model, nil
}

// persistTurn writes the exchange to session history and updates user
// memory, serialized per user. A cancelled request persists nothing: no
// partial turn must survive.
func (o *Orchestrator) persistTurn(ctx context.Context, req *QueryRequest, resp *QueryResponse, query string) {
	if ctx.Err() != nil {
		return
	}

	key := req.UserEmail
	if key == "" {
		key = resp.SessionID
	}
	lock := o.locks.acquire(key)
	defer o.locks.release(lock)

	sessionID := resp.SessionID
	sess, err := o.sessions.Create(ctx, req.UserEmail, sessionID)
	if err != nil {
		slog.Warn("Failed to ensure session, turn not persisted", "error", err)
		return
	}
	resp.SessionID = sess.ID

	if err := o.sessions.AppendTurn(ctx, sess.ID, &session.Turn{Role: "user", Content: query}); err != nil {
		slog.Warn("Failed to persist user turn", "error", err)
		return
	}
	if err := o.sessions.AppendTurn(ctx, sess.ID, &session.Turn{
		Role: "assistant", Content: resp.Answer, Model: resp.ModelUsed,
	}); err != nil {
		slog.Warn("Failed to persist assistant turn", "error", err)
	}

	o.updateUserMemory(ctx, req, resp, query)
}

func isBusiness(c router.Category) bool {
	switch c {
	case router.CategoryBusinessSimple, router.CategoryBusinessComplex, router.CategoryBusinessStrategic:
		return true
	}
	return false
}

func preferredLanguage(mem *memory.MemoryContext) string {
	if mem == nil || mem.Profile == nil {
		return ""
	}
	return mem.Profile.PreferredLanguage
}

func sourcesFrom(passages []retrieval.Passage) []Source {
	sources := make([]Source, 0, len(passages))
	for _, p := range passages {
		docID, _ := p.Metadata["parent_id"].(string)
		title, _ := p.Metadata["title"].(string)
		idx := 0
		switch v := p.Metadata["chunk_index"].(type) {
		case int:
			idx = v
		case float64:
			idx = int(v)
		}
		sources = append(sources, Source{DocID: docID, Title: title, ChunkIndex: idx, Score: p.Score})
	}
	return sources
}
