package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/memory"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/store"
)

const factPrompt = `From the exchange below, extract up to 3 durable facts
about the user worth remembering for future conversations (their business,
visa status, plans, preferences). Ignore one-off questions and anything
already obvious from the exchange being about Indonesia.

Return ONLY a JSON array of short fact strings. Return [] if nothing is
worth keeping.

User: %s
Assistant: %s`

// updateUserMemory writes the post-turn memory row: usage counters every
// turn, extracted facts after generated business answers. Best effort:
// failures are logged, never surfaced to the reply path. Caller holds the
// per-user lock.
func (o *Orchestrator) updateUserMemory(ctx context.Context, req *QueryRequest, resp *QueryResponse, query string) {
	if o.memoryWriter == nil || req.UserEmail == "" {
		return
	}

	// Fact extraction only makes sense for generated business answers.
	var fresh []string
	if resp.ModelUsed != GoldenModelName && resp.ModelUsed != "fallback" && isBusiness(router.Category(resp.Category)) {
		fresh = o.extractFacts(ctx, query, resp.Answer)
	}

	mem, err := o.memoryWriter.GetUserMemory(ctx, req.UserEmail)
	if err != nil && !oerr.Is(err, oerr.KindNotFound) {
		slog.Warn("Failed to load user memory", "user_id", req.UserEmail, "error", err)
		return
	}
	if mem == nil {
		mem = &store.UserMemory{UserID: req.UserEmail}
	}

	if mem.Counters == nil {
		mem.Counters = make(map[string]int)
	}
	mem.Counters["conversations"]++
	if len(resp.Sources) > 0 {
		mem.Counters["searches"]++
	}
	if len(fresh) > 0 {
		mem.ProfileFacts = mergeFacts(mem.ProfileFacts, fresh)
	}

	if err := o.memoryWriter.UpsertUserMemory(ctx, mem); err != nil {
		slog.Warn("Failed to persist user memory", "user_id", req.UserEmail, "error", err)
		return
	}

	// Fresh facts also land in the vector memory so identity queries can
	// recall them by similarity.
	if o.recall != nil && len(fresh) > 0 {
		if err := o.recall.Store(ctx, req.UserEmail, fresh); err != nil {
			slog.Debug("Memory note store skipped", "error", err)
		}
	}
}

// extractFacts asks the model for durable facts from the exchange. An
// extraction failure is an empty result.
func (o *Orchestrator) extractFacts(ctx context.Context, question, answer string) []string {
	if o.chat == nil {
		return nil
	}

	resp, err := o.chat.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(factPrompt, question, answer)},
		},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		slog.Debug("Fact extraction skipped", "error", err)
		return nil
	}
	return parseFacts(resp.Text)
}

// parseFacts decodes the model's fact array, tolerating fences and prose
// around the JSON.
func parseFacts(text string) []string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || start >= end {
		return nil
	}
	var facts []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &facts); err != nil {
		return nil
	}
	var out []string
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// mergeFacts combines existing memory with new facts, deduplicated and
// capped. Existing facts keep priority so the cap never drops them in
// favor of new ones.
func mergeFacts(existing, fresh []string) []string {
	return memory.DedupFacts(append(existing, fresh...), memory.MaxFacts)
}

