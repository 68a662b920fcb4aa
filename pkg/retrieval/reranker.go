package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/balidesk/oracle/pkg/llm"
)

// Generator is the LLM surface the reranker needs.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Reranker re-orders passages by LLM-judged relevance. Vector similarity
// misses context the model can see, at the cost of one extra call per
// search, so reranking only pays off on small candidate sets.
type Reranker struct {
	llm        Generator
	maxResults int
}

// ranking is one relevance judgment from the model.
type ranking struct {
	Index     int    `json:"index"`
	Relevance int    `json:"relevance"`
	Reason    string `json:"reason,omitempty"`
}

// NewReranker creates a reranker capped at maxResults candidates.
func NewReranker(gen Generator, maxResults int) *Reranker {
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Reranker{llm: gen, maxResults: maxResults}
}

// Rerank returns the passages in relevance order and whether reranking was
// actually applied. Any failure keeps the original order.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []Passage) ([]Passage, bool) {
	if r.llm == nil || len(passages) == 0 {
		return passages, false
	}

	candidates := passages
	if len(candidates) > r.maxResults {
		candidates = candidates[:r.maxResults]
	}

	resp, err := r.llm.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildRerankPrompt(query, candidates)},
		},
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Warn("Reranking failed, keeping original order", "error", err)
		return passages, false
	}

	rankings, err := parseRankings(resp.Text, len(candidates))
	if err != nil {
		slog.Warn("Failed to parse rankings, keeping original order", "error", err)
		return passages, false
	}

	reordered := applyRankings(candidates, rankings)
	if len(passages) > r.maxResults {
		reordered = append(reordered, passages[r.maxResults:]...)
	}
	return reordered, true
}

func buildRerankPrompt(query string, passages []Passage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Given the query: "%s"

Rank the following documents by their relevance to the query.
For each document, provide a relevance score from 1-10 (10 being most relevant).

Documents:
`, strings.ReplaceAll(query, `"`, `'`))

	for i, p := range passages {
		text := p.Text
		if len(text) > 500 {
			text = text[:497] + "..."
		}
		fmt.Fprintf(&sb, "\n[%d] %s\n", i, text)
	}

	sb.WriteString(`
Respond with a JSON array of rankings, ordered from most to least relevant:
[{"index": 0, "relevance": 9, "reason": "directly answers the query"}, ...]

Only include the JSON array, no other text.`)
	return sb.String()
}

func parseRankings(response string, numResults int) ([]ranking, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var rankings []ranking
	if err := json.Unmarshal([]byte(response[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("failed to parse rankings: %w", err)
	}

	seen := make(map[int]bool)
	var valid []ranking
	for _, rk := range rankings {
		if rk.Index >= 0 && rk.Index < numResults && !seen[rk.Index] {
			seen[rk.Index] = true
			valid = append(valid, rk)
		}
	}
	// Indices the model skipped sink to the bottom.
	for i := 0; i < numResults; i++ {
		if !seen[i] {
			valid = append(valid, ranking{Index: i, Relevance: 1})
		}
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Relevance > valid[j].Relevance })
	return valid, nil
}

// applyRankings reorders passages and replaces vector scores with
// position-based ones (1st=1.0, 2nd=0.95, floor 0.1).
func applyRankings(passages []Passage, rankings []ranking) []Passage {
	reordered := make([]Passage, 0, len(rankings))
	for i, rk := range rankings {
		if rk.Index >= len(passages) {
			continue
		}
		p := passages[rk.Index]
		p.Score = 1.0 - float32(i)*0.05
		if p.Score < 0.1 {
			p.Score = 0.1
		}
		reordered = append(reordered, p)
	}
	return reordered
}
