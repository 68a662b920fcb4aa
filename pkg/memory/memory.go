// Package memory assembles the per-user context injected into the system
// prompt: profile, accumulated facts, conversation summary, and knowledge
// graph concepts related to the user and the current query.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/store"
)

const (
	// MaxFacts caps the profile facts carried into the prompt.
	MaxFacts = 10

	// MaxSummaryRunes caps the conversation summary length.
	MaxSummaryRunes = 500

	// MaxConcepts caps the Related Concepts section.
	MaxConcepts = 5

	// minTermLen filters query words too short to name an entity.
	minTermLen = 4

	// maxQueryTerms bounds the name-match query.
	maxQueryTerms = 6
)

// Reader is the slice of the relational gateway the assembler needs.
type Reader interface {
	GetUserByEmail(ctx context.Context, email string) (*store.UserProfile, error)
	GetUserMemory(ctx context.Context, userID string) (*store.UserMemory, error)
	TopEntitiesByMentions(ctx context.Context, limit int) ([]*store.KGEntity, error)
	EntitiesByNameMatch(ctx context.Context, terms []string, limit int) ([]*store.KGEntity, error)
}

// MemoryContext is everything known about a user ahead of a turn. All
// fields are read-only views; writes happen after the turn completes.
type MemoryContext struct {
	Profile         *store.UserProfile
	Facts           []string
	Summary         string
	Counters        map[string]int
	RelatedConcepts []*store.KGEntity

	// Memories are notes recalled by vector similarity for identity and
	// team queries.
	Memories []string
}

// IsEmpty reports whether the context would add nothing to the prompt.
func (m *MemoryContext) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.Profile == nil && len(m.Facts) == 0 && m.Summary == "" &&
		len(m.RelatedConcepts) == 0 && len(m.Memories) == 0
}

// ToSystemPrompt renders the context as prompt sections. Empty sections
// are omitted entirely.
func (m *MemoryContext) ToSystemPrompt() string {
	if m.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	if m.Profile != nil {
		sb.WriteString("## User Profile\n")
		fmt.Fprintf(&sb, "Name: %s\n", m.Profile.Name)
		if m.Profile.Role != "" {
			fmt.Fprintf(&sb, "Role: %s\n", m.Profile.Role)
		}
		if m.Profile.PreferredLanguage != "" {
			fmt.Fprintf(&sb, "Preferred language: %s\n", m.Profile.PreferredLanguage)
		}
	}

	if len(m.Facts) > 0 {
		sb.WriteString("\n## Profile Facts\n")
		for _, f := range m.Facts {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	if m.Summary != "" {
		sb.WriteString("\n## Conversation Summary\n")
		sb.WriteString(m.Summary)
		sb.WriteString("\n")
	}

	if len(m.Memories) > 0 {
		sb.WriteString("\n## Relevant Memories\n")
		for _, n := range m.Memories {
			fmt.Fprintf(&sb, "- %s\n", n)
		}
	}

	if len(m.RelatedConcepts) > 0 {
		sb.WriteString("\n## Related Concepts\n")
		for _, e := range m.RelatedConcepts {
			fmt.Fprintf(&sb, "- %s: %s\n", e.Type, e.Name)
		}
	}

	return strings.TrimSpace(sb.String())
}

// Assembler builds MemoryContext values.
type Assembler struct {
	reader Reader
}

// NewAssembler creates an assembler over the relational gateway.
func NewAssembler(r Reader) *Assembler {
	return &Assembler{reader: r}
}

// Assemble collects the context for a user. An unknown user yields an
// empty context, not an error. query may be empty on cold start, which
// skips KG enrichment entirely.
func (a *Assembler) Assemble(ctx context.Context, email, query string) (*MemoryContext, error) {
	mc := &MemoryContext{}

	profile, err := a.reader.GetUserByEmail(ctx, email)
	if err != nil {
		if oerr.Is(err, oerr.KindNotFound) {
			return mc, nil
		}
		return nil, err
	}
	mc.Profile = profile

	mem, err := a.reader.GetUserMemory(ctx, profile.ID)
	if err != nil && !oerr.Is(err, oerr.KindNotFound) {
		return nil, err
	}
	if mem != nil {
		mc.Facts = DedupFacts(mem.ProfileFacts, MaxFacts)
		mc.Summary = TruncateSummary(mem.Summary, MaxSummaryRunes)
		mc.Counters = mem.Counters
	}

	if query != "" {
		mc.RelatedConcepts = a.relatedConcepts(ctx, query)
	}

	return mc, nil
}

// relatedConcepts merges query-matched entities with globally prominent
// ones, query matches first. KG trouble degrades to an empty section.
func (a *Assembler) relatedConcepts(ctx context.Context, query string) []*store.KGEntity {
	seen := make(map[string]bool)
	var concepts []*store.KGEntity

	terms := QueryTerms(query)
	if len(terms) > 0 {
		matched, err := a.reader.EntitiesByNameMatch(ctx, terms, MaxConcepts)
		if err != nil {
			slog.Warn("KG name match failed, skipping", "error", err)
		}
		for _, e := range matched {
			if !seen[e.ID] {
				seen[e.ID] = true
				concepts = append(concepts, e)
			}
		}
	}

	if len(concepts) < MaxConcepts {
		top, err := a.reader.TopEntitiesByMentions(ctx, MaxConcepts)
		if err != nil {
			slog.Warn("KG top entities failed, skipping", "error", err)
		}
		for _, e := range top {
			if len(concepts) == MaxConcepts {
				break
			}
			if !seen[e.ID] {
				seen[e.ID] = true
				concepts = append(concepts, e)
			}
		}
	}

	return concepts
}

// DedupFacts removes case-insensitive duplicates, keeping first
// occurrences, capped at limit.
func DedupFacts(facts []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out
}

// TruncateSummary caps a summary at maxRunes. The ellipsis marking a cut
// counts against the cap.
func TruncateSummary(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-1]) + "…"
}

// QueryTerms extracts the words worth matching against entity names:
// lowercase, at least four characters, stopwords dropped, at most six.
func QueryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:()\"'")
		if len(w) < minTermLen || stopwords[w] {
			continue
		}
		terms = append(terms, w)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}

var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "does": true,
	"have": true, "much": true, "many": true, "about": true, "with": true,
	"from": true, "this": true, "that": true, "should": true, "would": true,
	"could": true, "need": true, "want": true, "berapa": true, "bagaimana": true,
	"apakah": true, "untuk": true, "yang": true, "adalah": true, "saya": true,
}
