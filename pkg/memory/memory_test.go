package memory

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/store"
)

type fakeReader struct {
	users    map[string]*store.UserProfile
	memories map[string]*store.UserMemory
	top      []*store.KGEntity
	matched  []*store.KGEntity

	nameMatchTerms []string
}

func (f *fakeReader) GetUserByEmail(ctx context.Context, email string) (*store.UserProfile, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, oerr.E(oerr.KindNotFound, "fake.GetUserByEmail", errors.New("no user"))
}

func (f *fakeReader) GetUserMemory(ctx context.Context, userID string) (*store.UserMemory, error) {
	if m, ok := f.memories[userID]; ok {
		return m, nil
	}
	return nil, oerr.E(oerr.KindNotFound, "fake.GetUserMemory", errors.New("no memory"))
}

func (f *fakeReader) TopEntitiesByMentions(ctx context.Context, limit int) ([]*store.KGEntity, error) {
	return f.top, nil
}

func (f *fakeReader) EntitiesByNameMatch(ctx context.Context, terms []string, limit int) ([]*store.KGEntity, error) {
	f.nameMatchTerms = terms
	return f.matched, nil
}

func TestAssemble_UnknownUserIsEmpty(t *testing.T) {
	a := NewAssembler(&fakeReader{})
	mc, err := a.Assemble(context.Background(), "nobody@example.com", "some query")
	if err != nil {
		t.Fatal(err)
	}
	if !mc.IsEmpty() {
		t.Error("unknown user should yield empty context")
	}
	if mc.ToSystemPrompt() != "" {
		t.Error("empty context must render nothing")
	}
}

func TestAssemble_FullContext(t *testing.T) {
	r := &fakeReader{
		users: map[string]*store.UserProfile{
			"ani@example.com": {ID: "u1", Email: "ani@example.com", Name: "Ani", Role: "consultant", PreferredLanguage: "id", Level: 3},
		},
		memories: map[string]*store.UserMemory{
			"u1": {
				UserID:       "u1",
				ProfileFacts: []string{"Runs a villa business", "runs a villa business", "Holds an Investor KITAS"},
				Summary:      "Asked about PT PMA setup.",
			},
		},
		matched: []*store.KGEntity{
			{ID: "investor_kitas", Name: "Investor KITAS", Type: "visa_type", MentionCount: 12},
		},
		top: []*store.KGEntity{
			{ID: "investor_kitas", Name: "Investor KITAS", Type: "visa_type", MentionCount: 12},
			{ID: "pt_pma", Name: "PT PMA", Type: "business_entity", MentionCount: 9},
		},
	}
	a := NewAssembler(r)

	mc, err := a.Assemble(context.Background(), "ani@example.com", "investor kitas renewal")
	if err != nil {
		t.Fatal(err)
	}

	if len(mc.Facts) != 2 {
		t.Errorf("facts = %v, want case-insensitive dedup to 2", mc.Facts)
	}
	if len(mc.RelatedConcepts) != 2 {
		t.Fatalf("concepts = %d, want 2 (match + top, deduped)", len(mc.RelatedConcepts))
	}
	if mc.RelatedConcepts[0].ID != "investor_kitas" {
		t.Error("query-matched concept should rank first")
	}

	prompt := mc.ToSystemPrompt()
	for _, want := range []string{
		"## User Profile", "Name: Ani", "## Profile Facts",
		"## Conversation Summary", "## Related Concepts",
		"visa_type: Investor KITAS", "business_entity: PT PMA",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAssemble_ColdStartSkipsKG(t *testing.T) {
	r := &fakeReader{
		users: map[string]*store.UserProfile{
			"ani@example.com": {ID: "u1", Name: "Ani"},
		},
		top: []*store.KGEntity{{ID: "pt_pma", Name: "PT PMA", Type: "business_entity"}},
	}
	a := NewAssembler(r)

	mc, err := a.Assemble(context.Background(), "ani@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(mc.RelatedConcepts) != 0 {
		t.Error("empty query must skip KG enrichment")
	}
}

func TestToSystemPrompt_RendersRecalledMemories(t *testing.T) {
	mc := &MemoryContext{Memories: []string{"Runs a villa rental business in Canggu"}}

	prompt := mc.ToSystemPrompt()
	if !strings.Contains(prompt, "## Relevant Memories") {
		t.Fatalf("prompt missing memories section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- Runs a villa rental business in Canggu") {
		t.Errorf("prompt missing memory note:\n%s", prompt)
	}
	if (&MemoryContext{}).ToSystemPrompt() != "" {
		t.Error("empty context must render nothing")
	}
}

func TestDedupFacts(t *testing.T) {
	facts := []string{"A", "a", " B ", "", "B", "C"}
	got := DedupFacts(facts, 2)
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("got %v", got)
	}
}

func TestTruncateSummary(t *testing.T) {
	s := strings.Repeat("é", 600)
	got := TruncateSummary(s, MaxSummaryRunes)
	if n := len([]rune(got)); n != MaxSummaryRunes {
		t.Errorf("truncated to %d runes, want exactly %d including the ellipsis", n, MaxSummaryRunes)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("missing ellipsis")
	}

	// A summary exactly at the cap passes through untouched.
	exact := strings.Repeat("a", MaxSummaryRunes)
	if TruncateSummary(exact, MaxSummaryRunes) != exact {
		t.Error("summary at the cap was altered")
	}
	if TruncateSummary("short", MaxSummaryRunes) != "short" {
		t.Error("short summary altered")
	}
}

func TestQueryTerms(t *testing.T) {
	got := QueryTerms("How much does an Investor KITAS cost, what about berapa harga?")
	for _, term := range got {
		if len(term) < 4 {
			t.Errorf("short term %q leaked", term)
		}
		if term == "much" || term == "what" || term == "berapa" {
			t.Errorf("stopword %q leaked", term)
		}
	}
	want := []string{"investor", "kitas", "cost", "harga"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
