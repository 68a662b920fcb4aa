package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/vector"
)

type echoTool struct{ name string }

func (t *echoTool) Def() llm.ToolDef {
	return llm.ToolDef{Name: t.name, Description: "echoes input"}
}

func (t *echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return optionalStringArg(args, "text"), nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "echo"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&echoTool{name: "echo"}); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register(&echoTool{name: "alpha"}); err != nil {
		t.Fatal(err)
	}

	defs := r.Defs()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "echo" {
		t.Errorf("defs not sorted: %v", defs)
	}

	out, err := r.Execute(context.Background(), llm.ToolCall{
		Name:  "echo",
		Input: map[string]interface{}{"text": "hello"},
	})
	if err != nil || out != "hello" {
		t.Errorf("execute = %q, %v", out, err)
	}

	out, err = r.Execute(context.Background(), llm.ToolCall{Name: "nope"})
	if err == nil {
		t.Error("unknown tool should error")
	}
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("model-facing output = %q", out)
	}
}

func TestPricingLookup(t *testing.T) {
	ctx := context.Background()
	emb := embedder.NewFakeEmbedder(8)
	vectors := vector.NewMemoryStore()
	if err := vectors.EnsureCollection(ctx, router.CollectionPricing, 8); err != nil {
		t.Fatal(err)
	}
	text := "Investor KITAS (E28A): 15,000,000 IDR per person, 2 years."
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		t.Fatal(err)
	}
	err = vectors.Upsert(ctx, router.CollectionPricing, []vector.Point{
		{
			ID:      "11111111-1111-1111-1111-111111111111",
			Vector:  vec,
			Payload: map[string]interface{}{"text": text, "parent_id": "pricing", "chunk_index": 0},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	tool := NewPricingLookup(emb, vectors)
	if tool.Def().Name != "pricing_lookup" {
		t.Errorf("name = %s", tool.Def().Name)
	}

	out, err := tool.Execute(ctx, map[string]interface{}{"service": "investor kitas"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "15,000,000") {
		t.Errorf("output missing price: %q", out)
	}

	if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
		t.Error("missing argument should error")
	}
}

type fakeDocs struct {
	chapters map[string]string
	docs     map[string][]*store.ParentDocument
}

func (f *fakeDocs) GetChapterFullText(ctx context.Context, documentID, chapterID string) (string, error) {
	return f.chapters[documentID+"_"+chapterID], nil
}

func (f *fakeDocs) GetParentDocumentsByDocumentID(ctx context.Context, documentID string) ([]*store.ParentDocument, error) {
	return f.docs[documentID], nil
}

func TestParentDocument(t *testing.T) {
	docs := &fakeDocs{
		chapters: map[string]string{"uu62011_bab2": "BAB II full text"},
		docs: map[string][]*store.ParentDocument{
			"uu62011": {
				{ID: "uu62011_bab1", Title: "UU 6/2011 BAB I", FullText: "chapter one"},
				{ID: "uu62011_bab2", Title: "UU 6/2011 BAB II", FullText: "chapter two"},
			},
		},
	}
	tool := NewParentDocument(docs)

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"document_id": "uu62011", "chapter_id": "bab2",
	})
	if err != nil || out != "BAB II full text" {
		t.Errorf("chapter fetch = %q, %v", out, err)
	}

	out, err = tool.Execute(context.Background(), map[string]interface{}{"document_id": "uu62011"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "chapter one") || !strings.Contains(out, "chapter two") {
		t.Errorf("full fetch = %q", out)
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"document_id": "missing"}); err == nil {
		t.Error("unknown document should error")
	}
}

func TestClipText(t *testing.T) {
	long := strings.Repeat("a", maxToolText+100)
	got := clipText(long)
	if !strings.HasSuffix(got, "[truncated]") {
		t.Error("missing truncation marker")
	}
	if clipText("short") != "short" {
		t.Error("short text altered")
	}
}
