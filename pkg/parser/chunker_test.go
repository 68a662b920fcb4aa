package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestChunk_Structured(t *testing.T) {
	c := NewChunker()
	st := DetectStructure(sampleLaw)

	chunks := c.Chunk(sampleLaw, st)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}

	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if len(ch.Text) > c.MaxChars {
			t.Errorf("chunk %d exceeds max size: %d chars", i, len(ch.Text))
		}
	}

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "Pasal 3") && ch.Chapter == "II" {
			found = true
		}
	}
	if !found {
		t.Error("no chunk carries Pasal 3 with chapter II hierarchy")
	}
}

func TestChunk_HierarchyMetadata(t *testing.T) {
	c := NewChunker()
	st := DetectStructure(sampleLaw)

	chunks := c.Chunk(sampleLaw, st)

	var pasal3 *Chunk
	for i := range chunks {
		if strings.Contains(chunks[i].Text, "Pasal 3") {
			pasal3 = &chunks[i]
		}
	}
	if pasal3 == nil {
		t.Fatal("no chunk carries Pasal 3")
	}
	if pasal3.HierarchyPath != "BAB II/Pasal 3" {
		t.Errorf("hierarchy path = %q", pasal3.HierarchyPath)
	}
	if pasal3.Level != LevelArticle {
		t.Errorf("level = %d, want %d", pasal3.Level, LevelArticle)
	}
	if !reflect.DeepEqual(pasal3.ParentPath, []string{"BAB II"}) {
		t.Errorf("parent path = %v", pasal3.ParentPath)
	}
	if pasal3.ChapterTitle != "PELAKSANAAN" {
		t.Errorf("chapter title = %q", pasal3.ChapterTitle)
	}
	if !reflect.DeepEqual(pasal3.ClauseNumbers, []string{"1", "2"}) {
		t.Errorf("clause numbers = %v", pasal3.ClauseNumbers)
	}
	if !pasal3.ClauseSequenceValid {
		t.Error("consecutive clauses flagged invalid")
	}
}

func TestClauseSequenceValid(t *testing.T) {
	cases := []struct {
		numbers []string
		want    bool
	}{
		{nil, true},
		{[]string{"1", "2", "3"}, true},
		{[]string{"1", "3"}, false},
		{[]string{"2", "1"}, false},
		{[]string{"1", "1"}, false},
	}
	for _, tc := range cases {
		clauses := make([]Clause, len(tc.numbers))
		for i, n := range tc.numbers {
			clauses[i] = Clause{Number: n}
		}
		if got := clauseSequenceValid(clauses); got != tc.want {
			t.Errorf("clauseSequenceValid(%v) = %v, want %v", tc.numbers, got, tc.want)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := NewChunker()
	st1 := DetectStructure(sampleLaw)
	st2 := DetectStructure(sampleLaw)

	a := c.Chunk(sampleLaw, st1)
	b := c.Chunk(sampleLaw, st2)
	if !reflect.DeepEqual(a, b) {
		t.Error("chunking is not deterministic for identical input")
	}
}

func TestChunk_SentenceWindow(t *testing.T) {
	c := NewChunker()
	text := strings.Repeat("This is a sentence about Indonesian tax rules. ", 120)

	chunks := c.Chunk(text, DetectStructure(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) > c.MaxChars {
			t.Errorf("chunk %d exceeds max: %d", i, len(ch.Text))
		}
		if len(ch.Text) < c.MinChars {
			t.Errorf("chunk %d below min: %d", i, len(ch.Text))
		}
	}
}

func TestFixedWindow(t *testing.T) {
	c := NewChunker()
	text := strings.Repeat("x", 2500)

	chunks := c.FixedWindow(text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0].Text) != 1000 {
		t.Errorf("first window = %d chars, want 1000", len(chunks[0].Text))
	}
	// Overlap: second window starts 900 runes in.
	if len(chunks[1].Text) != 1000 {
		t.Errorf("second window = %d chars, want 1000", len(chunks[1].Text))
	}
}

func TestChunk_OversizedArticleRecurses(t *testing.T) {
	c := NewChunker()

	var b strings.Builder
	b.WriteString("Pasal 9\n")
	for i := 1; i <= 4; i++ {
		b.WriteString("(")
		b.WriteString(strings.Repeat("1234"[i-1:i], 1))
		b.WriteString(") ")
		b.WriteString(strings.Repeat("Ketentuan mengenai izin tinggal diatur lebih lanjut. ", 30))
		b.WriteString("\n")
	}
	st := DetectStructure(b.String())
	if st.PasalCount() != 1 {
		t.Fatalf("expected 1 article, got %d", st.PasalCount())
	}

	chunks := c.Chunk(b.String(), st)
	if len(chunks) < 4 {
		t.Fatalf("oversized article not split per clause: %d chunks", len(chunks))
	}
	for _, ch := range chunks {
		if ch.Article != "9" {
			t.Errorf("chunk lost article metadata: %q", ch.Article)
		}
	}
}
