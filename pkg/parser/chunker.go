package parser

import (
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Hierarchy levels carried on chunks.
const (
	LevelDocument = 0
	LevelChapter  = 1
	LevelArticle  = 3
	LevelClause   = 4
)

// Chunk is one embeddable unit of text with its hierarchy path.
type Chunk struct {
	Index int
	Text  string

	Chapter      string
	ChapterTitle string
	Article      string

	// HierarchyPath is the slash-delimited breadcrumb down to this chunk,
	// e.g. "BAB II/Pasal 5" or "BAB II/Pasal 5/Ayat (2)". Empty for
	// unstructured text.
	HierarchyPath string

	// Level is the hierarchy depth: 0 document, 1 chapter, 3 article,
	// 4 clause.
	Level int

	// ParentPath lists the hierarchy nodes above this chunk, ordered
	// root to immediate parent.
	ParentPath []string

	// ClauseNumbers are the "Ayat (n)" numbers detected in the source
	// article; ClauseSequenceValid is false when they skip or repeat.
	ClauseNumbers       []string
	ClauseSequenceValid bool

	TokenCount int
}

// Chunker splits document text into size-bounded chunks. Structure-aware
// when a legal hierarchy is present, sentence-window otherwise.
type Chunker struct {
	// MinChars and MaxChars bound semantic chunk sizes.
	MinChars int
	MaxChars int

	// OversizeChars triggers clause-level recursion for huge articles.
	OversizeChars int

	// WindowSize and WindowOverlap drive the fixed-window fallback.
	WindowSize    int
	WindowOverlap int

	enc *tiktoken.Tiktoken
}

// NewChunker creates a chunker with the standard bounds.
func NewChunker() *Chunker {
	// Encoding load can fail offline; token counts then fall back to a
	// chars/4 approximation.
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Chunker{
		MinChars:      200,
		MaxChars:      1500,
		OversizeChars: 4000,
		WindowSize:    1000,
		WindowOverlap: 100,
		enc:           enc,
	}
}

func (c *Chunker) countTokens(text string) int {
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// Chunk splits text using the detected structure. The output sequence is
// deterministic for identical inputs.
func (c *Chunker) Chunk(text string, st *Structure) []Chunk {
	var chunks []Chunk
	if st.HasStructure() {
		chunks = c.chunkStructured(st)
	} else {
		chunks = c.chunkSentences(text, Chunk{Level: LevelDocument, ClauseSequenceValid: true})
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TokenCount = c.countTokens(chunks[i].Text)
	}
	return chunks
}

// chunkStructured walks articles in order, merging undersized neighbors and
// splitting oversized articles. Every emitted chunk carries the hierarchy
// fields of the article it starts in.
func (c *Chunker) chunkStructured(st *Structure) []Chunk {
	titles := make(map[string]string, len(st.Chapters))
	for _, ch := range st.Chapters {
		titles[ch.Number] = ch.Title
	}

	var chunks []Chunk

	var buffer strings.Builder
	var proto Chunk

	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		out := proto
		out.Text = strings.TrimSpace(buffer.String())
		chunks = append(chunks, out)
		buffer.Reset()
	}

	for _, article := range st.Articles {
		header := "Pasal " + article.Number
		body := header + "\n" + article.Text
		ap := articleProto(article, titles[article.Chapter])

		if len(body) > c.OversizeChars && len(article.Clauses) > 1 {
			// Huge article: recurse at clause granularity, each chunk
			// keeping the article path.
			flush()
			for _, clause := range article.Clauses {
				cp := ap
				cp.Level = LevelClause
				cp.HierarchyPath = ap.HierarchyPath + "/Ayat (" + clause.Number + ")"
				cp.ParentPath = append(append([]string(nil), ap.ParentPath...), header)
				clauseText := header + " ayat (" + clause.Number + ")\n" + clause.Text
				chunks = append(chunks, c.chunkSentences(clauseText, cp)...)
			}
			continue
		}

		if len(body) > c.MaxChars {
			flush()
			chunks = append(chunks, c.chunkSentences(body, ap)...)
			continue
		}

		// Small articles accumulate with neighbors from the same chapter
		// until the minimum size is reached.
		if buffer.Len() > 0 && (proto.Chapter != article.Chapter || buffer.Len()+len(body) > c.MaxChars) {
			flush()
		}
		if buffer.Len() == 0 {
			proto = ap
		}
		buffer.WriteString(body)
		buffer.WriteString("\n\n")
		if buffer.Len() >= c.MinChars {
			flush()
		}
	}
	flush()

	return chunks
}

// articleProto builds the hierarchy template stamped onto every chunk cut
// from an article.
func articleProto(a *Article, chapterTitle string) Chunk {
	p := Chunk{
		Chapter:             a.Chapter,
		ChapterTitle:        chapterTitle,
		Article:             a.Number,
		Level:               LevelArticle,
		ClauseSequenceValid: clauseSequenceValid(a.Clauses),
	}
	for _, cl := range a.Clauses {
		p.ClauseNumbers = append(p.ClauseNumbers, cl.Number)
	}
	if a.Chapter != "" {
		p.HierarchyPath = "BAB " + a.Chapter + "/Pasal " + a.Number
		p.ParentPath = []string{"BAB " + a.Chapter}
	} else {
		p.HierarchyPath = "Pasal " + a.Number
	}
	return p
}

// clauseSequenceValid checks that detected clause numbers run 1..n without
// gaps or repeats. An article without clauses is trivially valid.
func clauseSequenceValid(clauses []Clause) bool {
	for i, cl := range clauses {
		n, err := strconv.Atoi(cl.Number)
		if err != nil || n != i+1 {
			return false
		}
	}
	return true
}

// chunkSentences groups sentences into windows within [MinChars, MaxChars],
// stamping each chunk with the hierarchy fields of proto.
func (c *Chunker) chunkSentences(text string, proto Chunk) []Chunk {
	sentences := splitSentences(text)
	var chunks []Chunk
	var buffer strings.Builder

	emit := func() {
		t := strings.TrimSpace(buffer.String())
		if t != "" {
			out := proto
			out.Text = t
			chunks = append(chunks, out)
		}
		buffer.Reset()
	}

	for _, sentence := range sentences {
		if buffer.Len() > 0 && buffer.Len()+len(sentence) > c.MaxChars && buffer.Len() >= c.MinChars {
			emit()
		}
		// A single sentence longer than the max gets hard-split.
		if len(sentence) > c.MaxChars {
			emit()
			for start := 0; start < len(sentence); start += c.MaxChars {
				end := min(start+c.MaxChars, len(sentence))
				out := proto
				out.Text = strings.TrimSpace(sentence[start:end])
				chunks = append(chunks, out)
			}
			continue
		}
		buffer.WriteString(sentence)
	}
	emit()

	// A trailing fragment below the minimum merges into its predecessor.
	if n := len(chunks); n >= 2 && len(chunks[n-1].Text) < c.MinChars {
		chunks[n-2].Text = chunks[n-2].Text + " " + chunks[n-1].Text
		chunks = chunks[:n-1]
	}

	return chunks
}

// FixedWindow is the fallback splitter used when structure-aware parsing
// fails: fixed-size windows with overlap.
func (c *Chunker) FixedWindow(text string) []Chunk {
	var chunks []Chunk
	step := c.WindowSize - c.WindowOverlap
	if step <= 0 {
		step = c.WindowSize
	}

	runes := []rune(text)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.WindowSize, len(runes))
		t := strings.TrimSpace(string(runes[start:end]))
		if t != "" {
			chunks = append(chunks, Chunk{
				Index:               len(chunks),
				Text:                t,
				Level:               LevelDocument,
				ClauseSequenceValid: true,
				TokenCount:          c.countTokens(t),
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// splitSentences splits text at sentence terminators and paragraph breaks,
// keeping terminators attached to their sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)

		terminator := r == '.' || r == '!' || r == '?'
		paragraph := r == '\n' && i+1 < len(runes) && runes[i+1] == '\n'
		if terminator && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
			sentences = append(sentences, b.String())
			b.Reset()
		} else if paragraph {
			sentences = append(sentences, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		sentences = append(sentences, b.String())
	}
	return sentences
}
