package parser

import (
	"regexp"
	"strings"
)

// Indonesian legal document markers.
var (
	babRe    = regexp.MustCompile(`^\s*BAB\s+([IVXLCDM]+)\b\s*(.*)$`)
	pasalRe  = regexp.MustCompile(`^\s*Pasal\s+(\d+[A-Z]?)\s*$`)
	ayatRe   = regexp.MustCompile(`^\s*\((\d+)\)\s+(.*)$`)
	pasalRef = regexp.MustCompile(`\bPasal\s+\d+`)
)

// Clause is an "Ayat (n)" within an article.
type Clause struct {
	Number string
	Text   string
}

// Article is a "Pasal n" with its clauses.
type Article struct {
	Number  string
	Chapter string
	Text    string
	Clauses []Clause
}

// Chapter is a "BAB <roman>" grouping of articles.
type Chapter struct {
	Number   string
	Title    string
	Articles []*Article
}

// Structure is the detected legal hierarchy of a document.
type Structure struct {
	Chapters []*Chapter
	Articles []*Article

	HasMenimbang bool
	HasMengingat bool
}

// HasStructure reports whether the document exposes a legal hierarchy
// worth structure-aware chunking.
func (s *Structure) HasStructure() bool {
	return s != nil && len(s.Articles) > 0
}

// PasalCount returns the number of detected articles.
func (s *Structure) PasalCount() int {
	if s == nil {
		return 0
	}
	return len(s.Articles)
}

// DetectStructure scans text line by line for Indonesian legal markers and
// builds the Chapters → Articles → Clauses tree. Text outside any article
// is not part of the tree; the chunker handles it separately.
func DetectStructure(text string) *Structure {
	st := &Structure{}

	var currentChapter *Chapter
	var currentArticle *Article
	var articleText strings.Builder

	flushArticle := func() {
		if currentArticle == nil {
			return
		}
		currentArticle.Text = strings.TrimSpace(articleText.String())
		currentArticle.Clauses = extractClauses(currentArticle.Text)
		st.Articles = append(st.Articles, currentArticle)
		if currentChapter != nil {
			currentChapter.Articles = append(currentChapter.Articles, currentArticle)
		}
		currentArticle = nil
		articleText.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "Menimbang") {
			st.HasMenimbang = true
		}
		if strings.HasPrefix(trimmed, "Mengingat") {
			st.HasMengingat = true
		}

		if m := babRe.FindStringSubmatch(line); m != nil {
			flushArticle()
			currentChapter = &Chapter{
				Number: m[1],
				Title:  strings.TrimSpace(m[2]),
			}
			st.Chapters = append(st.Chapters, currentChapter)
			continue
		}

		if m := pasalRe.FindStringSubmatch(line); m != nil {
			flushArticle()
			currentArticle = &Article{Number: m[1]}
			if currentChapter != nil {
				currentArticle.Chapter = currentChapter.Number
			}
			continue
		}

		// A chapter title often follows on the line after "BAB <n>".
		if currentChapter != nil && currentChapter.Title == "" && currentArticle == nil &&
			trimmed != "" && strings.ToUpper(trimmed) == trimmed && !pasalRef.MatchString(trimmed) {
			currentChapter.Title = trimmed
			continue
		}

		if currentArticle != nil {
			articleText.WriteString(line)
			articleText.WriteString("\n")
		}
	}
	flushArticle()

	return st
}

// extractClauses pulls "(n) ..." clauses out of an article body.
func extractClauses(text string) []Clause {
	var clauses []Clause
	var current *Clause
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(body.String())
		clauses = append(clauses, *current)
		current = nil
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if m := ayatRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Clause{Number: m[1]}
			body.WriteString(m[2])
			body.WriteString("\n")
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	return clauses
}
