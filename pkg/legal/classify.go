// Package legal classifies Indonesian legal documents and scores extraction
// quality.
package legal

import (
	"regexp"
	"strings"
)

// Unknown is the literal fallback value for fields that could not be
// extracted.
const Unknown = "UNKNOWN"

// maxTopicLen truncates overlong TENTANG subjects.
const maxTopicLen = 200

// Metadata is the classification result for one document.
type Metadata struct {
	// Type is the full document type, e.g. "UNDANG-UNDANG".
	Type string

	// TypeAbbrev is the conventional abbreviation, e.g. "UU".
	TypeAbbrev string

	// Number is the document number, e.g. "6".
	Number string

	// Year is the four-digit year, e.g. "2011".
	Year string

	// Topic is the normalized TENTANG subject, at most 200 characters.
	Topic string

	// Status is "active", "repealed" or "" when undeterminable.
	Status string
}

// documentTypes maps type patterns to (canonical type, abbreviation), in
// priority order: more specific patterns first.
var documentTypes = []struct {
	re     *regexp.Regexp
	name   string
	abbrev string
}{
	{regexp.MustCompile(`(?i)PERATURAN\s+PEMERINTAH\s+PENGGANTI\s+UNDANG-UNDANG`), "PERATURAN PEMERINTAH PENGGANTI UNDANG-UNDANG", "PERPPU"},
	{regexp.MustCompile(`(?i)PERATURAN\s+PEMERINTAH`), "PERATURAN PEMERINTAH", "PP"},
	{regexp.MustCompile(`(?i)PERATURAN\s+PRESIDEN`), "PERATURAN PRESIDEN", "PERPRES"},
	{regexp.MustCompile(`(?i)KEPUTUSAN\s+PRESIDEN`), "KEPUTUSAN PRESIDEN", "KEPPRES"},
	{regexp.MustCompile(`(?i)PERATURAN\s+MENTERI`), "PERATURAN MENTERI", "PERMEN"},
	{regexp.MustCompile(`(?i)KEPUTUSAN\s+MENTERI`), "KEPUTUSAN MENTERI", "KEPMEN"},
	{regexp.MustCompile(`(?i)PERATURAN\s+DAERAH`), "PERATURAN DAERAH", "PERDA"},
	{regexp.MustCompile(`(?i)PERATURAN\s+OTORITAS\s+JASA\s+KEUANGAN`), "PERATURAN OTORITAS JASA KEUANGAN", "POJK"},
	{regexp.MustCompile(`(?i)SURAT\s+EDARAN`), "SURAT EDARAN", "SE"},
	{regexp.MustCompile(`(?i)UNDANG-UNDANG`), "UNDANG-UNDANG", "UU"},
}

var (
	numberRe   = regexp.MustCompile(`(?i)NOMOR\s+(\d+[A-Z]?)`)
	yearRe     = regexp.MustCompile(`(?i)TAHUN\s+(\d{4})`)
	topicRe    = regexp.MustCompile(`(?is)TENTANG\s+(.+?)(?:\n\s*\n|$)`)
	repealedRe = regexp.MustCompile(`(?i)dicabut\s+dan\s+dinyatakan\s+tidak\s+berlaku|telah\s+dicabut`)
	activeRe   = regexp.MustCompile(`(?i)masih\s+berlaku|mulai\s+berlaku`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Classify extracts legal document metadata from text. Missing fields fall
// back to "UNKNOWN"; status falls back to "".
func Classify(text string) *Metadata {
	// Classification signals live in the document header.
	head := text
	if len(head) > 4000 {
		head = head[:4000]
	}

	m := &Metadata{
		Type:       Unknown,
		TypeAbbrev: Unknown,
		Number:     Unknown,
		Year:       Unknown,
		Topic:      Unknown,
	}

	for _, dt := range documentTypes {
		if dt.re.MatchString(head) {
			m.Type = dt.name
			m.TypeAbbrev = dt.abbrev
			break
		}
	}

	if match := numberRe.FindStringSubmatch(head); match != nil {
		m.Number = match[1]
	}
	if match := yearRe.FindStringSubmatch(head); match != nil {
		m.Year = match[1]
	}
	if match := topicRe.FindStringSubmatch(head); match != nil {
		topic := spaceRe.ReplaceAllString(strings.TrimSpace(match[1]), " ")
		if len(topic) > maxTopicLen {
			topic = topic[:maxTopicLen]
		}
		if topic != "" {
			m.Topic = topic
		}
	}

	switch {
	case repealedRe.MatchString(text):
		m.Status = "repealed"
	case activeRe.MatchString(text):
		m.Status = "active"
	}

	return m
}

// BuildFullTitle composes the canonical title, e.g.
// "UU No. 6 Tahun 2011 tentang Keimigrasian". All-unknown metadata yields
// "Unknown Legal Document".
func (m *Metadata) BuildFullTitle() string {
	if m.TypeAbbrev == Unknown && m.Number == Unknown && m.Year == Unknown && m.Topic == Unknown {
		return "Unknown Legal Document"
	}

	var parts []string
	if m.TypeAbbrev != Unknown {
		parts = append(parts, m.TypeAbbrev)
	}
	if m.Number != Unknown {
		parts = append(parts, "No. "+m.Number)
	}
	if m.Year != Unknown {
		parts = append(parts, "Tahun "+m.Year)
	}
	if m.Topic != Unknown {
		parts = append(parts, "tentang "+titleCaseTopic(m.Topic))
	}
	return strings.Join(parts, " ")
}

// titleCaseTopic converts an ALL-CAPS topic to title case for display.
func titleCaseTopic(topic string) string {
	words := strings.Fields(strings.ToLower(topic))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
