package legal

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

// Quality thresholds.
const (
	// GoodQualityScore: at or above this OCR score the text is trusted.
	GoodQualityScore = 0.85

	// reextractScore: below this the document should be re-extracted.
	reextractScore = 0.6

	// garbageRatioLimit: digits+symbols above this fraction suggest a
	// broken extraction.
	garbageRatioLimit = 0.4
)

// Quality is the extraction quality assessment of a document.
type Quality struct {
	// TextFingerprint is the sha256 hex digest of the text.
	TextFingerprint string

	// OCRScore is the fraction of recognizable runes, in [0,1].
	OCRScore float64

	// IsIncomplete flags documents that end mid-sentence or are mostly
	// digits and symbols.
	IsIncomplete bool

	// NeedsReextract flags documents too damaged to index as-is.
	NeedsReextract bool
}

// Fingerprint returns the sha256 hex digest of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Assess computes the full quality record for a document text.
func Assess(text string) *Quality {
	score := OCRQualityScore(text)
	incomplete := IsIncomplete(text)
	return &Quality{
		TextFingerprint: Fingerprint(text),
		OCRScore:        score,
		IsIncomplete:    incomplete,
		NeedsReextract:  score < reextractScore || incomplete,
	}
}

// OCRQualityScore is the fraction of recognizable runes: letters, digits,
// whitespace and common punctuation. OCR garbage (control runes,
// replacement characters, stray symbols) lowers the score.
func OCRQualityScore(text string) float64 {
	if text == "" {
		return 0
	}
	var total, good int
	for _, r := range text {
		total++
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			good++
		case strings.ContainsRune(`.,;:!?()[]{}"'%/&+-–—`, r):
			good++
		}
	}
	return float64(good) / float64(total)
}

// sentenceEnd matches text that finishes a sentence or a list item.
var sentenceEnd = regexp.MustCompile(`[.!?:;)\]"']$|\d$`)

// IsIncomplete reports whether text appears cut off mid-sentence or is
// dominated by digits and symbols.
func IsIncomplete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	if !sentenceEnd.MatchString(trimmed) {
		return true
	}

	var total, garbage int
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) {
			garbage++
		}
	}
	if total == 0 {
		return true
	}
	return float64(garbage)/float64(total) > garbageRatioLimit
}

// Legal document markers for the is-legal predicate.
var legalMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)UNDANG-UNDANG|PERATURAN\s+(PEMERINTAH|PRESIDEN|MENTERI|DAERAH)|KEPUTUSAN\s+(PRESIDEN|MENTERI)`),
	regexp.MustCompile(`(?m)^\s*Menimbang`),
	regexp.MustCompile(`(?m)^\s*Mengingat`),
	regexp.MustCompile(`\bPasal\s+\d+`),
	regexp.MustCompile(`\bPRESIDEN\b`),
}

// IsLegalDocument reports whether the text looks like an Indonesian legal
// document: at least two independent markers must fire.
func IsLegalDocument(text string) bool {
	hits := 0
	for _, re := range legalMarkers {
		if re.MatchString(text) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
