package retrieval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Conflict is a contradiction between two retrieved passages on a shared
// predicate, e.g. two different fees for the same visa.
type Conflict struct {
	// Predicate names what the passages disagree on ("amount idr",
	// "duration days", "year").
	Predicate string

	// IndexA and IndexB point into Result.Results, A being the
	// higher-scored passage.
	IndexA, IndexB int

	ValueA, ValueB string
}

// conflictScanLimit bounds the pairwise comparison to the top passages.
const conflictScanLimit = 5

var (
	amountRe   = regexp.MustCompile(`(?i)(?:idr|rp\.?|usd)\s*([\d][\d.,]*)|([\d][\d.,]*)\s*(?:idr|rupiah|juta|million)`)
	durationRe = regexp.MustCompile(`(?i)(\d+)\s*(days?|months?|years?|hari|bulan|tahun)`)
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// DetectConflicts compares the top passages pairwise for contradictory
// numeric or date predicates. It is a heuristic screen, not a judgment:
// resolution notes tell the orchestrator which passage to prefer.
func DetectConflicts(passages []Passage) ([]Conflict, []string) {
	n := len(passages)
	if n > conflictScanLimit {
		n = conflictScanLimit
	}

	var conflicts []Conflict
	var notes []string
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for _, c := range comparePassages(passages[i].Text, passages[j].Text) {
				c.IndexA, c.IndexB = i, j
				conflicts = append(conflicts, c)
				notes = append(notes, fmt.Sprintf(
					"passages %d and %d disagree on %s (%s vs %s); passage %d scored higher",
					i, j, c.Predicate, c.ValueA, c.ValueB, i))
			}
		}
	}
	return conflicts, notes
}

func comparePassages(a, b string) []Conflict {
	var out []Conflict

	if va, vb, ok := firstMismatch(extractAmounts(a), extractAmounts(b)); ok {
		out = append(out, Conflict{Predicate: "amount", ValueA: va, ValueB: vb})
	}
	if va, vb, ok := firstUnitMismatch(extractDurations(a), extractDurations(b)); ok {
		out = append(out, Conflict{Predicate: "duration", ValueA: va, ValueB: vb})
	}
	if va, vb, ok := firstMismatch(yearRe.FindAllString(a, 1), yearRe.FindAllString(b, 1)); ok {
		out = append(out, Conflict{Predicate: "year", ValueA: va, ValueB: vb})
	}
	return out
}

// firstMismatch reports a conflict when both sides state a value and the
// leading values differ. Either side being silent is not a conflict.
func firstMismatch(a, b []string) (string, string, bool) {
	if len(a) == 0 || len(b) == 0 {
		return "", "", false
	}
	if normalizeNumber(a[0]) != normalizeNumber(b[0]) {
		return a[0], b[0], true
	}
	return "", "", false
}

type duration struct {
	value int
	unit  string
}

func extractDurations(text string) []duration {
	var out []duration
	for _, m := range durationRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, duration{value: v, unit: normalizeUnit(m[2])})
	}
	return out
}

// firstUnitMismatch compares durations only within the same unit: "30 days"
// against "5 years" is not a contradiction.
func firstUnitMismatch(a, b []duration) (string, string, bool) {
	for _, da := range a {
		for _, db := range b {
			if da.unit == db.unit && da.value != db.value {
				return fmt.Sprintf("%d %s", da.value, da.unit),
					fmt.Sprintf("%d %s", db.value, db.unit), true
			}
		}
	}
	return "", "", false
}

func extractAmounts(text string) []string {
	var out []string
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}

func normalizeNumber(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSuffix(u, "s"))
	switch u {
	case "hari":
		return "day"
	case "bulan":
		return "month"
	case "tahun":
		return "year"
	}
	return u
}
