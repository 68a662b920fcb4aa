package legal

import (
	"strings"
	"testing"
)

const lawHeader = `UNDANG-UNDANG REPUBLIK INDONESIA
NOMOR 6 TAHUN 2011
TENTANG
KEIMIGRASIAN

Menimbang: bahwa perlu diatur.
Mengingat: Pasal 20 UUD 1945.
`

func TestClassify(t *testing.T) {
	m := Classify(lawHeader)

	if m.Type != "UNDANG-UNDANG" || m.TypeAbbrev != "UU" {
		t.Errorf("type = %s/%s, want UNDANG-UNDANG/UU", m.Type, m.TypeAbbrev)
	}
	if m.Number != "6" {
		t.Errorf("number = %s, want 6", m.Number)
	}
	if m.Year != "2011" {
		t.Errorf("year = %s, want 2011", m.Year)
	}
	if m.Topic != "KEIMIGRASIAN" {
		t.Errorf("topic = %q, want KEIMIGRASIAN", m.Topic)
	}
}

func TestClassify_Fallbacks(t *testing.T) {
	m := Classify("random text with no legal markers at all")

	if m.Type != Unknown || m.Number != Unknown || m.Year != Unknown || m.Topic != Unknown {
		t.Errorf("missing fields should be UNKNOWN, got %+v", m)
	}
	if m.Status != "" {
		t.Errorf("status = %q, want empty", m.Status)
	}
	if got := m.BuildFullTitle(); got != "Unknown Legal Document" {
		t.Errorf("BuildFullTitle = %q, want Unknown Legal Document", got)
	}
}

func TestClassify_TopicTruncatedAndNormalized(t *testing.T) {
	header := "PERATURAN PEMERINTAH NOMOR 35 TAHUN 2021\nTENTANG " +
		strings.Repeat("PERJANJIAN  KERJA \t WAKTU TERTENTU ", 20)
	m := Classify(header)

	if m.TypeAbbrev != "PP" {
		t.Errorf("abbrev = %s, want PP", m.TypeAbbrev)
	}
	if len(m.Topic) > 200 {
		t.Errorf("topic not truncated: %d chars", len(m.Topic))
	}
	if strings.Contains(m.Topic, "  ") || strings.Contains(m.Topic, "\t") {
		t.Errorf("topic whitespace not normalized: %q", m.Topic)
	}
}

func TestClassify_Repealed(t *testing.T) {
	m := Classify(lawHeader + "\nUndang-undang sebelumnya dicabut dan dinyatakan tidak berlaku.")
	if m.Status != "repealed" {
		t.Errorf("status = %q, want repealed", m.Status)
	}
}

func TestBuildFullTitle(t *testing.T) {
	m := Classify(lawHeader)
	got := m.BuildFullTitle()
	want := "UU No. 6 Tahun 2011 tentang Keimigrasian"
	if got != want {
		t.Errorf("BuildFullTitle = %q, want %q", got, want)
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("same text")
	b := Fingerprint("same text")
	if a != b {
		t.Error("fingerprint not stable")
	}
	if a == Fingerprint("different text") {
		t.Error("different texts collide")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestOCRQualityScore(t *testing.T) {
	clean := "Pasal 1 mengatur tentang keimigrasian di wilayah Indonesia."
	if score := OCRQualityScore(clean); score < GoodQualityScore {
		t.Errorf("clean text score = %f, want >= %f", score, GoodQualityScore)
	}

	garbage := "P@s\x01l ~1 #$^ \x02\x03 *|\\ ^^ ~~ \x7f\x7f\x7f ##@@ $$ ||"
	if score := OCRQualityScore(garbage); score >= GoodQualityScore {
		t.Errorf("garbage score = %f, want < %f", score, GoodQualityScore)
	}

	if OCRQualityScore("") != 0 {
		t.Error("empty text should score 0")
	}
}

func TestIsIncomplete(t *testing.T) {
	if IsIncomplete("The document ends with a full sentence.") {
		t.Error("complete text flagged as incomplete")
	}
	if !IsIncomplete("This document stops mid") {
		t.Error("mid-sentence text not flagged")
	}
	if !IsIncomplete("") {
		t.Error("empty text not flagged")
	}
}

func TestAssess(t *testing.T) {
	q := Assess("This is a clean, complete document about tax rules.")
	if q.NeedsReextract {
		t.Errorf("clean document flagged for reextract: %+v", q)
	}
	if q.TextFingerprint == "" {
		t.Error("fingerprint missing")
	}

	q = Assess("broken extraction that cuts off mid")
	if !q.NeedsReextract {
		t.Error("incomplete document not flagged for reextract")
	}
}

func TestIsLegalDocument(t *testing.T) {
	if !IsLegalDocument(lawHeader) {
		t.Error("law header not recognized as legal document")
	}
	if IsLegalDocument("An ordinary blog post about moving to Bali.") {
		t.Error("plain text misclassified as legal document")
	}
	// One marker alone is not enough.
	if IsLegalDocument("See Pasal 5 for details.") {
		t.Error("single marker should not classify as legal")
	}
}
