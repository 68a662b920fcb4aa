package parser

import (
	"strings"
	"testing"
)

const sampleLaw = `UNDANG-UNDANG REPUBLIK INDONESIA
NOMOR 6 TAHUN 2011
TENTANG KEIMIGRASIAN

Menimbang: bahwa keimigrasian merupakan hal penting.
Mengingat: Pasal 20 Undang-Undang Dasar 1945.

BAB I
KETENTUAN UMUM

Pasal 1
Dalam Undang-Undang ini yang dimaksud dengan keimigrasian adalah hal ihwal lalu lintas orang.

Pasal 2
Setiap orang yang masuk atau keluar wilayah Indonesia wajib memiliki dokumen perjalanan.

BAB II
PELAKSANAAN

Pasal 3
(1) Fungsi keimigrasian dilaksanakan oleh pemerintah.
(2) Pelaksanaan fungsi dilakukan oleh pejabat imigrasi.
`

func TestDetectStructure(t *testing.T) {
	st := DetectStructure(sampleLaw)

	if !st.HasStructure() {
		t.Fatal("expected legal structure")
	}
	if !st.HasMenimbang || !st.HasMengingat {
		t.Error("preamble markers not detected")
	}
	if len(st.Chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(st.Chapters))
	}
	if st.Chapters[0].Number != "I" || st.Chapters[1].Number != "II" {
		t.Errorf("chapter numbers = %s, %s", st.Chapters[0].Number, st.Chapters[1].Number)
	}
	if st.Chapters[0].Title != "KETENTUAN UMUM" {
		t.Errorf("chapter title = %q, want KETENTUAN UMUM", st.Chapters[0].Title)
	}
	if st.PasalCount() != 3 {
		t.Fatalf("got %d articles, want 3", st.PasalCount())
	}

	pasal3 := st.Articles[2]
	if pasal3.Number != "3" || pasal3.Chapter != "II" {
		t.Errorf("article 3 = number %s chapter %s", pasal3.Number, pasal3.Chapter)
	}
	if len(pasal3.Clauses) != 2 {
		t.Fatalf("got %d clauses in Pasal 3, want 2", len(pasal3.Clauses))
	}
	if pasal3.Clauses[1].Number != "2" {
		t.Errorf("second clause number = %s", pasal3.Clauses[1].Number)
	}
	if !strings.Contains(pasal3.Clauses[0].Text, "dilaksanakan oleh pemerintah") {
		t.Errorf("clause text = %q", pasal3.Clauses[0].Text)
	}
}

func TestDetectStructure_PlainText(t *testing.T) {
	st := DetectStructure("Just a plain paragraph about visas. Nothing legal here.")
	if st.HasStructure() {
		t.Error("plain text misdetected as legal structure")
	}
	if st.PasalCount() != 0 {
		t.Errorf("PasalCount = %d, want 0", st.PasalCount())
	}
}
