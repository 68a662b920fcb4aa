package parser

import (
	"strings"
	"testing"
)

func TestParse_PlainText(t *testing.T) {
	p, err := Parse("notes.txt", []byte("KITAS costs 15 million IDR.\r\nSee [image] attachment [Image: chart].\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != "text" {
		t.Errorf("format = %q, want text", p.Format)
	}
	if strings.Contains(p.Text, "[image]") || strings.Contains(p.Text, "[Image") {
		t.Errorf("image markers not stripped: %q", p.Text)
	}
	if strings.Contains(p.Text, "\r") {
		t.Error("carriage returns not normalized")
	}
}

func TestParse_Markdown(t *testing.T) {
	md := "# Visa Guide\n\nInvestor KITAS requires **capital proof**.\n\n- item one\n- item two\n"
	p, err := Parse("guide.md", []byte(md))
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != "markdown" {
		t.Errorf("format = %q, want markdown", p.Format)
	}
	for _, want := range []string{"Visa Guide", "capital proof", "item one", "item two"} {
		if !strings.Contains(p.Text, want) {
			t.Errorf("markdown text missing %q: %q", want, p.Text)
		}
	}
	if strings.Contains(p.Text, "#") || strings.Contains(p.Text, "**") {
		t.Errorf("markdown syntax leaked into text: %q", p.Text)
	}
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`{"service":"Investor KITAS","price":{"amount":15000000,"currency":"IDR"}}`)
	p, err := Parse("pricing.json", data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Text, "service: Investor KITAS") {
		t.Errorf("flattened JSON missing service line: %q", p.Text)
	}
	if !strings.Contains(p.Text, "price.currency: IDR") {
		t.Errorf("flattened JSON missing nested path: %q", p.Text)
	}

	// Deterministic flattening regardless of key order.
	p2, err := Parse("pricing.json", []byte(`{"price":{"currency":"IDR","amount":15000000},"service":"Investor KITAS"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Text != p2.Text {
		t.Errorf("JSON flattening not deterministic:\n%q\n%q", p.Text, p2.Text)
	}
}

func TestParse_JSONL(t *testing.T) {
	data := []byte("{\"code\":\"56101\",\"name\":\"Restoran\"}\n\n{\"code\":\"62010\",\"name\":\"Pemrograman\"}\n")
	p, err := Parse("kbli.jsonl", data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Text, "code: 56101") || !strings.Contains(p.Text, "code: 62010") {
		t.Errorf("JSONL lines not flattened: %q", p.Text)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse("broken.json", []byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
