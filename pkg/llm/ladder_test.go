package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/balidesk/oracle/pkg/oerr"
)

func TestLadder_QuotaAdvancesTierPermanently(t *testing.T) {
	flash := &FakeProvider{
		ModelName: "gemini-2.5-flash",
		Script:    []FakeResult{{Err: errors.New("googleapi: Error 429: quota exceeded")}},
	}
	flashLite := &FakeProvider{
		ModelName: "gemini-2.5-flash-lite",
		Script:    []FakeResult{{Resp: &Response{Text: "Reply."}}},
	}

	ladder, err := NewLadder(flash, flashLite)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := ladder.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "Reply." {
		t.Errorf("text = %q, want Reply.", resp.Text)
	}
	if resp.Model != "gemini-2.5-flash-lite" {
		t.Errorf("model = %q, want the fallback tier", resp.Model)
	}

	// Second request starts at the promoted tier: Flash is not called again.
	flashCallsBefore := flash.Calls()
	if _, err := ladder.Generate(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	if flash.Calls() != flashCallsBefore {
		t.Error("exhausted tier was called after permanent promotion")
	}
	if ladder.Current() != "gemini-2.5-flash-lite" {
		t.Errorf("Current = %q, want promoted tier", ladder.Current())
	}
}

func TestLadder_FallbackHookFiresOnQuotaAdvance(t *testing.T) {
	flash := &FakeProvider{
		ModelName: "gemini-2.5-flash",
		Script:    []FakeResult{{Err: errors.New("googleapi: Error 429: quota exceeded")}},
	}
	flashLite := &FakeProvider{
		ModelName: "gemini-2.5-flash-lite",
		Script:    []FakeResult{{Resp: &Response{Text: "Reply."}}},
	}

	ladder, err := NewLadder(flash, flashLite)
	if err != nil {
		t.Fatal(err)
	}

	var exhausted []string
	ladder.OnFallback(func(model string) { exhausted = append(exhausted, model) })

	if _, err := ladder.Generate(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	if len(exhausted) != 1 || exhausted[0] != "gemini-2.5-flash" {
		t.Errorf("hook calls = %v, want the exhausted tier once", exhausted)
	}

	// The promoted tier serves later requests without re-firing the hook.
	if _, err := ladder.Generate(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	if len(exhausted) != 1 {
		t.Errorf("hook fired %d times, want 1", len(exhausted))
	}
}

func TestLadder_TransientRetriesSameTier(t *testing.T) {
	flash := &FakeProvider{
		ModelName: "gemini-2.5-flash",
		Script: []FakeResult{
			{Err: errors.New("connection reset by peer")},
			{Resp: &Response{Text: "recovered"}},
		},
	}
	fallback := &FakeProvider{ModelName: "claude-3-5-haiku-20241022"}

	ladder, err := NewLadder(flash, fallback)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := ladder.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("text = %q, want recovered from same tier", resp.Text)
	}
	if fallback.Calls() != 0 {
		t.Error("fallback tier called for a transient failure")
	}
	if ladder.Current() != "gemini-2.5-flash" {
		t.Error("transient failure must not promote tiers")
	}
}

func TestLadder_AllTiersExhausted(t *testing.T) {
	a := &FakeProvider{ModelName: "a", Script: []FakeResult{{Err: errors.New("quota exceeded")}}}
	b := &FakeProvider{ModelName: "b", Script: []FakeResult{{Err: errors.New("RESOURCE_EXHAUSTED")}}}

	ladder, err := NewLadder(a, b)
	if err != nil {
		t.Fatal(err)
	}

	_, err = ladder.Generate(context.Background(), &Request{})
	if !oerr.Is(err, oerr.KindLLMUnavailable) {
		t.Errorf("got %v, want LLMUnavailable", err)
	}
}

func TestNewLadder_SkipsNilTiers(t *testing.T) {
	only := &FakeProvider{ModelName: "only"}
	ladder, err := NewLadder(nil, only, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ladder.Current() != "only" {
		t.Errorf("Current = %q", ladder.Current())
	}

	if _, err := NewLadder(nil, nil); err == nil {
		t.Error("expected error for empty ladder")
	}
}

func TestIsQuotaError(t *testing.T) {
	if !isQuotaError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")) {
		t.Error("429 not detected as quota")
	}
	if isQuotaError(errors.New("connection refused")) {
		t.Error("transient error misdetected as quota")
	}
}
