package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/balidesk/oracle/pkg/oerr"
)

// maxTransientRetries bounds retries of transient failures on one tier
// before falling through to the next.
const maxTransientRetries = 3

// Ladder chains providers in cost order. Quota exhaustion on a tier
// advances the starting tier permanently for the process lifetime; transient
// failures retry on the same tier, then fall through for this request only.
type Ladder struct {
	tiers []Provider

	mu       sync.Mutex
	current  int
	fallback func(model string)
}

// NewLadder builds a ladder. Nil providers (missing API keys) are skipped,
// so degraded configurations still work with the remaining tiers.
func NewLadder(tiers ...Provider) (*Ladder, error) {
	var usable []Provider
	for _, t := range tiers {
		if t != nil {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("fallback ladder needs at least one provider")
	}
	return &Ladder{tiers: usable}, nil
}

// OnFallback registers a hook invoked with the exhausted tier's model name
// whenever the ladder permanently advances past it.
func (l *Ladder) OnFallback(hook func(model string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallback = hook
}

// Current returns the active starting tier's model name.
func (l *Ladder) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tiers[l.current].Model()
}

// Generate tries each tier from the current one down.
func (l *Ladder) Generate(ctx context.Context, req *Request) (*Response, error) {
	l.mu.Lock()
	start := l.current
	l.mu.Unlock()

	var lastErr error
	for i := start; i < len(l.tiers); i++ {
		provider := l.tiers[i]
		resp, err := l.generateTier(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, oerr.E(oerr.KindCancelled, "llm.Generate", ctx.Err())
		}

		if isQuotaError(err) {
			l.advance(i)
		}
		slog.Warn("LLM tier failed, falling through",
			"model", provider.Model(), "quota", isQuotaError(err), "error", err)
	}

	return nil, oerr.E(oerr.KindLLMUnavailable, "llm.Generate",
		fmt.Errorf("all fallback tiers exhausted: %w", lastErr))
}

// GenerateStream opens a stream on the first tier that accepts the request.
// Mid-stream failures are surfaced on the channel; text received before the
// failure remains valid for the caller.
func (l *Ladder) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, string, error) {
	l.mu.Lock()
	start := l.current
	l.mu.Unlock()

	var lastErr error
	for i := start; i < len(l.tiers); i++ {
		provider := l.tiers[i]
		chunks, err := provider.GenerateStream(ctx, req)
		if err == nil {
			return chunks, provider.Model(), nil
		}
		lastErr = err
		if isQuotaError(err) {
			l.advance(i)
		}
		slog.Warn("LLM tier refused stream, falling through",
			"model", provider.Model(), "error", err)
	}

	return nil, "", oerr.E(oerr.KindLLMUnavailable, "llm.GenerateStream",
		fmt.Errorf("all fallback tiers exhausted: %w", lastErr))
}

// generateTier retries transient failures on a single provider.
func (l *Ladder) generateTier(ctx context.Context, provider Provider, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransientRetries; attempt++ {
		resp, err := provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Quota and cancellation never retry on the same tier.
		if isQuotaError(err) || ctx.Err() != nil {
			return nil, err
		}
		if !isTransientError(err) {
			return nil, err
		}

		delay := time.Duration(1<<attempt) * 500 * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// advance moves the starting tier past the exhausted one, permanently for
// this process.
func (l *Ladder) advance(exhausted int) {
	var hook func(string)
	var model string

	l.mu.Lock()
	if exhausted >= l.current && exhausted+1 < len(l.tiers) {
		model = l.tiers[exhausted].Model()
		l.current = exhausted + 1
		hook = l.fallback
		slog.Info("LLM tier exhausted, promoting fallback",
			"new_tier", l.tiers[l.current].Model())
	}
	l.mu.Unlock()

	if hook != nil {
		hook(model)
	}
}

// Close closes all tiers.
func (l *Ladder) Close() error {
	for _, t := range l.tiers {
		t.Close()
	}
	return nil
}

// isQuotaError detects quota / billing exhaustion responses.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "billing")
}

// isTransientError detects failures worth retrying on the same tier.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout", "connection refused", "connection reset",
		"temporarily unavailable", "status 500", "status 502",
		"status 503", "status 504", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
