package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/balidesk/oracle/pkg/llm"
)

// hydePrompt asks for hypothetical questions a chunk answers. Embedding
// them alongside the text improves recall for question-shaped queries.
const hydePrompt = `Write %d short questions a user might ask that the passage
below directly answers. Write in the same language as the passage.

Return one question per line, nothing else.

Passage:
%s`

// hydeMaxChunkChars bounds prompt size for huge chunks.
const hydeMaxChunkChars = 2000

// hydeQuestions generates hypothetical questions for one chunk. Best
// effort: any failure returns nil.
func (in *Ingestor) hydeQuestions(ctx context.Context, text string) []string {
	if in.hyde == nil {
		return nil
	}
	if len(text) > hydeMaxChunkChars {
		text = text[:hydeMaxChunkChars]
	}

	resp, err := in.hyde.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(hydePrompt, in.cfg.HydeQuestions, text)},
		},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		slog.Debug("HyDE generation skipped", "error", err)
		return nil
	}
	return parseQuestions(resp.Text, in.cfg.HydeQuestions)
}

// parseQuestions extracts up to n question lines, stripping list markers.
func parseQuestions(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
