package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider implements Provider against the Anthropic messages API.
// It is the external rung of the fallback ladder.
type AnthropicProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

// AnthropicConfig configures an Anthropic provider.
type AnthropicConfig struct {
	// APIKey (required).
	APIKey string

	// Model name, e.g. "claude-3-5-haiku-20241022".
	Model string

	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string

	// Timeout for blocking requests (default 120s).
	Timeout time.Duration
}

type anthropicMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]interface{} `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &AnthropicProvider{
		client:  &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}, nil
}

// Generate runs a blocking completion.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := p.doRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Anthropic response: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("Anthropic API error (%s): %s", resp.Error.Type, resp.Error.Message)
	}

	out := &Response{
		Model:        p.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}

// GenerateStream streams text deltas via SSE.
func (p *AnthropicProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	body, err := p.doRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				continue
			}
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
				select {
				case chunks <- StreamChunk{Text: event.Delta.Text}:
				case <-ctx.Done():
					return
				}
			}
			if event.Type == "message_stop" {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			chunks <- StreamChunk{Err: err}
		}
	}()
	return chunks, nil
}

func (p *AnthropicProvider) doRequest(ctx context.Context, req *Request, stream bool) (io.ReadCloser, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	apiReq := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  p.buildMessages(req.Messages),
		Stream:    stream,
	}
	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("Anthropic API returned status %d: %s", resp.StatusCode, string(raw))
	}
	return resp.Body, nil
}

func (p *AnthropicProvider) buildMessages(messages []Message) []anthropicMessage {
	var out []anthropicMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			var content []map[string]interface{}
			if msg.Content != "" {
				content = append(content, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Input,
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: content})
		case RoleTool:
			var content []map[string]interface{}
			for _, tr := range msg.ToolResults {
				content = append(content, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": tr.ToolCallID,
					"content":     tr.Content,
				})
			}
			out = append(out, anthropicMessage{Role: "user", Content: content})
		default:
			out = append(out, anthropicMessage{
				Role:    "user",
				Content: []map[string]interface{}{{"type": "text", "text": msg.Content}},
			})
		}
	}
	return out
}

func (p *AnthropicProvider) Model() string { return p.model }
func (p *AnthropicProvider) Close() error  { return nil }

// Ensure AnthropicProvider implements Provider.
var _ Provider = (*AnthropicProvider)(nil)
