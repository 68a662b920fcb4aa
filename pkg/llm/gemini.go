package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiConfig configures a Gemini provider.
type GeminiConfig struct {
	// APIKey is the Google AI API key (required).
	APIKey string

	// Model name, e.g. "gemini-2.5-flash".
	Model string
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

// Generate runs a blocking completion.
func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents := p.buildContents(req)
	config := p.buildConfig(req)

	genResp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}
	return p.parseResponse(genResp)
}

// GenerateStream streams text deltas. Tool calls are not streamed; callers
// needing tools use Generate.
func (p *GeminiProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	contents := p.buildContents(req)
	config := p.buildConfig(req)

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		for genResp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				select {
				case chunks <- StreamChunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, candidate := range genResp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part.Text == "" || part.Thought {
						continue
					}
					select {
					case chunks <- StreamChunk{Text: part.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return chunks, nil
}

func (p *GeminiProvider) Model() string { return p.model }
func (p *GeminiProvider) Close() error  { return nil }

func (p *GeminiProvider) buildContents(req *Request) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range req.Messages {
		var parts []*genai.Part
		role := "user"

		switch msg.Role {
		case RoleAssistant:
			role = "model"
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Input,
					},
				})
			}
		case RoleTool:
			for _, tr := range msg.ToolResults {
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       tr.ToolCallID,
						Name:     tr.Name,
						Response: map[string]interface{}{"result": tr.Content},
					},
				})
			}
		default:
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

func (p *GeminiProvider) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
			Role:  "user",
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	for _, t := range req.Tools {
		config.Tools = append(config.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toGenaiSchema(t.Parameters),
				},
			},
		})
	}
	return config
}

func (p *GeminiProvider) parseResponse(genResp *genai.GenerateContentResponse) (*Response, error) {
	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	resp := &Response{Model: p.model}
	candidate := genResp.Candidates[0]

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(resp.ToolCalls))
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:    id,
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				})
			}
		}
		resp.Text = text.String()
	}

	if genResp.UsageMetadata != nil {
		resp.InputTokens = int(genResp.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(genResp.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// toGenaiSchema converts a JSON schema map to the genai schema type.
func toGenaiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		s.Required = append(s.Required, required...)
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

// Ensure GeminiProvider implements Provider.
var _ Provider = (*GeminiProvider)(nil)
