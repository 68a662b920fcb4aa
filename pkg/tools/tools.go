// Package tools is the function-calling surface exposed to the LLM during
// answer generation. Tools are registered by name and described to the
// model via JSON schema.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/oerr"
)

// Tool is one callable function.
type Tool interface {
	// Def describes the tool to the model.
	Def() llm.ToolDef

	// Execute runs the tool. The returned string is fed back to the model
	// verbatim.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(t Tool) error {
	name := t.Def().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Defs lists the tool definitions in name order, ready to pass to the
// model.
func (r *Registry) Defs() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Def())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool by name. Unknown tools and tool failures come back
// as an error string so the model can recover, plus the error for the
// caller's logs.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		err := oerr.E(oerr.KindNotFound, "tools.Execute", fmt.Errorf("unknown tool %s", call.Name))
		return fmt.Sprintf("error: unknown tool %q", call.Name), err
	}

	out, err := t.Execute(ctx, call.Input)
	if err != nil {
		return fmt.Sprintf("error: %v", err), err
	}
	return out, nil
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// optionalStringArg extracts an optional string argument.
func optionalStringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
