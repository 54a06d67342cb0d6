package parlor

import (
	"context"
	"encoding/json"
)

// Tool is a named side-effect function the managed-LLM strategy can invoke
// on the model's behalf.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"result"`
	Error   string `json:"error,omitempty"`
}

// JSON encodes the result as the wire form handed back to the model:
// {"result": ...} on success, {"error": ...} on failure.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(b)
}

// ToolRegistry holds all registered tools and dispatches execution by name.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// Definitions returns the definitions of the named tools, preserving request
// order. Unknown names are skipped. An empty allow list yields nil.
func (r *ToolRegistry) Definitions(allowed []string) []ToolDefinition {
	if len(allowed) == 0 {
		return nil
	}
	byName := make(map[string]ToolDefinition)
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			byName[d.Name] = d
		}
	}
	var defs []ToolDefinition
	for _, name := range allowed {
		if d, ok := byName[name]; ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// Execute dispatches a tool call by name.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}
