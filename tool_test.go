package parlor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type staticTool struct {
	defs []ToolDefinition
}

func (s staticTool) Definitions() []ToolDefinition { return s.defs }

func (s staticTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "ran " + name}, nil
}

func registryWith(names ...string) *ToolRegistry {
	r := NewToolRegistry()
	for _, n := range names {
		r.Add(staticTool{defs: []ToolDefinition{{Name: n, Description: n}}})
	}
	return r
}

func TestRegistryDefinitionsFilterByAllowList(t *testing.T) {
	r := registryWith("alpha", "beta", "gamma")

	defs := r.Definitions([]string{"beta", "gamma"})
	if len(defs) != 2 {
		t.Fatalf("defs = %+v", defs)
	}
	for _, d := range defs {
		if d.Name == "alpha" {
			t.Error("alpha is not on the allow list")
		}
	}

	if defs := r.Definitions(nil); defs != nil {
		t.Errorf("empty allow list should expose nothing, got %+v", defs)
	}

	if defs := r.Definitions([]string{"nope"}); defs != nil {
		t.Errorf("unknown names should expose nothing, got %+v", defs)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := registryWith("alpha")

	result, err := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Errorf("result = %+v, want unknown-tool error payload", result)
	}
}

func TestToolResultJSON(t *testing.T) {
	ok := ToolResult{Content: "hello"}
	if got := ok.JSON(); got != `{"result":"hello"}` {
		t.Errorf("JSON = %s", got)
	}

	failed := ToolResult{Error: "boom"}
	if got := failed.JSON(); !strings.Contains(got, `"error":"boom"`) {
		t.Errorf("JSON = %s", got)
	}
}
