package openaicompat

import (
	"encoding/json"
	"testing"

	"github.com/parlorchat/parlor"
)

func TestBuildBodyToolConversation(t *testing.T) {
	req := parlor.ChatRequest{
		Messages: []parlor.PromptMessage{
			parlor.SystemMessage("sys"),
			parlor.UserMessage("Dana", "search something"),
			{
				Role: "assistant",
				ToolCalls: []parlor.ToolCall{
					{ID: "call-1", Name: "web_search", Args: json.RawMessage(`{"query":"x"}`)},
				},
			},
			parlor.ToolResultMessage("call-1", `{"result":"found it"}`),
		},
		Tools: []parlor.ToolDefinition{{Name: "web_search", Description: "search"}},
	}

	body := BuildBody(req, "gpt-test")

	if body.ToolChoice != "auto" {
		t.Errorf("tool_choice = %q", body.ToolChoice)
	}
	if len(body.Tools) != 1 || body.Tools[0].Function.Name != "web_search" {
		t.Errorf("tools = %+v", body.Tools)
	}
	if len(body.Messages) != 4 {
		t.Fatalf("messages = %d", len(body.Messages))
	}

	assistant := body.Messages[2]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call-1" {
		t.Errorf("assistant message = %+v", assistant)
	}
	if assistant.ToolCalls[0].Function.Arguments != `{"query":"x"}` {
		t.Errorf("arguments = %q", assistant.ToolCalls[0].Function.Arguments)
	}

	result := body.Messages[3]
	if result.Role != "tool" || result.ToolCallID != "call-1" {
		t.Errorf("tool result message = %+v", result)
	}
}

func TestBuildBodyUserNamePassthrough(t *testing.T) {
	body := BuildBody(parlor.ChatRequest{
		Messages: []parlor.PromptMessage{parlor.UserMessage("Dana", "hi")},
	}, "m")

	if body.Messages[0].Name != "Dana" {
		t.Errorf("name = %q", body.Messages[0].Name)
	}
	if body.ToolChoice != "" {
		t.Error("tool_choice must be empty without tools")
	}
}

func TestParseToolCallsInvalidArgs(t *testing.T) {
	out := ParseToolCalls([]ToolCallRequest{
		{ID: "a", Function: FunctionCall{Name: "f", Arguments: "{bad"}},
		{ID: "b", Function: FunctionCall{Name: "g", Arguments: `{"ok":1}`}},
	})
	if string(out[0].Args) != "{}" {
		t.Errorf("invalid args = %s", out[0].Args)
	}
	if string(out[1].Args) != `{"ok":1}` {
		t.Errorf("valid args = %s", out[1].Args)
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Error("provider ids and order must be preserved")
	}
}
