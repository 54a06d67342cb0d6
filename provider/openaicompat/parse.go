package openaicompat

import (
	"encoding/json"

	"github.com/parlorchat/parlor"
)

// ParseResponse converts an OpenAI-format ChatResponse to a parlor
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (parlor.ChatResponse, error) {
	var out parlor.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = parlor.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to parlor ToolCalls,
// preserving the provider's call ids and order.
// OpenAI returns function.arguments as a JSON string; invalid JSON becomes {}.
func ParseToolCalls(tcs []ToolCallRequest) []parlor.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]parlor.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, parlor.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
