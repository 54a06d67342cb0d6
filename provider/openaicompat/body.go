package openaicompat

import (
	"encoding/json"

	"github.com/parlorchat/parlor"
)

// BuildBody converts parlor prompt messages and a model name into an
// OpenAI-format ChatRequest. System messages stay in the messages array as
// role:"system". When tools are present, tool_choice is set to "auto".
func BuildBody(req parlor.ChatRequest, model string) ChatRequest {
	var msgs []Message

	for _, m := range req.Messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			// Assistant message carrying tool calls. Ordering matters: this
			// message must precede its tool-result messages.
			var tcs []ToolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, ToolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			msgs = append(msgs, Message{
				Role:      "assistant",
				Content:   m.Content,
				ToolCalls: tcs,
			})

		case m.Role == "tool":
			msgs = append(msgs, Message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})

		default:
			msgs = append(msgs, Message{
				Role:    m.Role,
				Content: m.Content,
				Name:    m.Name,
			})
		}
	}

	out := ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		out.Tools = BuildToolDefs(req.Tools)
		out.ToolChoice = "auto"
	}

	return out
}

// BuildToolDefs converts parlor ToolDefinitions to OpenAI tool format.
func BuildToolDefs(tools []parlor.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
