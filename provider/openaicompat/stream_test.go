package openaicompat

import (
	"context"
	"io"
	"strings"
	"testing"
)

// chunkedReader yields its parts one Read call at a time, simulating network
// reads that split SSE lines at arbitrary byte boundaries.
type chunkedReader struct {
	parts []string
	i     int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.i >= len(r.parts) {
		return 0, io.EOF
	}
	n := copy(p, r.parts[r.i])
	r.i++
	return n, nil
}

func TestStreamSSESplitAcrossReads(t *testing.T) {
	// One logical line delivered in two reads: the scanner must buffer the
	// partial line and emit a single delta.
	body := &chunkedReader{parts: []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"He",
		"llo\"}}]}\n\ndata: [DONE]\n\n",
	}}

	ch := make(chan string, 8)
	var deltas []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range ch {
			deltas = append(deltas, d)
		}
	}()

	resp, err := StreamSSE(context.Background(), body, ch)
	<-done
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	if resp.Content != "Hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(deltas) != 1 || deltas[0] != "Hello" {
		t.Errorf("deltas = %v, want one complete delta", deltas)
	}
}

func TestStreamSSEAccumulatesContent(t *testing.T) {
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"two \"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"three\"}}]}\n\n" +
			"data: [DONE]\n\n")

	ch := make(chan string, 8)
	done := make(chan struct{})
	var deltas []string
	go func() {
		defer close(done)
		for d := range ch {
			deltas = append(deltas, d)
		}
	}()

	resp, err := StreamSSE(context.Background(), body, ch)
	<-done
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	if resp.Content != "one two three" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(deltas) != 3 {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestStreamSSEAssemblesToolCalls(t *testing.T) {
	// Tool call id/name arrive first, arguments stream in fragments.
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call-9\",\"function\":{\"name\":\"web_search\",\"arguments\":\"{\\\"qu\"}}]}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"ery\\\":\\\"go\\\"}\"}}]}}]}\n\n" +
			"data: [DONE]\n\n")

	ch := make(chan string, 8)
	go func() {
		for range ch {
		}
	}()

	resp, err := StreamSSE(context.Background(), body, ch)
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call-9" || tc.Name != "web_search" {
		t.Errorf("tool call = %+v", tc)
	}
	if string(tc.Args) != `{"query":"go"}` {
		t.Errorf("args = %s", tc.Args)
	}
}

func TestStreamSSEInvalidToolArgsBecomeEmptyObject(t *testing.T) {
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"c1\",\"function\":{\"name\":\"echo\",\"arguments\":\"{broken\"}}]}}]}\n\n" +
			"data: [DONE]\n\n")

	ch := make(chan string, 8)
	go func() {
		for range ch {
		}
	}()

	resp, err := StreamSSE(context.Background(), body, ch)
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	if string(resp.ToolCalls[0].Args) != "{}" {
		t.Errorf("args = %s, want empty object for invalid JSON", resp.ToolCalls[0].Args)
	}
}

func TestStreamSSECapturesUsage(t *testing.T) {
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
			"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3}}\n\n" +
			"data: [DONE]\n\n")

	ch := make(chan string, 8)
	go func() {
		for range ch {
		}
	}()

	resp, err := StreamSSE(context.Background(), body, ch)
	if err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}
