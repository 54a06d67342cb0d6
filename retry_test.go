package parlor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return ChatResponse{}, f.err
	}
	return ChatResponse{Content: "ok"}, nil
}

func (f *flakyProvider) ChatStream(_ context.Context, _ ChatRequest, ch chan<- string) (ChatResponse, error) {
	defer close(ch)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return ChatResponse{}, f.err
	}
	ch <- "ok"
	return ChatResponse{Content: "ok"}, nil
}

func TestRetryRecoversFromTransient(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: &ErrHTTP{Status: 429}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Errorf("resp = %+v after %d calls", resp, inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: &ErrHTTP{Status: 503}}
	p := WithRetry(inner, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: &ErrHTTP{Status: 401}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("want error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want no retry on 401", inner.calls)
	}
}

func TestRetryStreamRetriesBeforeFirstToken(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: &ErrHTTP{Status: 429}}
	p := WithRetry(inner, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	ch := make(chan string, 8)
	done := make(chan struct{})
	var deltas []string
	go func() {
		defer close(done)
		for d := range ch {
			deltas = append(deltas, d)
		}
	}()

	resp, err := p.ChatStream(context.Background(), ChatRequest{}, ch)
	<-done
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Content != "ok" || len(deltas) != 1 {
		t.Errorf("resp = %+v, deltas = %v", resp, deltas)
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	if got := ParseRetryAfter("12"); got != 12*time.Second {
		t.Errorf("got %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("got %v", got)
	}
	if got := ParseRetryAfter("garbage"); got != 0 {
		t.Errorf("got %v", got)
	}
}
