package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/fanout"
)

type fakeMessageStore struct {
	mu      sync.Mutex
	created []parlor.Message
}

func (f *fakeMessageStore) RecentMessages(context.Context, string, int) ([]parlor.Message, error) {
	return nil, nil
}

func (f *fakeMessageStore) CreateMessage(_ context.Context, msg parlor.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeMessageStore) messages() []parlor.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]parlor.Message(nil), f.created...)
}

func webhookContext(url, secret string) parlor.ExecContext {
	return parlor.ExecContext{
		Bot: parlor.Bot{
			ID:          "b1",
			GuildID:     "g1",
			UserID:      "ubot",
			DisplayName: "Proxy",
			Mode:        parlor.ModeWebhook,
			Webhook:     parlor.WebhookConfig{URL: url, Secret: secret},
		},
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		Author:    parlor.Sender{ID: "u1", Name: "Dana"},
		Content:   "do the thing",
		Window: []parlor.Message{
			{Sender: parlor.Sender{Name: "Dana"}, Content: "earlier context"},
		},
	}
}

func newStrategy(msgs *fakeMessageStore) *Strategy {
	emitter := fanout.NewEmitter(fanout.NewMemoryQueue(64), fanout.NewMemoryPubSub())
	return New(msgs, emitter)
}

func TestSignDeterministicAndKeySensitive(t *testing.T) {
	payload := []byte(`{"event":"message.mention"}`)
	a := Sign("secret-a", payload)
	b := Sign("secret-a", payload)
	c := Sign("secret-b", payload)

	if a != b {
		t.Error("same secret and payload must produce the same signature")
	}
	if a == c {
		t.Error("different secrets must produce different signatures")
	}
	if a == Sign("secret-a", []byte(`{"event":"other"}`)) {
		t.Error("different payloads must produce different signatures")
	}
}

func TestExecuteSignsAndSendsPayload(t *testing.T) {
	var gotSig string
	var gotPayload Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		if Sign("hunter2", body) != gotSig {
			t.Errorf("signature does not verify against body")
		}
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":"done"}`)
	}))
	defer srv.Close()

	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	if err := s.Execute(context.Background(), webhookContext(srv.URL, "hunter2")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotSig == "" {
		t.Error("request was not signed")
	}
	if gotPayload.Event != "message.mention" || gotPayload.BotID != "b1" {
		t.Errorf("payload = %+v", gotPayload)
	}
	if len(gotPayload.Context) != 1 || gotPayload.Context[0].Content != "earlier context" {
		t.Errorf("payload context = %+v", gotPayload.Context)
	}

	got := msgs.messages()
	if len(got) != 1 || got[0].Content != "done" {
		t.Errorf("persisted = %+v, want the JSON reply", got)
	}
	if !got[0].Sender.IsBot || got[0].Sender.Name != "Proxy" {
		t.Errorf("reply sender = %+v", got[0].Sender)
	}
}

func TestExecuteRelaysSSEStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"Hello \"}\n\n")
		fmt.Fprint(w, "data: {\"content\":\"world\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	if err := s.Execute(context.Background(), webhookContext(srv.URL, "")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := msgs.messages()
	if len(got) != 1 || got[0].Content != "Hello world" {
		t.Errorf("persisted = %+v, want concatenated stream", got)
	}
}

func TestExecuteStreamAbortKeepsPartialContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"partial answer\"}\n\n")
		w.(http.Flusher).Flush()
		// Drop the connection without [DONE] or a terminating chunk.
		if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	if err := s.Execute(context.Background(), webhookContext(srv.URL, "")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Chunks already reached clients, so the partial text is the reply.
	got := msgs.messages()
	if len(got) != 1 || got[0].Content != "partial answer" {
		t.Errorf("persisted = %+v, want the partial stream content", got)
	}
}

func TestExecuteStreamAbortWithoutContentFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	if err := s.Execute(context.Background(), webhookContext(srv.URL, "")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := msgs.messages()
	if len(got) != 1 || got[0].Content != unavailableReply {
		t.Errorf("persisted = %+v, want unavailable fallback", got)
	}
}

func TestExecuteUnreachableEndpointFallsBack(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	if err := s.Execute(context.Background(), webhookContext("http://127.0.0.1:1", "")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := msgs.messages()
	if len(got) != 1 || got[0].Content != unavailableReply {
		t.Errorf("persisted = %+v, want unavailable fallback", got)
	}
}

func TestExecuteNon2xxFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	_ = s.Execute(context.Background(), webhookContext(srv.URL, ""))

	got := msgs.messages()
	if len(got) != 1 || got[0].Content != unavailableReply {
		t.Errorf("persisted = %+v, want unavailable fallback", got)
	}
}

func TestExecuteMissingURLReportsConfig(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := newStrategy(msgs)
	_ = s.Execute(context.Background(), webhookContext("", ""))

	got := msgs.messages()
	if len(got) != 1 || !strings.Contains(got[0].Content, "missing webhook URL") {
		t.Errorf("persisted = %+v, want config warning", got)
	}
}

func TestDecodeSSE(t *testing.T) {
	body := strings.NewReader(
		"data: {\"content\":\"one \"}\n\n" +
			": comment line\n" +
			"data: {\"delta\":\"two\"}\n\n" +
			"data: [DONE]\n\n" +
			"data: {\"content\":\"after done is ignored\"}\n\n")

	var deltas []string
	accumulated, err := DecodeSSE(body, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("DecodeSSE: %v", err)
	}
	if accumulated != "one two" {
		t.Errorf("accumulated = %q", accumulated)
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v, want 2", deltas)
	}
}
