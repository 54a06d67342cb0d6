package builtin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parlorchat/parlor"
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

type stubTemplate struct {
	id      string
	reply   string
	err     error
	panicky bool
}

func (s stubTemplate) ID() string { return s.id }

func (s stubTemplate) Execute(context.Context, parlor.ExecContext, map[string]string) (string, error) {
	if s.panicky {
		panic("template exploded")
	}
	return s.reply, s.err
}

func builtinContext(templateID string, config map[string]string) parlor.ExecContext {
	return parlor.ExecContext{
		Bot: parlor.Bot{
			ID:          "b1",
			GuildID:     "g1",
			UserID:      "ubot",
			DisplayName: "Butler",
			Mode:        parlor.ModeBuiltin,
			Builtin:     parlor.BuiltinConfig{TemplateID: templateID, Config: config},
		},
		GuildID:   "g1",
		ChannelID: "c1",
		Author:    parlor.Sender{ID: "u1", Name: "Dana"},
		Content:   "hello there",
	}
}

func TestExecuteRepliesWithTemplateOutput(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := New(msgs, []Template{stubTemplate{id: "greet", reply: "hi!"}})

	if err := s.Execute(context.Background(), builtinContext("greet", nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := msgs.messages()
	if len(got) != 1 || got[0].Content != "hi!" {
		t.Errorf("persisted = %+v", got)
	}
	if !got[0].Sender.IsBot || got[0].Sender.Name != "Butler" {
		t.Errorf("sender = %+v", got[0].Sender)
	}
}

func TestExecuteEmptyReplyMeansSilence(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := New(msgs, []Template{stubTemplate{id: "quiet"}})

	_ = s.Execute(context.Background(), builtinContext("quiet", nil))
	if len(msgs.messages()) != 0 {
		t.Error("empty template output must not post a message")
	}
}

func TestExecuteTemplateErrorApologizes(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := New(msgs, []Template{stubTemplate{id: "broken", err: errors.New("db gone")}})

	_ = s.Execute(context.Background(), builtinContext("broken", nil))
	got := msgs.messages()
	if len(got) != 1 || !strings.Contains(got[0].Content, "Sorry") {
		t.Errorf("persisted = %+v, want apology", got)
	}
}

func TestExecuteTemplatePanicApologizes(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := New(msgs, []Template{stubTemplate{id: "bomb", panicky: true}})

	_ = s.Execute(context.Background(), builtinContext("bomb", nil))
	got := msgs.messages()
	if len(got) != 1 || !strings.Contains(got[0].Content, "Sorry") {
		t.Errorf("persisted = %+v, want apology after panic", got)
	}
}

func TestExecuteUnknownTemplate(t *testing.T) {
	msgs := &fakeMessageStore{}
	s := New(msgs, nil)

	_ = s.Execute(context.Background(), builtinContext("ghost", nil))
	got := msgs.messages()
	if len(got) != 1 || !strings.Contains(got[0].Content, "does not exist") {
		t.Errorf("persisted = %+v, want misconfiguration notice", got)
	}
}

func TestAutoResponder(t *testing.T) {
	config := map[string]string{"rules": "hours => We're open 9-5\nrefund => Email billing@example.com"}
	tmpl := AutoResponder{}

	ec := builtinContext("auto_responder", config)
	ec.Content = "What are your HOURS today?"
	reply, err := tmpl.Execute(context.Background(), ec, config)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reply != "We're open 9-5" {
		t.Errorf("reply = %q", reply)
	}

	ec.Content = "unrelated question"
	reply, _ = tmpl.Execute(context.Background(), ec, config)
	if reply != "" {
		t.Errorf("reply = %q, want silence on no match", reply)
	}
}

func TestEightballAlwaysAnswers(t *testing.T) {
	tmpl := Eightball{}
	reply, err := tmpl.Execute(context.Background(), builtinContext("eightball", nil), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if reply == "" {
		t.Error("eightball must always reply")
	}
}

func TestReminderSchedulesAndDelivers(t *testing.T) {
	delivered := make(chan string, 1)
	r := NewReminder(func(_, _, _, text string) { delivered <- text })
	defer r.Stop()

	ec := builtinContext("reminder", nil)
	ec.Content = "remind me in 10ms stretch your legs"
	reply, err := r.Execute(context.Background(), ec, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(reply, "I'll remind you") {
		t.Errorf("reply = %q", reply)
	}

	select {
	case text := <-delivered:
		if !strings.Contains(text, "stretch your legs") {
			t.Errorf("delivered = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}
}

func TestReminderCancel(t *testing.T) {
	delivered := make(chan string, 1)
	r := NewReminder(func(_, _, _, text string) { delivered <- text })
	defer r.Stop()

	ec := builtinContext("reminder", nil)
	ec.Content = "remind me in 50ms do the thing"
	if _, err := r.Execute(context.Background(), ec, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ec.Content = "cancel"
	reply, _ := r.Execute(context.Background(), ec, nil)
	if !strings.Contains(reply, "cancelled") {
		t.Errorf("reply = %q", reply)
	}

	select {
	case text := <-delivered:
		t.Errorf("cancelled reminder fired: %q", text)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestReminderReplacesPrevious(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	r := NewReminder(func(_, _, _, text string) {
		mu.Lock()
		fired = append(fired, text)
		mu.Unlock()
	})
	defer r.Stop()

	ec := builtinContext("reminder", nil)
	ec.Content = "remind me in 1h first thing"
	_, _ = r.Execute(context.Background(), ec, nil)
	ec.Content = "remind me in 10ms second thing"
	_, _ = r.Execute(context.Background(), ec, nil)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || !strings.Contains(fired[0], "second thing") {
		t.Errorf("fired = %v, want only the replacement", fired)
	}
}

func TestReminderRejectsBadInput(t *testing.T) {
	r := NewReminder(nil)
	defer r.Stop()

	ec := builtinContext("reminder", nil)
	ec.Content = "remind me eventually"
	reply, err := r.Execute(context.Background(), ec, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(reply, "didn't understand") {
		t.Errorf("reply = %q", reply)
	}
}
