package notify

import (
	"context"
	"errors"
	"testing"
)

type fakeSender struct {
	chatID int64
	text   string
	err    error
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.chatID = chatID
	f.text = text
	return f.err
}

type recordingNotifier struct {
	titles []string
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestTelegramNotify(t *testing.T) {
	s := &fakeSender{}
	if err := NewTelegram(s, 42).Notify(context.Background(), "Title", "Body"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if s.chatID != 42 || s.text != "Title\n\nBody" {
		t.Fatalf("sent %d %q", s.chatID, s.text)
	}
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &recordingNotifier{err: errA}
	b := &recordingNotifier{}

	err := Multi{a, nil, b}.Notify(context.Background(), "T", "C")
	if !errors.Is(err, errA) {
		t.Fatalf("want joined errA, got %v", err)
	}
	if len(a.titles) != 1 || len(b.titles) != 1 {
		t.Fatalf("both channels should be called: %v %v", a.titles, b.titles)
	}
}

func TestMultiEmpty(t *testing.T) {
	if err := (Multi{}).Notify(context.Background(), "T", "C"); err != nil {
		t.Fatalf("empty multi: %v", err)
	}
	if err := (Nop{}).Notify(context.Background(), "T", "C"); err != nil {
		t.Fatalf("nop: %v", err)
	}
}
