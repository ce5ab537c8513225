package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

type notifierFailures struct {
	ops []string
}

func (n *notifierFailures) Record(op string, _ error) {
	n.ops = append(n.ops, op)
}

func newTestNotifier(t *testing.T, sender *fakeSender, failures *notifierFailures) *Notifier {
	t.Helper()

	hookLogger, _ := logtest.NewNullLogger()
	notifier, err := NewNotifier(sender, failures, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("NewNotifier returned error: %v", err)
	}
	return notifier
}

func TestNotifierSendDeliversMessage(t *testing.T) {
	sender := &fakeSender{}
	notifier := newTestNotifier(t, sender, nil)

	if err := notifier.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	if chat, _ := sender.sent[0].ChatID.(int64); chat != 42 {
		t.Fatalf("expected chat 42, got %v", sender.sent[0].ChatID)
	}
	if sender.sent[0].Text != "hello" {
		t.Fatalf("expected text hello, got %q", sender.sent[0].Text)
	}
}

func TestNotifierSendPropagatesErrors(t *testing.T) {
	expected := errors.New("forbidden: bot was blocked by the user")
	notifier := newTestNotifier(t, &fakeSender{err: expected}, nil)

	err := notifier.Send(context.Background(), 42, "hello")
	if !errors.Is(err, expected) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestNotifierSendValidatesInputs(t *testing.T) {
	notifier := newTestNotifier(t, &fakeSender{}, nil)

	if err := notifier.Send(context.Background(), 0, "hello"); err == nil {
		t.Fatalf("expected error for zero chat id")
	}
	if err := notifier.Send(context.Background(), 42, ""); err == nil {
		t.Fatalf("expected error for empty text")
	}

	if _, err := NewNotifier(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil sender")
	}
}

func TestNotifierTrySendRecordsFailures(t *testing.T) {
	failures := &notifierFailures{}
	notifier := newTestNotifier(t, &fakeSender{err: errors.New("blocked")}, failures)

	notifier.TrySend(context.Background(), 42, "hello")

	if len(failures.ops) != 1 {
		t.Fatalf("expected one recorded failure, got %v", failures.ops)
	}
}

func TestNotifierTrySendSwallowsSuccessQuietly(t *testing.T) {
	failures := &notifierFailures{}
	sender := &fakeSender{}
	notifier := newTestNotifier(t, sender, failures)

	notifier.TrySend(context.Background(), 42, "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("expected message to be sent")
	}
	if len(failures.ops) != 0 {
		t.Fatalf("expected no recorded failures, got %v", failures.ops)
	}
}
