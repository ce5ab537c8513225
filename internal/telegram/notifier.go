package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"xui_reseller_bot/internal/logging"
)

// Telegram caps bots at roughly 30 messages per second across all chats.
// Staying at 20 leaves headroom for the interactive handlers.
const notifierRate = 20

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier delivers outbound push messages, paced under Telegram's global
// send limit. It is used by the scheduled jobs rather than the interactive
// handlers.
type Notifier struct {
	sender   messageSender
	failures failureRecorder
	limiter  ratelimit.Limiter
	logger   *logrus.Entry
}

// NewNotifier constructs a Notifier around the given sender.
func NewNotifier(sender messageSender, failures failureRecorder, logger *logrus.Entry) (*Notifier, error) {
	if sender == nil {
		return nil, errors.New("message sender is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Notifier{
		sender:   sender,
		failures: failures,
		limiter:  ratelimit.New(notifierRate),
		logger:   logger,
	}, nil
}

// Send delivers the message and returns the delivery error, if any.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if n == nil || n.sender == nil {
		return errors.New("notifier is not initialized")
	}
	if chatID == 0 {
		return errors.New("chat id is required")
	}
	if text == "" {
		return errors.New("message text is required")
	}

	n.limiter.Take()

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}

	return nil
}

// TrySend delivers the message best-effort. Failures are recorded in the
// failure log and logged, never returned, so one blocked recipient cannot
// stall a broadcast.
func (n *Notifier) TrySend(ctx context.Context, chatID int64, text string) {
	if n == nil {
		return
	}

	if err := n.Send(ctx, chatID, text); err != nil {
		if n.failures != nil {
			n.failures.Record(fmt.Sprintf("push to %d", chatID), err)
		}

		n.logger.WithFields(logging.Fields{
			"event":   "push_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to push message")
	}
}
