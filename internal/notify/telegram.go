// Package notify tells administrators about season lifecycle changes over
// Telegram.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bookaway/internal/events"
)

// TelegramSender is satisfied by *tgbotapi.BotAPI.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends lifecycle messages to the configured admin chats.
type Notifier struct {
	sender  TelegramSender
	chatIDs []int64
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewNotifier creates a notifier. Sends are limited to 20 per second, below
// the Telegram bot limit.
func NewNotifier(sender TelegramSender, chatIDs []int64, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "notify").Logger()
	return &Notifier{
		sender:  sender,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(20), 1),
		timeout: 10 * time.Second,
		logger:  &l,
	}
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, chatIDs []int64, logger *zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifier authorized")
	return NewNotifier(bot, chatIDs, logger), nil
}

// Message renders the admin message for e, or "" when e is not announced.
func Message(e events.Event) string {
	switch e.Type {
	case events.SeasonOpened:
		return fmt.Sprintf("Season #%d is open for booking requests.", e.SeasonID)
	case events.SeasonClosed:
		return fmt.Sprintf("Season #%d closed: %d weeks awarded, %d requests cancelled.",
			e.SeasonID, len(e.Awarded), len(e.Cancelled))
	case events.SeasonDeleted:
		return fmt.Sprintf("Season #%d was deleted with all of its weeks and bookings.", e.SeasonID)
	}
	return ""
}

// HandleEvent sends the message for e to every admin chat. It returns the
// first send error after trying all chats.
func (n *Notifier) HandleEvent(e events.Event) error {
	text := Message(e)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	var firstErr error
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("notify rate limit: %w", err)
		}
		if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("event", e.Type).Msg("failed to send notification")
			if firstErr == nil {
				firstErr = fmt.Errorf("send to chat %d: %w", chatID, err)
			}
			continue
		}
		n.logger.Debug().Int64("chat_id", chatID).Str("event", e.Type).Msg("notification sent")
	}
	return firstErr
}

// Subscribe wires the notifier into bus.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.HandleEvent, events.SeasonOpened, events.SeasonClosed, events.SeasonDeleted)
}
