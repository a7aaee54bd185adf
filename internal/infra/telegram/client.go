// internal/infra/telegram/client.go
package telegram

import (
	"errors"

	domainTelegram "reminder_assistant_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient. Failures that
// retrying cannot fix are wrapped as PermanentDeliveryError so the delivery
// policy can count them toward the auto-fail threshold.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID} // reminders go to direct user chats
	_, err := tba.bot.Send(recipient, text, options)
	if err != nil && isPermanentSendError(err) {
		return &domainTelegram.PermanentDeliveryError{Err: err}
	}
	return err
}

func isPermanentSendError(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound) ||
		errors.Is(err, telebot.ErrNotStartedByUser)
}
