package telegram

import (
	"errors"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for sending messages via a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// PermanentDeliveryError wraps a send failure that no amount of retrying will
// fix: the recipient blocked the bot, deactivated their account, or the chat
// no longer exists. The delivery layer counts these toward the auto-fail
// threshold; everything else is treated as transient.
type PermanentDeliveryError struct {
	Err error
}

func (e *PermanentDeliveryError) Error() string {
	return "permanent delivery failure: " + e.Err.Error()
}

func (e *PermanentDeliveryError) Unwrap() error { return e.Err }

// IsPermanent reports whether err wraps a PermanentDeliveryError.
func IsPermanent(err error) bool {
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}
