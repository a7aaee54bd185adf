// internal/infra/telegram/reminder_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reminder_assistant_bot/internal/app"
	"reminder_assistant_bot/internal/domain/reminder"
	"reminder_assistant_bot/internal/domain/timeexpr"
	idb "reminder_assistant_bot/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const snoozeStep = 15 * time.Minute // matches the snooze button label

const usageText = `I understand times like:
• in 30 minutes
• tomorrow at 9am
• next monday at 2pm
• 27-06-2025 at 14:30
• every day at 09:00
• every monday and thursday at 8pm
• every month on the 1st at 10:00

Create one with: /remind <when> | <message>`

// RegisterReminderHandlers wires the chat command surface. Handlers only
// translate chat input into calls on the application services; scheduling
// semantics live entirely behind those.
func RegisterReminderHandlers(
	ctx context.Context,
	b *telebot.Bot,
	reminders *app.ReminderService,
	profiles *app.ProfileService,
	baseLogger *logrus.Entry,
) {
	log := baseLogger.WithField("handler_group", "reminders")

	b.Handle("/start", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/start").WithField("sender_id", sender.ID)
		if _, err := profiles.EnsureProfile(ctx, sender.ID, sender.FirstName); err != nil {
			logCtx.WithError(err).Error("Failed to register profile")
			return c.Send("Something went wrong while setting up your profile. Please try again later.")
		}
		logCtx.Info("Profile ensured")
		return c.Send(fmt.Sprintf(
			"Hi, %s! I remember things for you.\n\n%s\n\nSet your timezone first with /settz (e.g. /settz Europe/Berlin) so times land when you expect them.",
			sender.FirstName, usageText))
	})

	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(usageText + "\n\nOther commands:\n/reminders — list what's pending\n/snooze <id> [duration] — push one back\n/edit <id> | <when> | <message?> — reschedule one\n/cancel <id> — drop one\n/settz <zone> — set your IANA timezone")
	})

	b.Handle("/settz", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/settz").WithField("sender_id", sender.ID)
		zone := strings.TrimSpace(c.Message().Payload)
		if zone == "" {
			return c.Send("Usage: /settz <IANA zone>, e.g. /settz America/New_York")
		}
		if _, err := profiles.EnsureProfile(ctx, sender.ID, sender.FirstName); err != nil {
			logCtx.WithError(err).Error("Failed to ensure profile before timezone update")
			return c.Send("Something went wrong. Please try again later.")
		}
		if err := profiles.SetTimezone(ctx, sender.ID, zone); err != nil {
			if err == app.ErrInvalidTimezone {
				return c.Send(fmt.Sprintf("I don't know the timezone %q. Use an IANA name like Europe/Berlin.", zone))
			}
			logCtx.WithError(err).Error("Failed to update timezone")
			return c.Send("Something went wrong. Please try again later.")
		}
		return c.Send(fmt.Sprintf("Timezone set to %s.", zone))
	})

	b.Handle("/remind", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/remind").WithField("sender_id", sender.ID)

		expr, payload, ok := splitRemindArgs(c.Message().Payload)
		if !ok {
			return c.Send("Usage: /remind <when> | <message>\n\n" + usageText)
		}

		rem, err := reminders.Create(ctx, sender.ID, expr, payload)
		if err != nil {
			switch {
			case err == timeexpr.ErrUnrecognized:
				return c.Send(fmt.Sprintf("I couldn't understand %q as a time.\n\n%s", expr, usageText))
			case err == timeexpr.ErrPastInstant:
				return c.Send("That time has already passed. Please pick a moment in the future.")
			default:
				logCtx.WithError(err).Error("Failed to create reminder")
				return c.Send("Something went wrong while saving your reminder. Please try again.")
			}
		}

		_, loc := profiles.TimezoneFor(ctx, sender.ID)
		return c.Send(fmt.Sprintf("Got it. %s\nID: %s", describeSchedule(rem, loc), rem.ID))
	})

	b.Handle("/reminders", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/reminders").WithField("sender_id", sender.ID)

		pending, err := reminders.ListDue(ctx, sender.ID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list reminders")
			return c.Send("Something went wrong while fetching your reminders.")
		}
		if len(pending) == 0 {
			return c.Send("You have no pending reminders. Create one with /remind.")
		}

		var sb strings.Builder
		sb.WriteString("Your pending reminders:\n")
		markup := &telebot.ReplyMarkup{}
		var rows []telebot.Row
		_, loc := profiles.TimezoneFor(ctx, sender.ID)
		for i, rem := range pending {
			fmt.Fprintf(&sb, "\n%d. %s\n   %s\n   ID: %s\n", i+1, rem.Payload, describeSchedule(rem, loc), rem.ID)
			rows = append(rows, markup.Row(markup.Data(fmt.Sprintf("Cancel #%d", i+1), "rem_cancel", rem.ID.String())))
		}
		markup.Inline(rows...)
		return c.Send(sb.String(), markup)
	})

	b.Handle("/snooze", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/snooze").WithField("sender_id", sender.ID)

		args := strings.Fields(c.Message().Payload)
		if len(args) == 0 {
			return c.Send("Usage: /snooze <id> [duration], e.g. /snooze <id> 1h")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return c.Send("That doesn't look like a reminder ID. Use /reminders to find it.")
		}
		d := snoozeStep
		if len(args) > 1 {
			d, err = time.ParseDuration(args[1])
			if err != nil || d <= 0 {
				return c.Send("I couldn't read that duration. Try something like 30m or 2h.")
			}
		}

		rem, err := reminders.Snooze(ctx, id, d)
		if err != nil {
			return c.Send(mutationErrorText(err, logCtx, "snooze"))
		}
		_, loc := profiles.TimezoneFor(ctx, sender.ID)
		return c.Send(fmt.Sprintf("Snoozed. Next delivery at %s.", formatInstant(rem.EffectiveFireAt(), loc)))
	})

	b.Handle("/edit", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := log.WithField("command", "/edit").WithField("sender_id", sender.ID)

		parts := strings.SplitN(c.Message().Payload, "|", 3)
		if len(parts) < 2 {
			return c.Send("Usage: /edit <id> | <when> | <message?>\nLeave the message part off to keep the current text.")
		}
		id, err := uuid.Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			return c.Send("That doesn't look like a reminder ID. Use /reminders to find it.")
		}
		expr := strings.TrimSpace(parts[1])
		var payload string
		if len(parts) == 3 {
			payload = strings.TrimSpace(parts[2])
		}

		rem, err := reminders.Edit(ctx, id, expr, payload)
		if err != nil {
			return c.Send(mutationErrorText(err, logCtx, "edit"))
		}
		_, loc := profiles.TimezoneFor(ctx, sender.ID)
		return c.Send(fmt.Sprintf("Updated. %s", describeSchedule(rem, loc)))
	})

	b.Handle("/cancel", func(c telebot.Context) error {
		logCtx := log.WithField("command", "/cancel").WithField("sender_id", c.Sender().ID)

		arg := strings.TrimSpace(c.Message().Payload)
		if arg == "" {
			return c.Send("Usage: /cancel <id>. Use /reminders to find the ID.")
		}
		id, err := uuid.Parse(arg)
		if err != nil {
			return c.Send("That doesn't look like a reminder ID. Use /reminders to find it.")
		}
		if err := reminders.Cancel(ctx, id); err != nil {
			return c.Send(mutationErrorText(err, logCtx, "cancel"))
		}
		return c.Send("Reminder cancelled.")
	})

	// Inline buttons attached to delivered recurring reminders.
	b.Handle(&telebot.Btn{Unique: "rem_snooze"}, func(c telebot.Context) error {
		logCtx := log.WithField("callback", "rem_snooze").WithField("sender_id", c.Sender().ID)
		id, err := uuid.Parse(c.Callback().Data)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Stale button."})
		}
		rem, err := reminders.Snooze(ctx, id, snoozeStep)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: mutationErrorText(err, logCtx, "snooze")})
		}
		_, loc := profiles.TimezoneFor(ctx, c.Sender().ID)
		return c.Respond(&telebot.CallbackResponse{
			Text: fmt.Sprintf("Snoozed until %s", formatInstant(rem.EffectiveFireAt(), loc)),
		})
	})

	b.Handle(&telebot.Btn{Unique: "rem_cancel"}, func(c telebot.Context) error {
		logCtx := log.WithField("callback", "rem_cancel").WithField("sender_id", c.Sender().ID)
		id, err := uuid.Parse(c.Callback().Data)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Stale button."})
		}
		if err := reminders.Cancel(ctx, id); err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: mutationErrorText(err, logCtx, "cancel")})
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Reminder cancelled."})
	})
}

func splitRemindArgs(payload string) (expr, text string, ok bool) {
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	expr = strings.TrimSpace(parts[0])
	text = strings.TrimSpace(parts[1])
	return expr, text, expr != "" && text != ""
}

func mutationErrorText(err error, logCtx *logrus.Entry, op string) string {
	switch {
	case err == idb.ErrReminderNotFound:
		return "I couldn't find that reminder."
	case err == app.ErrReminderFinished:
		return "That reminder is already finished."
	case err == app.ErrReminderInFlight:
		return "That reminder is being delivered right now. Try again in a moment."
	case err == idb.ErrConflict:
		return "That reminder just changed under you. Check /reminders and try again."
	case err == timeexpr.ErrUnrecognized:
		return "I couldn't understand that time expression."
	case err == timeexpr.ErrPastInstant:
		return "That time has already passed."
	default:
		logCtx.WithError(err).Errorf("Failed to %s reminder", op)
		return "Something went wrong. Please try again."
	}
}

func describeSchedule(rem *reminder.Reminder, loc *time.Location) string {
	when := formatInstant(rem.EffectiveFireAt(), loc)
	switch rem.Recurrence.Kind {
	case reminder.RecurrenceInterval:
		return fmt.Sprintf("Repeats every %s, next at %s.", rem.Recurrence.Every, when)
	case reminder.RecurrenceWeeklyOn:
		if rem.Recurrence.Weekdays == reminder.AllWeekdays {
			return fmt.Sprintf("Repeats daily at %02d:%02d, next at %s.", rem.Recurrence.Hour, rem.Recurrence.Minute, when)
		}
		return fmt.Sprintf("Repeats weekly on %s at %02d:%02d, next at %s.",
			weekdayNames(rem.Recurrence), rem.Recurrence.Hour, rem.Recurrence.Minute, when)
	case reminder.RecurrenceMonthlyOn:
		return fmt.Sprintf("Repeats monthly on day %d at %02d:%02d, next at %s.",
			rem.Recurrence.Day, rem.Recurrence.Hour, rem.Recurrence.Minute, when)
	default:
		return fmt.Sprintf("Will fire once at %s.", when)
	}
}

func weekdayNames(rec reminder.Recurrence) string {
	var names []string
	for w := time.Sunday; w <= time.Saturday; w++ {
		if rec.OnWeekday(w) {
			names = append(names, w.String())
		}
	}
	return strings.Join(names, ", ")
}

func formatInstant(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
}
