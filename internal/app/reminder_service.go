// internal/app/reminder_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	"reminder_assistant_bot/internal/domain/timeexpr"
	idb "reminder_assistant_bot/internal/infra/database"
	"reminder_assistant_bot/internal/infra/scheduler"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrReminderFinished indicates a mutation attempted against a reminder that
// already reached a terminal state. Cancellation treats this as a no-op;
// snooze and edit surface it.
var ErrReminderFinished = fmt.Errorf("reminder already reached a terminal state")

// ErrReminderInFlight indicates the reminder is currently claimed by a
// delivery attempt and cannot be snoozed or edited until that attempt
// settles.
var ErrReminderInFlight = fmt.Errorf("reminder delivery is in flight")

// ReminderService owns the create/snooze/edit/cancel surface. Every mutation
// writes the store first and adjusts the in-memory index second, so a crash
// between the two leaves at worst a stale index entry for the sweep to fix —
// never a divergent durable state.
type ReminderService struct {
	reminders reminder.Repository
	profiles  *ProfileService
	core      *scheduler.Core
	logger    *logrus.Entry
}

func NewReminderService(rr reminder.Repository, profiles *ProfileService, core *scheduler.Core, logger *logrus.Entry) *ReminderService {
	return &ReminderService{
		reminders: rr,
		profiles:  profiles,
		core:      core,
		logger:    logger,
	}
}

// Create parses the time expression against the owner's timezone, persists a
// SCHEDULED reminder and indexes it.
func (s *ReminderService) Create(ctx context.Context, ownerID int64, expression, payload string) (*reminder.Reminder, error) {
	zone, loc := s.profiles.TimezoneFor(ctx, ownerID)

	res, err := timeexpr.Parse(expression, time.Now(), loc)
	if err != nil {
		return nil, err // ParseError taxonomy propagates untouched; nothing was written
	}

	rem := &reminder.Reminder{
		OwnerID:    ownerID,
		Payload:    payload,
		Timezone:   zone,
		Recurrence: res.Recurrence,
		NextFireAt: res.FireAt,
		Status:     reminder.StatusScheduled,
	}
	if err := s.reminders.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("failed to persist reminder: %w", err)
	}
	s.core.Insert(rem)

	s.logger.WithFields(logrus.Fields{
		"reminder_id": rem.ID,
		"owner_id":    ownerID,
		"fire_at":     rem.NextFireAt,
		"recurrence":  rem.Recurrence.Kind,
	}).Info("Reminder created.")
	return rem, nil
}

// Snooze pushes the next delivery to now+d, superseding the recurrence-derived
// instant until the snoozed fire is consumed.
func (s *ReminderService) Snooze(ctx context.Context, id uuid.UUID, d time.Duration) (*reminder.Reminder, error) {
	until := time.Now().Add(d)
	rem, err := s.mutatePending(ctx, id, func(rem *reminder.Reminder) error {
		return s.reminders.Snooze(ctx, rem, until)
	})
	if err != nil {
		return nil, err
	}
	s.core.Update(rem)
	s.logger.WithFields(logrus.Fields{"reminder_id": id, "until": until}).Info("Reminder snoozed.")
	return rem, nil
}

// Edit re-parses the new expression and replaces schedule and recurrence,
// leaving the prior schedule untouched when the expression is invalid. An
// empty newPayload keeps the existing message text.
func (s *ReminderService) Edit(ctx context.Context, id uuid.UUID, newExpression, newPayload string) (*reminder.Reminder, error) {
	rem, err := s.mutatePending(ctx, id, func(rem *reminder.Reminder) error {
		loc := rem.Location()
		res, perr := timeexpr.Parse(newExpression, time.Now(), loc)
		if perr != nil {
			return perr
		}
		rem.Recurrence = res.Recurrence
		rem.NextFireAt = res.FireAt
		if newPayload != "" {
			rem.Payload = newPayload
		}
		return s.reminders.UpdateSchedule(ctx, rem)
	})
	if err != nil {
		return nil, err
	}
	s.core.Update(rem)
	s.logger.WithFields(logrus.Fields{"reminder_id": id, "fire_at": rem.NextFireAt}).Info("Reminder edited.")
	return rem, nil
}

// Cancel transitions a pending reminder to CANCELLED and drops it from the
// index. Cancelling an already-terminal reminder is a no-op; cancelling one
// that is currently in flight records the request, which the delivery path
// applies once the attempt settles.
func (s *ReminderService) Cancel(ctx context.Context, id uuid.UUID) error {
	for attempt := 0; attempt < 2; attempt++ {
		rem, err := s.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if rem.Status.IsTerminal() {
			return nil
		}
		if rem.Status == reminder.StatusFired {
			if err := s.reminders.RequestCancel(ctx, rem); err != nil {
				if err == idb.ErrConflict {
					continue // attempt settled in the meantime; re-read
				}
				return err
			}
			s.logger.WithField("reminder_id", id).Info("Cancellation recorded for in-flight reminder.")
			return nil
		}
		if err := s.reminders.Cancel(ctx, rem); err != nil {
			if err == idb.ErrConflict {
				continue
			}
			return err
		}
		s.core.Remove(id)
		s.logger.WithField("reminder_id", id).Info("Reminder cancelled.")
		return nil
	}
	return idb.ErrConflict
}

// ListDue returns the owner's pending reminders ordered by effective fire
// instant.
func (s *ReminderService) ListDue(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	return s.reminders.ListByOwner(ctx, ownerID)
}

// Get returns a single reminder by id.
func (s *ReminderService) Get(ctx context.Context, id uuid.UUID) (*reminder.Reminder, error) {
	return s.reminders.GetByID(ctx, id)
}

// mutatePending runs a conditional pending-state mutation with the
// read-retry-once conflict policy: on ErrConflict the record is re-read and
// the mutation retried exactly once with the latest state, then the conflict
// is surfaced.
func (s *ReminderService) mutatePending(ctx context.Context, id uuid.UUID, mutate func(*reminder.Reminder) error) (*reminder.Reminder, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		rem, err := s.reminders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rem.Status.IsTerminal() {
			return nil, ErrReminderFinished
		}
		if rem.Status == reminder.StatusFired {
			return nil, ErrReminderInFlight
		}
		if err := mutate(rem); err != nil {
			if err == idb.ErrConflict {
				lastErr = err
				continue
			}
			return nil, err
		}
		return rem, nil
	}
	return nil, lastErr
}
