package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"

	"github.com/google/uuid"
)

// MemoryReminderRepository is an in-memory reminder.Repository with the same
// conditional-transition semantics as the Postgres implementation. It backs
// the service tests; nothing in production wiring uses it.
type MemoryReminderRepository struct {
	mu        sync.Mutex
	reminders map[uuid.UUID]*reminder.Reminder
	lastStamp time.Time
}

func NewMemoryReminderRepository() *MemoryReminderRepository {
	return &MemoryReminderRepository{reminders: make(map[uuid.UUID]*reminder.Reminder)}
}

// stamp returns a strictly increasing timestamp so updated_at equality checks
// behave like the database's even when the wall clock does not advance
// between writes.
func (r *MemoryReminderRepository) stamp() time.Time {
	now := time.Now().UTC()
	if !now.After(r.lastStamp) {
		now = r.lastStamp.Add(time.Nanosecond)
	}
	r.lastStamp = now
	return now
}

func clone(rem *reminder.Reminder) *reminder.Reminder {
	c := *rem
	return &c
}

func (r *MemoryReminderRepository) Create(_ context.Context, rem *reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	now := r.stamp()
	rem.CreatedAt = now
	rem.UpdatedAt = now
	r.reminders[rem.ID] = clone(rem)
	return nil
}

func (r *MemoryReminderRepository) GetByID(_ context.Context, id uuid.UUID) (*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	return clone(rem), nil
}

func (r *MemoryReminderRepository) ListByOwner(_ context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Reminder
	for _, rem := range r.reminders {
		if rem.OwnerID == ownerID && (rem.Status == reminder.StatusScheduled || rem.Status == reminder.StatusSnoozed) {
			out = append(out, clone(rem))
		}
	}
	sortByEffective(out)
	return out, nil
}

func (r *MemoryReminderRepository) ListPending(_ context.Context) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Reminder
	for _, rem := range r.reminders {
		if rem.Status == reminder.StatusScheduled || rem.Status == reminder.StatusSnoozed {
			out = append(out, clone(rem))
		}
	}
	sortByEffective(out)
	return out, nil
}

func (r *MemoryReminderRepository) DueBefore(_ context.Context, instant time.Time) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Reminder
	for _, rem := range r.reminders {
		if (rem.Status == reminder.StatusScheduled || rem.Status == reminder.StatusSnoozed) &&
			!rem.EffectiveFireAt().After(instant) {
			out = append(out, clone(rem))
		}
	}
	sortByEffective(out)
	return out, nil
}

func sortByEffective(rems []*reminder.Reminder) {
	sort.Slice(rems, func(i, j int) bool {
		a, b := rems[i].EffectiveFireAt(), rems[j].EffectiveFireAt()
		if a.Equal(b) {
			return rems[i].ID.String() < rems[j].ID.String()
		}
		return a.Before(b)
	})
}

func (r *MemoryReminderRepository) Claim(_ context.Context, rem *reminder.Reminder, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reminders[rem.ID]
	if !ok {
		return ErrReminderNotFound
	}
	if stored.Status != reminder.StatusScheduled && stored.Status != reminder.StatusSnoozed {
		return ErrConflict
	}
	if !stored.UpdatedAt.Equal(rem.UpdatedAt) {
		return ErrConflict
	}
	stored.Status = reminder.StatusFired
	stored.SnoozeOverride = sql.NullTime{}
	stored.LastFiredAt = sql.NullTime{Time: now.UTC(), Valid: true}
	stored.UpdatedAt = r.stamp()
	*rem = *clone(stored)
	return nil
}

func (r *MemoryReminderRepository) Reschedule(_ context.Context, rem *reminder.Reminder, next time.Time, failures int) error {
	return r.fromFired(rem, func(stored *reminder.Reminder) {
		stored.Status = reminder.StatusScheduled
		stored.NextFireAt = next.UTC()
		stored.SnoozeOverride = sql.NullTime{}
		stored.ConsecutiveDeliveryFailures = failures
	})
}

func (r *MemoryReminderRepository) Complete(_ context.Context, rem *reminder.Reminder) error {
	return r.fromFired(rem, func(stored *reminder.Reminder) {
		stored.Status = reminder.StatusCompleted
	})
}

func (r *MemoryReminderRepository) MarkFailed(_ context.Context, rem *reminder.Reminder, failures int) error {
	return r.fromFired(rem, func(stored *reminder.Reminder) {
		stored.Status = reminder.StatusFailed
		stored.ConsecutiveDeliveryFailures = failures
	})
}

func (r *MemoryReminderRepository) RequestCancel(_ context.Context, rem *reminder.Reminder) error {
	return r.fromFired(rem, func(stored *reminder.Reminder) {
		stored.CancelRequested = true
	})
}

func (r *MemoryReminderRepository) fromFired(rem *reminder.Reminder, apply func(*reminder.Reminder)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reminders[rem.ID]
	if !ok {
		return ErrReminderNotFound
	}
	if stored.Status != reminder.StatusFired {
		return ErrConflict
	}
	apply(stored)
	stored.UpdatedAt = r.stamp()
	*rem = *clone(stored)
	return nil
}

func (r *MemoryReminderRepository) Cancel(_ context.Context, rem *reminder.Reminder) error {
	return r.conditional(rem, func(stored *reminder.Reminder) {
		stored.Status = reminder.StatusCancelled
		stored.SnoozeOverride = sql.NullTime{}
	})
}

func (r *MemoryReminderRepository) Snooze(_ context.Context, rem *reminder.Reminder, until time.Time) error {
	return r.conditional(rem, func(stored *reminder.Reminder) {
		stored.Status = reminder.StatusSnoozed
		stored.SnoozeOverride = sql.NullTime{Time: until.UTC(), Valid: true}
	})
}

func (r *MemoryReminderRepository) UpdateSchedule(_ context.Context, rem *reminder.Reminder) error {
	payload, rec, next := rem.Payload, rem.Recurrence, rem.NextFireAt
	return r.conditional(rem, func(stored *reminder.Reminder) {
		stored.Payload = payload
		stored.Recurrence = rec
		stored.NextFireAt = next.UTC()
		stored.SnoozeOverride = sql.NullTime{}
		stored.Status = reminder.StatusScheduled
	})
}

// conditional applies a SCHEDULED|SNOOZED transition guarded by updated_at.
func (r *MemoryReminderRepository) conditional(rem *reminder.Reminder, apply func(*reminder.Reminder)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reminders[rem.ID]
	if !ok {
		return ErrReminderNotFound
	}
	if stored.Status != reminder.StatusScheduled && stored.Status != reminder.StatusSnoozed {
		return ErrConflict
	}
	if !stored.UpdatedAt.Equal(rem.UpdatedAt) {
		return ErrConflict
	}
	apply(stored)
	stored.UpdatedAt = r.stamp()
	*rem = *clone(stored)
	return nil
}
