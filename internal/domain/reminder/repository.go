package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the durable store contract for Reminder records.
//
// Every transition method is conditioned on the state the caller previously
// read (status, and updated_at where noted) and fails with the store's
// ErrConflict when a concurrent writer won the race; the caller re-reads and
// retries. On success the passed record is refreshed in place with the new
// status and updated_at. Terminal records are never deleted, only excluded
// from the pending queries.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)

	// ListByOwner returns the owner's non-terminal reminders ordered by
	// effective fire instant.
	ListByOwner(ctx context.Context, ownerID int64) ([]*Reminder, error)

	// ListPending returns every SCHEDULED or SNOOZED reminder. Used by the
	// recovery scan at process start.
	ListPending(ctx context.Context) ([]*Reminder, error)

	// DueBefore returns SCHEDULED and SNOOZED reminders whose effective fire
	// instant is at or before the given instant, ordered by effective fire
	// ascending with ties broken by id for determinism.
	DueBefore(ctx context.Context, instant time.Time) ([]*Reminder, error)

	// Claim atomically transitions SCHEDULED|SNOOZED -> FIRED, consuming the
	// snooze override and stamping last_fired_at. This is the single
	// serialization point across concurrent worker processes: exactly one
	// claimant succeeds, the rest get ErrConflict. Conditioned on updated_at,
	// so a fire emitted from a stale index entry loses to any mutation that
	// landed in between and the fresh state is re-delivered from the index.
	Claim(ctx context.Context, r *Reminder, now time.Time) error

	// Reschedule transitions FIRED -> SCHEDULED with a freshly computed next
	// fire instant and the given consecutive failure count.
	Reschedule(ctx context.Context, r *Reminder, next time.Time, failures int) error

	// Complete transitions FIRED -> COMPLETED.
	Complete(ctx context.Context, r *Reminder) error

	// MarkFailed transitions FIRED -> FAILED with the final failure count.
	MarkFailed(ctx context.Context, r *Reminder, failures int) error

	// Cancel transitions SCHEDULED|SNOOZED -> CANCELLED. Conditioned on
	// updated_at.
	Cancel(ctx context.Context, r *Reminder) error

	// RequestCancel records a cancellation against an in-flight (FIRED)
	// reminder without disturbing the claimed delivery attempt.
	RequestCancel(ctx context.Context, r *Reminder) error

	// Snooze transitions SCHEDULED|SNOOZED -> SNOOZED with the override
	// instant. Conditioned on updated_at.
	Snooze(ctx context.Context, r *Reminder, until time.Time) error

	// UpdateSchedule rewrites payload, recurrence and next fire instant for a
	// SCHEDULED|SNOOZED reminder, clearing any snooze override. Conditioned
	// on updated_at.
	UpdateSchedule(ctx context.Context, r *Reminder) error
}
