package reminder

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a reminder.
type Status string

const (
	StatusScheduled Status = "SCHEDULED" // indexed, waiting for its fire instant
	StatusSnoozed   Status = "SNOOZED"   // indexed with a snooze override instant
	StatusFired     Status = "FIRED"     // claimed by a delivery worker, in flight
	StatusCompleted Status = "COMPLETED" // terminal: one-time reminder delivered
	StatusCancelled Status = "CANCELLED" // terminal: cancelled by the owner
	StatusFailed    Status = "FAILED"    // terminal: delivery failed too many times
)

// IsTerminal reports whether no further transitions are permitted from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Reminder is a durable scheduling commitment.
// Corresponds to the 'reminders' table.
type Reminder struct {
	ID       uuid.UUID
	OwnerID  int64  // Telegram chat ID of the owner; never interpreted by the engine
	Payload  string // message text delivered verbatim when the reminder fires
	Timezone string // IANA zone name used for local wall-clock arithmetic

	Recurrence Recurrence
	NextFireAt time.Time // UTC; the single source of truth for "when next"

	LastFiredAt    sql.NullTime
	Status         Status
	SnoozeOverride sql.NullTime // temporarily supersedes NextFireAt; cleared on claim

	// CancelRequested records a cancellation that arrived while the reminder
	// was in flight. It is applied once the delivery attempt settles.
	CancelRequested bool

	ConsecutiveDeliveryFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveFireAt returns the instant at which the reminder is actually due:
// the snooze override when present, otherwise NextFireAt.
func (r *Reminder) EffectiveFireAt() time.Time {
	if r.SnoozeOverride.Valid {
		return r.SnoozeOverride.Time
	}
	return r.NextFireAt
}

// Location resolves the reminder's IANA timezone, falling back to UTC if the
// stored name no longer loads.
func (r *Reminder) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
