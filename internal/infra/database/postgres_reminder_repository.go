// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array and driver registration
)

// Custom errors specific to the reminder repository
var ErrReminderNotFound = fmt.Errorf("reminder not found")

// ErrConflict signals that a conditional transition lost a race against a
// concurrent writer. The caller must re-read the record and decide whether to
// retry. Delivery claims rely on this to guarantee at-most-once sends across
// worker processes.
var ErrConflict = fmt.Errorf("reminder was modified concurrently")

var pendingStatuses = []string{string(reminder.StatusScheduled), string(reminder.StatusSnoozed)}

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

const reminderColumns = `id, owner_id, payload, timezone,
	recurrence_kind, recurrence_interval_seconds, recurrence_weekdays, recurrence_day, recurrence_hour, recurrence_minute,
	next_fire_at, last_fired_at, status, snooze_override, cancel_requested, consecutive_delivery_failures,
	created_at, updated_at`

func scanReminder(row interface{ Scan(...any) error }) (*reminder.Reminder, error) {
	rem := &reminder.Reminder{}
	var intervalSeconds int64
	err := row.Scan(
		&rem.ID, &rem.OwnerID, &rem.Payload, &rem.Timezone,
		&rem.Recurrence.Kind, &intervalSeconds, &rem.Recurrence.Weekdays, &rem.Recurrence.Day, &rem.Recurrence.Hour, &rem.Recurrence.Minute,
		&rem.NextFireAt, &rem.LastFiredAt, &rem.Status, &rem.SnoozeOverride, &rem.CancelRequested, &rem.ConsecutiveDeliveryFailures,
		&rem.CreatedAt, &rem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rem.Recurrence.Every = time.Duration(intervalSeconds) * time.Second
	rem.NextFireAt = rem.NextFireAt.UTC()
	return rem, nil
}

func (r *PostgresReminderRepository) Create(ctx context.Context, rem *reminder.Reminder) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	query := `INSERT INTO reminders (id, owner_id, payload, timezone,
               recurrence_kind, recurrence_interval_seconds, recurrence_weekdays, recurrence_day, recurrence_hour, recurrence_minute,
               next_fire_at, status)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
               RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		rem.ID, rem.OwnerID, rem.Payload, rem.Timezone,
		rem.Recurrence.Kind, int64(rem.Recurrence.Every/time.Second), rem.Recurrence.Weekdays, rem.Recurrence.Day, rem.Recurrence.Hour, rem.Recurrence.Minute,
		rem.NextFireAt, rem.Status,
	).Scan(&rem.CreatedAt, &rem.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id uuid.UUID) (*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return rem, nil
}

func (r *PostgresReminderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE owner_id = $1 AND status = ANY($2::varchar[])
               ORDER BY COALESCE(snooze_override, next_fire_at) ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, ownerID, pq.Array(pendingStatuses))
	if err != nil {
		return nil, fmt.Errorf("error listing reminders by owner: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (r *PostgresReminderRepository) ListPending(ctx context.Context) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE status = ANY($1::varchar[])
               ORDER BY COALESCE(snooze_override, next_fire_at) ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(pendingStatuses))
	if err != nil {
		return nil, fmt.Errorf("error listing pending reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (r *PostgresReminderRepository) DueBefore(ctx context.Context, instant time.Time) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + `
               FROM reminders
               WHERE status = ANY($1::varchar[]) AND COALESCE(snooze_override, next_fire_at) <= $2
               ORDER BY COALESCE(snooze_override, next_fire_at) ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(pendingStatuses), instant)
	if err != nil {
		return nil, fmt.Errorf("error querying due reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func collectReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}

// --- Conditional transitions ---
//
// Every transition returns the full row and copies it back into the caller's
// record. The settle path depends on this: a cancellation recorded while the
// delivery attempt was in flight arrives in the worker's record through the
// Reschedule refresh, and the claim hands the worker the exact row version it
// is about to deliver.

func (r *PostgresReminderRepository) Claim(ctx context.Context, rem *reminder.Reminder, now time.Time) error {
	query := `UPDATE reminders
               SET status = $1, snooze_override = NULL, last_fired_at = $2, updated_at = NOW()
               WHERE id = $3 AND status = ANY($4::varchar[]) AND updated_at = $5
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, reminder.StatusFired, now, rem.ID, pq.Array(pendingStatuses), rem.UpdatedAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error claiming reminder: %w", err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) Reschedule(ctx context.Context, rem *reminder.Reminder, next time.Time, failures int) error {
	query := `UPDATE reminders
               SET status = $1, next_fire_at = $2, snooze_override = NULL, consecutive_delivery_failures = $3, updated_at = NOW()
               WHERE id = $4 AND status = $5
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, reminder.StatusScheduled, next, failures, rem.ID, reminder.StatusFired))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error rescheduling reminder: %w", err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) Complete(ctx context.Context, rem *reminder.Reminder) error {
	return r.finalize(ctx, rem, reminder.StatusCompleted, rem.ConsecutiveDeliveryFailures)
}

func (r *PostgresReminderRepository) MarkFailed(ctx context.Context, rem *reminder.Reminder, failures int) error {
	return r.finalize(ctx, rem, reminder.StatusFailed, failures)
}

func (r *PostgresReminderRepository) finalize(ctx context.Context, rem *reminder.Reminder, to reminder.Status, failures int) error {
	query := `UPDATE reminders
               SET status = $1, consecutive_delivery_failures = $2, updated_at = NOW()
               WHERE id = $3 AND status = $4
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, to, failures, rem.ID, reminder.StatusFired))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error finalizing reminder to %s: %w", to, err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) Cancel(ctx context.Context, rem *reminder.Reminder) error {
	query := `UPDATE reminders
               SET status = $1, snooze_override = NULL, updated_at = NOW()
               WHERE id = $2 AND status = ANY($3::varchar[]) AND updated_at = $4
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, reminder.StatusCancelled, rem.ID, pq.Array(pendingStatuses), rem.UpdatedAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error cancelling reminder: %w", err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) RequestCancel(ctx context.Context, rem *reminder.Reminder) error {
	query := `UPDATE reminders
               SET cancel_requested = TRUE, updated_at = NOW()
               WHERE id = $1 AND status = $2
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, rem.ID, reminder.StatusFired))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error requesting reminder cancellation: %w", err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) Snooze(ctx context.Context, rem *reminder.Reminder, until time.Time) error {
	query := `UPDATE reminders
               SET status = $1, snooze_override = $2, updated_at = NOW()
               WHERE id = $3 AND status = ANY($4::varchar[]) AND updated_at = $5
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query, reminder.StatusSnoozed, until, rem.ID, pq.Array(pendingStatuses), rem.UpdatedAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error snoozing reminder: %w", err)
	}
	*rem = *fresh
	return nil
}

func (r *PostgresReminderRepository) UpdateSchedule(ctx context.Context, rem *reminder.Reminder) error {
	query := `UPDATE reminders
               SET payload = $1,
                   recurrence_kind = $2, recurrence_interval_seconds = $3, recurrence_weekdays = $4,
                   recurrence_day = $5, recurrence_hour = $6, recurrence_minute = $7,
                   next_fire_at = $8, snooze_override = NULL, status = $9, updated_at = NOW()
               WHERE id = $10 AND status = ANY($11::varchar[]) AND updated_at = $12
               RETURNING ` + reminderColumns
	fresh, err := scanReminder(r.db.QueryRowContext(ctx, query,
		rem.Payload,
		rem.Recurrence.Kind, int64(rem.Recurrence.Every/time.Second), rem.Recurrence.Weekdays,
		rem.Recurrence.Day, rem.Recurrence.Hour, rem.Recurrence.Minute,
		rem.NextFireAt, reminder.StatusScheduled,
		rem.ID, pq.Array(pendingStatuses), rem.UpdatedAt,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return r.conflictOrMissing(ctx, rem.ID)
		}
		return fmt.Errorf("error updating reminder schedule: %w", err)
	}
	*rem = *fresh
	return nil
}

// conflictOrMissing disambiguates a zero-row conditional update: the record
// either does not exist at all, or a concurrent writer changed it first.
func (r *PostgresReminderRepository) conflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reminders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("error checking reminder existence: %w", err)
	}
	if !exists {
		return ErrReminderNotFound
	}
	return ErrConflict
}
