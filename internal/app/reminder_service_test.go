package app

import (
	"context"
	"testing"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	"reminder_assistant_bot/internal/domain/timeexpr"
	idb "reminder_assistant_bot/internal/infra/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderService_CreatePersistsAndIndexes(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()

	rem, err := svc.Create(context.Background(), 42, "in 30 minutes", "stand up")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rem.ID)
	assert.Equal(t, reminder.StatusScheduled, rem.Status)
	assert.True(t, rem.NextFireAt.After(time.Now()))
	assert.Equal(t, 1, rig.core.Len())

	stored, err := rig.repo.GetByID(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, "stand up", stored.Payload)
	assert.Equal(t, reminder.RecurrenceNone, stored.Recurrence.Kind)
}

func TestReminderService_CreateUsesOwnerTimezone(t *testing.T) {
	rig := newTestRig()
	_, err := rig.profiles.EnsureProfile(context.Background(), 42, "Ada")
	require.NoError(t, err)
	require.NoError(t, rig.profiles.SetTimezone(context.Background(), 42, "Asia/Tokyo"))
	svc := rig.reminderService()

	rem, err := svc.Create(context.Background(), 42, "every day at 09:00", "stretch")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", rem.Timezone)

	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	assert.Equal(t, 9, rem.NextFireAt.In(tokyo).Hour())
}

func TestReminderService_CreateRejectsBadExpressionWithoutWriting(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()

	_, err := svc.Create(context.Background(), 42, "whenever", "nope")
	assert.ErrorIs(t, err, timeexpr.ErrUnrecognized)

	_, err = svc.Create(context.Background(), 42, "01-01-2020 at 10:00", "nope")
	assert.ErrorIs(t, err, timeexpr.ErrPastInstant)

	pending, err := rig.repo.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 0, rig.core.Len())
}

func TestReminderService_SnoozePushesDelivery(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.Daily(9, 0), time.Now().Add(time.Hour))
	rig.core.Insert(rem)

	before := time.Now()
	snoozed, err := svc.Snooze(context.Background(), rem.ID, 2*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, reminder.StatusSnoozed, snoozed.Status)
	require.True(t, snoozed.SnoozeOverride.Valid)
	assert.WithinDuration(t, before.Add(2*time.Hour), snoozed.SnoozeOverride.Time, time.Second)
	// The recurrence-derived instant survives underneath the override.
	assert.True(t, snoozed.NextFireAt.Equal(rem.NextFireAt))
	assert.Equal(t, 1, rig.core.Len())
}

func TestReminderService_SnoozeRetriesOnceOnConflict(t *testing.T) {
	rig := newTestRig()
	flaky := &conflictOnceRepo{Repository: rig.repo}
	svc := NewReminderService(flaky, rig.profiles, rig.core, testLogger())
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))

	snoozed, err := svc.Snooze(context.Background(), rem.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusSnoozed, snoozed.Status)
}

func TestReminderService_SnoozeGuards(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Snooze(context.Background(), uuid.New(), time.Minute)
		assert.ErrorIs(t, err, idb.ErrReminderNotFound)
	})

	t.Run("terminal reminder", func(t *testing.T) {
		rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))
		require.NoError(t, rig.repo.Claim(context.Background(), rem, time.Now()))
		require.NoError(t, rig.repo.Complete(context.Background(), rem))

		_, err := svc.Snooze(context.Background(), rem.ID, time.Minute)
		assert.ErrorIs(t, err, ErrReminderFinished)
	})

	t.Run("in-flight reminder", func(t *testing.T) {
		rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))
		require.NoError(t, rig.repo.Claim(context.Background(), rem, time.Now()))

		_, err := svc.Snooze(context.Background(), rem.ID, time.Minute)
		assert.ErrorIs(t, err, ErrReminderInFlight)
	})
}

func TestReminderService_EditReplacesSchedule(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))
	rig.core.Insert(rem)

	edited, err := svc.Edit(context.Background(), rem.ID, "every 2 hours", "new text")
	require.NoError(t, err)
	assert.Equal(t, reminder.RecurrenceInterval, edited.Recurrence.Kind)
	assert.Equal(t, "new text", edited.Payload)
	assert.Equal(t, reminder.StatusScheduled, edited.Status)
	assert.False(t, edited.SnoozeOverride.Valid)
}

func TestReminderService_EditKeepsPayloadWhenEmpty(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))

	edited, err := svc.Edit(context.Background(), rem.ID, "in 10 minutes", "")
	require.NoError(t, err)
	assert.Equal(t, rem.Payload, edited.Payload)
}

func TestReminderService_EditLeavesScheduleOnBadExpression(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))

	_, err := svc.Edit(context.Background(), rem.ID, "gibberish", "new text")
	assert.ErrorIs(t, err, timeexpr.ErrUnrecognized)

	stored, err := rig.repo.GetByID(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextFireAt.Equal(rem.NextFireAt))
	assert.Equal(t, rem.Payload, stored.Payload)
}

func TestReminderService_CancelPending(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))
	rig.core.Insert(rem)

	require.NoError(t, svc.Cancel(context.Background(), rem.ID))

	stored, err := rig.repo.GetByID(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusCancelled, stored.Status)
	assert.Equal(t, 0, rig.core.Len())
}

func TestReminderService_CancelTerminalIsNoOp(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.None(), time.Now().Add(time.Hour))
	require.NoError(t, rig.repo.Claim(context.Background(), rem, time.Now()))
	require.NoError(t, rig.repo.Complete(context.Background(), rem))

	assert.NoError(t, svc.Cancel(context.Background(), rem.ID))

	stored, err := rig.repo.GetByID(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusCompleted, stored.Status)
}

func TestReminderService_CancelInFlightRecordsRequest(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	rem := seedPending(rig, 42, reminder.Daily(9, 0), time.Now().Add(time.Hour))
	require.NoError(t, rig.repo.Claim(context.Background(), rem, time.Now()))

	require.NoError(t, svc.Cancel(context.Background(), rem.ID))

	stored, err := rig.repo.GetByID(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusFired, stored.Status)
	assert.True(t, stored.CancelRequested)
}

func TestReminderService_ListDueOrdersByEffectiveInstant(t *testing.T) {
	rig := newTestRig()
	svc := rig.reminderService()
	now := time.Now()

	late := seedPending(rig, 42, reminder.None(), now.Add(3*time.Hour))
	early := seedPending(rig, 42, reminder.None(), now.Add(time.Hour))
	otherOwner := seedPending(rig, 7, reminder.None(), now.Add(time.Minute))
	_ = otherOwner

	// A snooze override takes part in the ordering.
	mid := seedPending(rig, 42, reminder.None(), now.Add(4*time.Hour))
	require.NoError(t, rig.repo.Snooze(context.Background(), mid, now.Add(2*time.Hour)))

	got, err := svc.ListDue(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, mid.ID, got[1].ID)
	assert.Equal(t, late.ID, got[2].ID)
}
