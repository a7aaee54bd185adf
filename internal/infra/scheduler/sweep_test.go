package scheduler

import (
	"context"
	"testing"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	idb "reminder_assistant_bot/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ReindexesDueReminders(t *testing.T) {
	repo := idb.NewMemoryReminderRepository()
	core := NewCore(testLogger())
	now := time.Now()

	overdue := &reminder.Reminder{
		OwnerID: 1, Payload: "a", Timezone: "UTC",
		Recurrence: reminder.None(), NextFireAt: now.Add(-time.Hour),
		Status: reminder.StatusScheduled,
	}
	future := &reminder.Reminder{
		OwnerID: 1, Payload: "b", Timezone: "UTC",
		Recurrence: reminder.None(), NextFireAt: now.Add(time.Hour),
		Status: reminder.StatusScheduled,
	}
	require.NoError(t, repo.Create(context.Background(), overdue))
	require.NoError(t, repo.Create(context.Background(), future))

	s := NewSweeper(repo, core, testLogger(), "*/5 * * * *")
	s.sweep(context.Background())

	// Only the overdue entry is re-indexed; the future one is the normal
	// insert path's responsibility.
	assert.Equal(t, 1, core.Len())
}

func TestSweeper_ReindexingIsIdempotent(t *testing.T) {
	repo := idb.NewMemoryReminderRepository()
	core := NewCore(testLogger())

	rem := &reminder.Reminder{
		OwnerID: 1, Payload: "a", Timezone: "UTC",
		Recurrence: reminder.None(), NextFireAt: time.Now().Add(-time.Minute),
		Status: reminder.StatusScheduled,
	}
	require.NoError(t, repo.Create(context.Background(), rem))
	core.Insert(rem)

	s := NewSweeper(repo, core, testLogger(), "*/5 * * * *")
	s.sweep(context.Background())
	s.sweep(context.Background())

	assert.Equal(t, 1, core.Len(), "sweeping an already-indexed reminder must not duplicate it")
}

func TestSweeper_RejectsInvalidCronSpec(t *testing.T) {
	s := NewSweeper(idb.NewMemoryReminderRepository(), NewCore(testLogger()), testLogger(), "not a cron spec")
	assert.Error(t, s.Start())
}
