package app

import (
	"context"
	"sync"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	"reminder_assistant_bot/internal/domain/user"
	idb "reminder_assistant_bot/internal/infra/database"
	"reminder_assistant_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *telebot.SendOptions
}

// fakeTelegramClient records every send attempt and fails the ones errFor
// says to fail. onSend, when set, runs while the delivery attempt is in
// flight, before the send returns.
type fakeTelegramClient struct {
	mu     sync.Mutex
	sent   []sentMessage
	errFor func(chatID int64) error
	onSend func(chatID int64)
}

func (f *fakeTelegramClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(chatID)
	}
	if f.errFor != nil {
		return f.errFor(chatID)
	}
	return nil
}

func (f *fakeTelegramClient) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTelegramClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeUserRepo is a map-backed user.Repository for profile lookups.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*user.User)}
}

func (f *fakeUserRepo) Upsert(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.users[u.TelegramID]; ok {
		existing.FirstName = u.FirstName
		*u = *existing
		return nil
	}
	c := *u
	f.users[u.TelegramID] = &c
	return nil
}

func (f *fakeUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) UpdateTimezone(_ context.Context, telegramID int64, timezone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return idb.ErrUserNotFound
	}
	u.Timezone = timezone
	return nil
}

// conflictOnceRepo fails the first snooze with a write conflict, then
// delegates. Exercises the read-retry-once policy.
type conflictOnceRepo struct {
	reminder.Repository
	mu       sync.Mutex
	conflict bool
}

func (r *conflictOnceRepo) Snooze(ctx context.Context, rem *reminder.Reminder, until time.Time) error {
	r.mu.Lock()
	first := !r.conflict
	r.conflict = true
	r.mu.Unlock()
	if first {
		return idb.ErrConflict
	}
	return r.Repository.Snooze(ctx, rem, until)
}

type testRig struct {
	repo     *idb.MemoryReminderRepository
	users    *fakeUserRepo
	client   *fakeTelegramClient
	core     *scheduler.Core
	profiles *ProfileService
}

func newTestRig() *testRig {
	users := newFakeUserRepo()
	return &testRig{
		repo:     idb.NewMemoryReminderRepository(),
		users:    users,
		client:   &fakeTelegramClient{},
		core:     scheduler.NewCore(testLogger()),
		profiles: NewProfileService(users, testLogger(), "UTC"),
	}
}

func (r *testRig) reminderService() *ReminderService {
	return NewReminderService(r.repo, r.profiles, r.core, testLogger())
}

func (r *testRig) deliveryService(cfg DeliveryConfig) *DeliveryService {
	return NewDeliveryService(r.repo, r.client, r.core, testLogger(), cfg)
}

func defaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		Workers:          2,
		FailureThreshold: 3,
		RetryDelay:       time.Minute,
		AdminTelegramID:  999,
	}
}

// seedPending persists a pending reminder directly, bypassing the parser.
func seedPending(r *testRig, ownerID int64, rec reminder.Recurrence, at time.Time) *reminder.Reminder {
	rem := &reminder.Reminder{
		OwnerID:    ownerID,
		Payload:    "drink water",
		Timezone:   "UTC",
		Recurrence: rec,
		NextFireAt: at.UTC(),
		Status:     reminder.StatusScheduled,
	}
	if err := r.repo.Create(context.Background(), rem); err != nil {
		panic(err)
	}
	return rem
}
