// Package scheduler holds the in-memory scheduling core: a time-ordered index
// of pending reminders and the single timer that decides what fires next.
//
// The index is per-process and advisory; delivery correctness never depends
// on it. Whatever this package emits still has to win the store's conditional
// claim before anything is sent, so a lost, duplicated or stale entry is at
// worst a wasted wakeup.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Core maintains the min-heap of SCHEDULED and SNOOZED reminders and emits
// each one on Fires() when its effective instant arrives. An emitted reminder
// leaves the index and is not re-indexed until a service explicitly inserts
// it again after deciding how to proceed.
type Core struct {
	logger *logrus.Entry

	mu      sync.Mutex
	pending entryHeap
	byID    map[uuid.UUID]*entry
	seq     uint64

	wake    chan struct{}
	fires   chan *reminder.Reminder
	stopCh  chan struct{}
	stopped sync.WaitGroup
	started bool
}

func NewCore(logger *logrus.Entry) *Core {
	return &Core{
		logger: logger,
		byID:   make(map[uuid.UUID]*entry),
		wake:  make(chan struct{}, 1),
		fires: make(chan *reminder.Reminder, 64),
	}
}

// Fires returns the channel of due reminders, consumed by delivery workers.
func (c *Core) Fires() <-chan *reminder.Reminder { return c.fires }

// Insert indexes the reminder at its effective fire instant. Inserting an
// already-indexed id replaces the old entry, so callers never have to worry
// about one reminder occupying two positions.
func (c *Core) Insert(rem *reminder.Reminder) {
	c.mu.Lock()
	if old, ok := c.byID[rem.ID]; ok {
		heap.Remove(&c.pending, old.index)
	}
	c.seq++
	e := &entry{rem: rem, at: rem.EffectiveFireAt(), seq: c.seq}
	c.byID[rem.ID] = e
	heap.Push(&c.pending, e)
	isHead := c.pending[0] == e
	c.mu.Unlock()

	if isHead {
		c.nudge()
	}
}

// Remove drops the reminder from the index if present.
func (c *Core) Remove(id uuid.UUID) {
	c.mu.Lock()
	e, ok := c.byID[id]
	var wasHead bool
	if ok {
		wasHead = c.pending[0] == e
		heap.Remove(&c.pending, e.index)
		delete(c.byID, id)
	}
	c.mu.Unlock()

	if wasHead {
		c.nudge()
	}
}

// Update re-indexes the reminder at its current effective instant
// (remove-then-insert, so ordering stays correct after edits and snoozes).
func (c *Core) Update(rem *reminder.Reminder) {
	c.Remove(rem.ID)
	c.Insert(rem)
}

// Len reports the number of indexed reminders.
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// nudge wakes the timer loop so it re-arms against the new head.
func (c *Core) nudge() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Start launches the timer loop. It returns immediately; a second call is a
// no-op.
func (c *Core) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{}) // fresh per run, so Stop/Start cycles work
	stopCh := c.stopCh
	c.mu.Unlock()

	c.stopped.Add(1)
	go c.run(ctx, stopCh)
	c.logger.Info("Scheduler core started.")
}

// Stop terminates the timer loop and waits for it to exit.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	c.stopped.Wait()
	c.logger.Info("Scheduler core stopped.")
}

func (c *Core) run(ctx context.Context, stopCh <-chan struct{}) {
	defer c.stopped.Done()
	for {
		rem, wait := c.popDueOrWait()
		if rem != nil {
			select {
			case c.fires <- rem:
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		if wait < 0 {
			// Empty index: sleep until something is inserted.
			select {
			case <-c.wake:
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.wake:
			timer.Stop()
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// popDueOrWait pops the head if it is due, returning (reminder, 0). Otherwise
// it returns (nil, time until head) or (nil, -1) when the index is empty.
func (c *Core) popDueOrWait() (*reminder.Reminder, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil, -1
	}
	head := c.pending[0]
	now := time.Now()
	if head.at.After(now) {
		return nil, head.at.Sub(now)
	}
	heap.Pop(&c.pending)
	delete(c.byID, head.rem.ID)
	return head.rem, 0
}
