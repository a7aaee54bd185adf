package scheduler

import (
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
)

// entry is a pending reminder in the time-ordered index.
type entry struct {
	rem   *reminder.Reminder
	at    time.Time // effective fire instant at insertion time
	seq   uint64    // insertion order, FIFO tie-break for equal instants
	index int       // heap position, maintained by the heap interface
}

// entryHeap is a min-heap keyed by fire instant.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
