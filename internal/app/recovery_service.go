// internal/app/recovery_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	"reminder_assistant_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

// RecoveryService reconciles the store against real time once at process
// start, before the scheduler core begins ticking.
//
// Overdue reminders are indexed as-is: the core emits an already-due entry
// immediately, so each one flows through the normal claim-and-deliver path
// exactly once no matter how many occurrences were missed, and the delivery
// path recomputes the next instant strictly after "now". That single code
// path is what implements catch-up coalescing — recovery never replays a
// backlog.
type RecoveryService struct {
	reminders reminder.Repository
	core      *scheduler.Core
	logger    *logrus.Entry
}

func NewRecoveryService(rr reminder.Repository, core *scheduler.Core, logger *logrus.Entry) *RecoveryService {
	return &RecoveryService{reminders: rr, core: core, logger: logger}
}

// Run scans every pending reminder and seeds the scheduler index. Must be
// called before Core.Start.
func (s *RecoveryService) Run(ctx context.Context) error {
	start := time.Now()
	pending, err := s.reminders.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}

	overdue := 0
	for _, rem := range pending {
		if !rem.EffectiveFireAt().After(start) {
			overdue++
		}
		s.core.Insert(rem)
	}

	s.logger.WithFields(logrus.Fields{
		"pending": len(pending),
		"overdue": overdue,
	}).Info("Recovery scan complete; scheduler index seeded.")
	return nil
}
