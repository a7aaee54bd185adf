package scheduler

import (
	"context"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically re-reads the store's due set and re-indexes anything
// the in-memory core lost track of (a crash between store write and index
// update, a divergent worker, a clock hiccup). It is the reconciliation
// backstop: re-inserting an already-emitted reminder only costs a claim that
// loses.
type Sweeper struct {
	cronEngine *cron.Cron
	repo       reminder.Repository
	core       *Core
	logger     *logrus.Entry
	spec       string
}

func NewSweeper(repo reminder.Repository, core *Core, logger *logrus.Entry, spec string) *Sweeper {
	return &Sweeper{
		cronEngine: cron.New(),
		repo:       repo,
		core:       core,
		logger:     logger,
		spec:       spec,
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cronEngine.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.WithField("spec", s.spec).Info("Reconciliation sweep started.")
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cronEngine.Stop() // Stops scheduling new runs, waits for a running sweep.
	<-ctx.Done()
	s.logger.Info("Reconciliation sweep stopped.")
}

func (s *Sweeper) sweep(ctx context.Context) {
	due, err := s.repo.DueBefore(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("Sweep failed to query due reminders.")
		return
	}
	for _, rem := range due {
		s.core.Update(rem)
	}
	if len(due) > 0 {
		s.logger.WithField("count", len(due)).Debug("Sweep re-indexed due reminders.")
	}
}
