// internal/app/delivery_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reminder_assistant_bot/internal/domain/reminder"
	domainTelegram "reminder_assistant_bot/internal/domain/telegram"
	idb "reminder_assistant_bot/internal/infra/database"
	"reminder_assistant_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// DeliveryConfig carries the delivery policy knobs.
type DeliveryConfig struct {
	Workers          int
	RatePerSec       int
	FailureThreshold int           // consecutive permanent failures before FAILED
	RetryDelay       time.Duration // push distance for a one-time reminder after a failed attempt
	AdminTelegramID  int64         // notified when a reminder is given up on
}

// DeliveryService consumes fire events from the scheduler core and performs
// at-most-once delivery. The store's conditional claim is the single
// serialization point: whichever worker (in whichever process) wins the
// SCHEDULED|SNOOZED -> FIRED transition sends the message, every other
// claimant backs off silently.
type DeliveryService struct {
	reminders reminder.Repository
	client    domainTelegram.Client
	core      *scheduler.Core
	logger    *logrus.Entry
	limiter   *rate.Limiter
	cfg       DeliveryConfig

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func NewDeliveryService(
	rr reminder.Repository,
	tc domainTelegram.Client,
	core *scheduler.Core,
	logger *logrus.Entry,
	cfg DeliveryConfig,
) *DeliveryService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return &DeliveryService{
		reminders: rr,
		client:    tc,
		core:      core,
		logger:    logger,
		limiter:   limiter,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

func (s *DeliveryService) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.logger.WithField("workers", s.cfg.Workers).Info("Delivery service started.")
}

func (s *DeliveryService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Delivery service stopped.")
}

func (s *DeliveryService) worker(ctx context.Context, idx int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case rem := <-s.core.Fires():
			s.OnFire(ctx, rem)
		}
	}
}

// OnFire claims, delivers and settles one fire event.
func (s *DeliveryService) OnFire(ctx context.Context, rem *reminder.Reminder) {
	now := time.Now()
	logCtx := s.logger.WithFields(logrus.Fields{"reminder_id": rem.ID, "owner_id": rem.OwnerID})

	if err := s.reminders.Claim(ctx, rem, now); err != nil {
		switch err {
		case idb.ErrConflict:
			// Lost the race to a concurrent worker or a user mutation.
			logCtx.Debug("Fire claim lost; skipping.")
		case idb.ErrReminderNotFound:
			logCtx.Warn("Fired reminder no longer exists in the store.")
		default:
			// Store unavailable. The reminder is still durably pending; the
			// reconciliation sweep re-enqueues it once the store is back.
			logCtx.WithError(err).Error("Fire claim failed; leaving reminder for the sweep.")
		}
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			// Shutdown mid-claim: push the attempt out and let the next
			// process pick it up.
			s.settleFailure(ctx, rem, now, false, logCtx)
			return
		}
	}

	sendErr := s.client.SendMessage(rem.OwnerID, rem.Payload, s.sendOptions(rem))
	if sendErr == nil {
		logCtx.Info("Reminder delivered.")
		s.settleSuccess(ctx, rem, now, logCtx)
		return
	}

	permanent := domainTelegram.IsPermanent(sendErr)
	logCtx.WithError(sendErr).WithField("permanent", permanent).Warn("Reminder delivery failed.")
	s.settleFailure(ctx, rem, now, permanent, logCtx)
}

// settleSuccess completes a one-time reminder or reschedules a recurring one
// for the next occurrence computed strictly after now, consuming any snooze
// override and resetting the failure streak.
func (s *DeliveryService) settleSuccess(ctx context.Context, rem *reminder.Reminder, now time.Time, logCtx *logrus.Entry) {
	if !rem.Recurrence.IsRecurring() {
		if err := s.reminders.Complete(ctx, rem); err != nil {
			logCtx.WithError(err).Error("Failed to complete delivered reminder.")
		}
		return
	}

	next := rem.Recurrence.NextAfter(now, rem.Location())
	if err := s.reminders.Reschedule(ctx, rem, next, 0); err != nil {
		logCtx.WithError(err).Error("Failed to reschedule delivered reminder.")
		return
	}
	s.applyPendingCancelOrIndex(ctx, rem, logCtx)
}

// settleFailure applies the failure policy: permanent failures count toward
// the threshold and eventually mark the reminder FAILED; everything else is
// rescheduled for another attempt.
func (s *DeliveryService) settleFailure(ctx context.Context, rem *reminder.Reminder, now time.Time, permanent bool, logCtx *logrus.Entry) {
	failures := rem.ConsecutiveDeliveryFailures
	if permanent {
		failures++
	}

	if permanent && failures >= s.cfg.FailureThreshold {
		if err := s.reminders.MarkFailed(ctx, rem, failures); err != nil {
			logCtx.WithError(err).Error("Failed to mark reminder as FAILED.")
			return
		}
		logCtx.WithField("failures", failures).Error("Reminder marked FAILED after repeated delivery failures.")
		s.notifyAdmin(rem)
		return
	}

	var next time.Time
	if rem.Recurrence.IsRecurring() {
		next = rem.Recurrence.NextAfter(now, rem.Location())
	} else {
		next = now.Add(s.cfg.RetryDelay)
	}
	if err := s.reminders.Reschedule(ctx, rem, next, failures); err != nil {
		logCtx.WithError(err).Error("Failed to reschedule after delivery failure.")
		return
	}
	s.applyPendingCancelOrIndex(ctx, rem, logCtx)
}

// applyPendingCancelOrIndex re-applies a cancellation that arrived while the
// delivery attempt was in flight; otherwise the freshly rescheduled reminder
// goes back into the index.
func (s *DeliveryService) applyPendingCancelOrIndex(ctx context.Context, rem *reminder.Reminder, logCtx *logrus.Entry) {
	if rem.CancelRequested {
		if err := s.reminders.Cancel(ctx, rem); err != nil {
			logCtx.WithError(err).Error("Failed to apply deferred cancellation; reminder stays scheduled.")
			s.core.Insert(rem)
			return
		}
		logCtx.Info("Deferred cancellation applied after delivery attempt.")
		return
	}
	s.core.Insert(rem)
}

// sendOptions attaches snooze/stop controls to recurring reminders. One-time
// reminders complete on delivery and get plain text.
func (s *DeliveryService) sendOptions(rem *reminder.Reminder) *telebot.SendOptions {
	if !rem.Recurrence.IsRecurring() {
		return nil
	}
	markup := &telebot.ReplyMarkup{}
	btnSnooze := markup.Data("Snooze 15m", "rem_snooze", rem.ID.String())
	btnStop := markup.Data("Stop", "rem_cancel", rem.ID.String())
	markup.Inline(markup.Row(btnSnooze, btnStop))
	return &telebot.SendOptions{ReplyMarkup: markup}
}

func (s *DeliveryService) notifyAdmin(rem *reminder.Reminder) {
	if s.cfg.AdminTelegramID == 0 {
		return
	}
	text := fmt.Sprintf("Reminder %s for owner %d was disabled after %d failed delivery attempts.",
		rem.ID, rem.OwnerID, rem.ConsecutiveDeliveryFailures)
	if err := s.client.SendMessage(s.cfg.AdminTelegramID, text, nil); err != nil {
		s.logger.WithError(err).Warn("Failed to notify admin about a FAILED reminder.")
	}
}
