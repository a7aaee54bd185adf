package app

import (
	"context"
	"fmt"
	"time"

	"reminder_assistant_bot/internal/domain/user"
	idb "reminder_assistant_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors for the profile service
var ErrInvalidTimezone = fmt.Errorf("unknown IANA timezone name")

// ProfileService manages owner profiles: first-contact registration and the
// timezone the parser resolves expressions against.
type ProfileService struct {
	users           user.Repository
	logger          *logrus.Entry
	defaultTimezone string
}

func NewProfileService(ur user.Repository, logger *logrus.Entry, defaultTimezone string) *ProfileService {
	return &ProfileService{
		users:           ur,
		logger:          logger,
		defaultTimezone: defaultTimezone,
	}
}

// EnsureProfile registers the owner on first contact. Existing profiles only
// get their first name refreshed; the stored timezone stays untouched.
func (s *ProfileService) EnsureProfile(ctx context.Context, telegramID int64, firstName string) (*user.User, error) {
	u := &user.User{
		TelegramID: telegramID,
		FirstName:  firstName,
		Timezone:   s.defaultTimezone,
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return u, nil
}

// SetTimezone validates and stores the owner's IANA timezone.
func (s *ProfileService) SetTimezone(ctx context.Context, telegramID int64, zone string) error {
	if _, err := time.LoadLocation(zone); err != nil {
		return ErrInvalidTimezone
	}
	if err := s.users.UpdateTimezone(ctx, telegramID, zone); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"owner_id": telegramID, "timezone": zone}).Info("Owner timezone updated.")
	return nil
}

// TimezoneFor resolves the owner's zone, falling back to the configured
// default for unknown owners or unloadable zone names. The engine only ever
// reads profile data.
func (s *ProfileService) TimezoneFor(ctx context.Context, telegramID int64) (string, *time.Location) {
	zone := s.defaultTimezone
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err == nil && u.Timezone != "" {
		zone = u.Timezone
	} else if err != nil && err != idb.ErrUserNotFound {
		s.logger.WithError(err).WithField("owner_id", telegramID).Warn("Profile lookup failed; using default timezone.")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"owner_id": telegramID, "timezone": zone}).Warn("Stored timezone no longer loads; using UTC.")
		return "UTC", time.UTC
	}
	return zone, loc
}
