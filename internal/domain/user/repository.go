package user

import (
	"context"
)

// Repository defines the operations for persisting and retrieving User profiles.
type Repository interface {
	// Upsert creates the profile on first contact and refreshes the first
	// name on subsequent ones. The stored timezone is never overwritten here.
	Upsert(ctx context.Context, u *User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error
}
