package database

import (
	"context"
	"database/sql"
	"fmt" // For error wrapping

	"reminder_assistant_bot/internal/domain/user"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Upsert creates the profile on first contact, refreshing first_name on
// conflict. Timezone is only written at insert time; /settz goes through
// UpdateTimezone so a re-/start never resets it.
func (r *PostgresUserRepository) Upsert(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (telegram_id, first_name, timezone)
               VALUES ($1, $2, $3)
               ON CONFLICT (telegram_id) DO UPDATE SET first_name = EXCLUDED.first_name, updated_at = NOW()
               RETURNING id, timezone, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, u.TelegramID, u.FirstName, u.Timezone).
		Scan(&u.ID, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	query := `SELECT id, telegram_id, first_name, timezone, created_at, updated_at
               FROM users WHERE telegram_id = $1`
	u := &user.User{}
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error {
	query := `UPDATE users SET timezone = $1, updated_at = NOW() WHERE telegram_id = $2`
	res, err := r.db.ExecContext(ctx, query, timezone, telegramID)
	if err != nil {
		return fmt.Errorf("error updating user timezone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for timezone update: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
