package user

import (
	"time"
)

// User holds the profile data the engine reads for an owner: primarily the
// IANA timezone used to interpret their time expressions.
type User struct {
	ID         int64
	TelegramID int64
	FirstName  string
	Timezone   string // IANA zone name, e.g. "Europe/Berlin"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
