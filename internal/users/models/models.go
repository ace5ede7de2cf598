package models

import (
	"time"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// User is a Telegram account known to the bot. Profiles are created on
// first contact and carry the per-chat persona choice.
type User struct {
	ID            id.UserID `json:"id"`
	TelegramID    int64     `json:"telegram_id"`
	FirstName     string    `json:"first_name"`
	Username      string    `json:"username"`
	ActivePersona string    `json:"active_persona"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AnonymizedFirstName replaces the display name on erased accounts.
const AnonymizedFirstName = "deleted user"

// NewUser creates a User with domain invariant validation.
func NewUser(telegramID int64, firstName, username string, now time.Time) (*User, error) {
	if telegramID == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "telegram id cannot be zero")
	}
	return &User{
		ID:         id.NewUserID(),
		TelegramID: telegramID,
		FirstName:  firstName,
		Username:   username,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Anonymize strips personal fields in place, keeping the row so feedback
// authored by the account stays countable.
func (u *User) Anonymize(now time.Time) {
	u.FirstName = AnonymizedFirstName
	u.Username = ""
	u.ActivePersona = ""
	u.UpdatedAt = now
}
