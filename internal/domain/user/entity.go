package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Profile is the read-only projection of the users table owned by the profile module.
type Profile struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   sql.NullString
	CreatedAt   time.Time
}

func (Profile) TableName() string {
	return "users"
}
