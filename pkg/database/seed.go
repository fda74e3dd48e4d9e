package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedUser is a development account created by the seed command.
type SeedUser struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
}

// DefaultSeedUsers returns the development accounts.
func DefaultSeedUsers() []SeedUser {
	names := []struct{ username, display string }{
		{"alice", "Alice"},
		{"bob", "Bob"},
		{"carol", "Carol"},
		{"dave", "Dave"},
		{"erin", "Erin"},
	}
	users := make([]SeedUser, 0, len(names))
	for _, n := range names {
		users = append(users, SeedUser{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte("agora-chat/"+n.username)),
			Username:    n.username,
			DisplayName: n.display,
		})
	}
	return users
}

// Seed inserts the given users, leaving existing usernames untouched.
func Seed(ctx context.Context, pool *pgxpool.Pool, users []SeedUser) (int, error) {
	inserted := 0
	for _, u := range users {
		tag, err := pool.Exec(ctx, `
			INSERT INTO users (id, username, display_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO NOTHING
		`, u.ID, u.Username, u.DisplayName)
		if err != nil {
			return inserted, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
