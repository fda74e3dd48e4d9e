package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/chat?sslmode=disable", migrateURL("postgres://u:p@db:5432/chat?sslmode=disable"))
	assert.Equal(t, "pgx5://db/chat", migrateURL("postgresql://db/chat"))
	assert.Equal(t, "pgx5://db/chat", migrateURL("pgx5://db/chat"))
}

func TestDefaultSeedUsersAreStable(t *testing.T) {
	first, second := DefaultSeedUsers(), DefaultSeedUsers()
	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
	assert.Equal(t, "alice", first[0].Username)

	seen := make(map[string]bool)
	for _, u := range first {
		assert.False(t, seen[u.ID.String()])
		seen[u.ID.String()] = true
	}
}
