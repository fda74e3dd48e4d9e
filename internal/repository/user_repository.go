package repository

import (
	"context"

	"agora-chat/internal/domain/user"

	"github.com/google/uuid"
)

type PostgresUserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, translate(err, "check user")
	}
	return ok, nil
}

func (r *PostgresUserRepository) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]user.Profile, error) {
	profiles := make(map[uuid.UUID]user.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, username, display_name, avatar_url, created_at
		FROM users
		WHERE id = ANY ($1::uuid[])
	`, ids)
	if err != nil {
		return nil, translate(err, "get profiles")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      user.Profile
			avatar *string
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &avatar, &p.CreatedAt); err != nil {
			return nil, translate(err, "scan profile")
		}
		p.AvatarURL = nullString(avatar)
		profiles[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "get profiles")
	}
	return profiles, nil
}

// NewPostgresStore wires the pgx repositories over one pool or transaction.
func NewPostgresStore(db DBTX) *Store {
	return &Store{
		Conversations: NewConversationRepository(db),
		Messages:      NewMessageRepository(db),
		Users:         NewUserRepository(db),
	}
}
