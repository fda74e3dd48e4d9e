package repository

import (
	"context"
	"database/sql"
	"time"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/domain/message"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PostgresConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

const conversationColumns = `
	c.id, c.is_group, c.direct_key, c.group_name, c.group_image, c.created_by, c.last_seq,
	c.last_message_id, c.last_message_seq, c.last_message_sender_id, c.last_message_text,
	c.last_message_deleted, c.last_message_at, c.created_at, c.updated_at,
	ARRAY(
		SELECT p.user_id FROM conversation_participants p
		WHERE p.conversation_id = c.id
		ORDER BY p.joined_at, p.user_id
	)`

func scanConversation(row pgx.Row) (conversation.Conversation, error) {
	var (
		c            conversation.Conversation
		directKey    *string
		groupName    *string
		groupImage   *string
		createdBy    *uuid.UUID
		lastID       *uuid.UUID
		lastSeq      *int64
		lastSender   *uuid.UUID
		lastText     *string
		lastDeleted  bool
		lastAt       *time.Time
		participants []uuid.UUID
	)
	err := row.Scan(
		&c.ID, &c.IsGroup, &directKey, &groupName, &groupImage, &createdBy, &c.LastSeq,
		&lastID, &lastSeq, &lastSender, &lastText,
		&lastDeleted, &lastAt, &c.CreatedAt, &c.UpdatedAt,
		&participants,
	)
	if err != nil {
		return conversation.Conversation{}, err
	}

	c.DirectKey = nullString(directKey)
	c.GroupName = nullString(groupName)
	c.GroupImage = nullString(groupImage)
	if createdBy != nil {
		c.CreatedBy = uuid.NullUUID{UUID: *createdBy, Valid: true}
	}
	if lastID != nil && lastSeq != nil && lastAt != nil {
		last := &conversation.LastMessage{
			MessageID: *lastID,
			Seq:       *lastSeq,
			Deleted:   lastDeleted,
			CreatedAt: *lastAt,
		}
		if lastSender != nil {
			last.SenderID = *lastSender
		}
		if lastText != nil {
			last.Content = *lastText
		}
		c.LastMessage = last
	}
	c.Participants = participants
	return c, nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id)
	c, err := scanConversation(row)
	if err != nil {
		return conversation.Conversation{}, translate(err, "get conversation")
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetDirect(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.direct_key = $1`,
		conversation.DirectKey(a, b))
	c, err := scanConversation(row)
	if err != nil {
		return conversation.Conversation{}, translate(err, "get direct conversation")
	}
	return c, nil
}

// UpsertDirect relies on the unique direct_key: a concurrent loser blocks on the
// index, then takes the DO UPDATE branch and returns the winner's row.
func (r *PostgresConversationRepository) UpsertDirect(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, bool, error) {
	var (
		id       uuid.UUID
		inserted bool
	)
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (is_group, direct_key, created_by)
			VALUES (FALSE, $1, $2)
			ON CONFLICT (direct_key)
			DO UPDATE SET updated_at = conversations.updated_at
			RETURNING id, (xmax = 0)
		`, conversation.DirectKey(a, b), a).Scan(&id, &inserted)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			SELECT $1, u FROM unnest($2::uuid[]) AS u
			ON CONFLICT DO NOTHING
		`, id, []uuid.UUID{a, b})
		return err
	})
	if err != nil {
		return conversation.Conversation{}, false, translate(err, "upsert direct conversation")
	}

	c, err := r.GetByID(ctx, id)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	return c, inserted, nil
}

func (r *PostgresConversationRepository) CreateGroup(ctx context.Context, c *conversation.Conversation) error {
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (is_group, group_name, group_image, created_by)
			VALUES (TRUE, $1, $2, $3)
			RETURNING id, created_at, updated_at
		`, c.GroupName, c.GroupImage, c.CreatedBy).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			SELECT $1, u FROM unnest($2::uuid[]) AS u
			ON CONFLICT DO NOTHING
		`, c.ID, c.Participants)
		return err
	})
	if err != nil {
		return translate(err, "create group conversation")
	}
	c.IsGroup = true
	return nil
}

func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants me
		  ON me.conversation_id = c.id AND me.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, translate(err, "list conversations")
	}
	defer rows.Close()

	items := make([]conversation.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, translate(err, "scan conversation")
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list conversations")
	}
	return items, nil
}

func (r *PostgresConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&ok)
	if err != nil {
		return false, translate(err, "check participant")
	}
	return ok, nil
}

func (r *PostgresConversationRepository) UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, last conversation.LastMessage) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2,
		    last_message_seq = $3,
		    last_message_sender_id = $4,
		    last_message_text = $5,
		    last_message_deleted = FALSE,
		    last_message_at = $6,
		    updated_at = NOW()
		WHERE id = $1 AND COALESCE(last_message_seq, 0) < $3
	`, conversationID, last.MessageID, last.Seq, last.SenderID, last.Content, last.CreatedAt)
	return translate(err, "update last message")
}

func (r *PostgresConversationRepository) RedactLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_deleted = TRUE,
		    last_message_text = $3,
		    updated_at = NOW()
		WHERE id = $1 AND last_message_id = $2
	`, conversationID, messageID, message.DeletedPlaceholder)
	return translate(err, "redact last message")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
