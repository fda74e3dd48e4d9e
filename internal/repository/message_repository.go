package repository

import (
	"context"

	"agora-chat/internal/domain/message"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `id, conversation_id, seq, sender_id, content, deleted, read_by, created_at, updated_at`

func scanMessage(row pgx.Row) (message.Message, error) {
	var m message.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Content,
		&m.Deleted, &m.ReadBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if m.ReadBy == nil {
		m.ReadBy = []uuid.UUID{}
	}
	return m, err
}

// Create bumps conversations.last_seq first, which row-locks the conversation for
// the rest of the transaction. Sends into one conversation therefore commit in
// sequence order and created_at is monotonic with seq.
func (r *PostgresMessageRepository) Create(ctx context.Context, conversationID, senderID uuid.UUID, content string) (message.Message, error) {
	var m message.Message
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		var seq int64
		err := tx.QueryRow(ctx, `
			UPDATE conversations
			SET last_seq = last_seq + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING last_seq
		`, conversationID).Scan(&seq)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO messages (conversation_id, seq, sender_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING `+messageColumns, conversationID, seq, senderID, content)
		m, err = scanMessage(row)
		return err
	})
	if err != nil {
		return message.Message{}, translate(err, "create message")
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return message.Message{}, translate(err, "get message")
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]message.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2 OFFSET $3
		) page
		ORDER BY created_at ASC, seq ASC
	`, conversationID, limit, offset)
	if err != nil {
		return nil, translate(err, "list messages")
	}
	defer rows.Close()

	items := make([]message.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, translate(err, "scan message")
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list messages")
	}
	return items, nil
}

func (r *PostgresMessageRepository) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET deleted = TRUE, updated_at = clock_timestamp()
		WHERE id = $1 AND NOT deleted
	`, id)
	if err != nil {
		return false, translate(err, "delete message")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresMessageRepository) AddReader(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $2::uuid), updated_at = clock_timestamp()
		WHERE id = $1
		  AND sender_id <> $2::uuid
		  AND NOT ($2::uuid = ANY (read_by))
	`, messageID, userID)
	if err != nil {
		return false, translate(err, "mark message seen")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkConversationRead is one statement so its snapshot and its write are the
// same instant: messages committed after it started stay unread.
func (r *PostgresMessageRepository) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]ReadReceipt, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $2::uuid), updated_at = clock_timestamp()
		WHERE conversation_id = $1
		  AND sender_id <> $2::uuid
		  AND NOT deleted
		  AND NOT ($2::uuid = ANY (read_by))
		RETURNING id, sender_id
	`, conversationID, userID)
	if err != nil {
		return nil, translate(err, "mark conversation read")
	}
	defer rows.Close()

	receipts := make([]ReadReceipt, 0)
	for rows.Next() {
		var rr ReadReceipt
		if err := rows.Scan(&rr.MessageID, &rr.SenderID); err != nil {
			return nil, translate(err, "scan read receipt")
		}
		receipts = append(receipts, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "mark conversation read")
	}
	return receipts, nil
}

// CountUnread joins on the caller's current membership, so messages in rooms the
// caller no longer belongs to are never counted.
func (r *PostgresMessageRepository) CountUnread(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.conversation_id, COUNT(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = $1
		WHERE m.sender_id <> $1
		  AND NOT m.deleted
		  AND NOT ($1::uuid = ANY (m.read_by))
		GROUP BY m.conversation_id
	`, userID)
	if err != nil {
		return nil, translate(err, "count unread")
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			conversationID uuid.UUID
			n              int64
		)
		if err := rows.Scan(&conversationID, &n); err != nil {
			return nil, translate(err, "scan unread count")
		}
		counts[conversationID] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "count unread")
	}
	return counts, nil
}

func (r *PostgresMessageRepository) CountUnreadInConversation(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = $2
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND NOT m.deleted
		  AND NOT ($2::uuid = ANY (m.read_by))
	`, conversationID, userID).Scan(&n)
	if err != nil {
		return 0, translate(err, "count unread in conversation")
	}
	return int(n), nil
}
