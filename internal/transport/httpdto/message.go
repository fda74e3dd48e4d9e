package httpdto

import (
	"time"

	"agora-chat/internal/domain/message"
)

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type MarkSeenRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Deleted        bool      `json:"deleted"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessagePageResponse struct {
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Messages []MessageDTO `json:"messages"`
}

type MarkReadResponse struct {
	ConversationID string `json:"conversation_id"`
	Updated        int    `json:"updated"`
}

type UnreadCountsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// FromMessage always renders the redacted form.
func FromMessage(m message.Message) MessageDTO {
	m = m.Redacted()
	readBy := make([]string, 0, len(m.ReadBy))
	for _, id := range m.ReadBy {
		readBy = append(readBy, id.String())
	}
	return MessageDTO{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Seq:            m.Seq,
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		Deleted:        m.Deleted,
		ReadBy:         readBy,
		CreatedAt:      m.CreatedAt,
	}
}

func FromMessagePage(page int, items []message.Message) MessagePageResponse {
	out := MessagePageResponse{Page: page, PageSize: message.PageSize, Messages: make([]MessageDTO, 0, len(items))}
	for _, m := range items {
		out.Messages = append(out.Messages, FromMessage(m))
	}
	return out
}
