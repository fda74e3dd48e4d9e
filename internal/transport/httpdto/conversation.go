package httpdto

import (
	"time"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/services"
)

type StartConversationRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required"`
	Image        string   `json:"image"`
	Participants []string `json:"participants" binding:"required,min=1"`
}

type LastMessageDTO struct {
	MessageID string    `json:"message_id"`
	Seq       int64     `json:"seq"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationDTO struct {
	ID           string          `json:"id"`
	IsGroup      bool            `json:"is_group"`
	GroupName    string          `json:"group_name,omitempty"`
	GroupImage   string          `json:"group_image,omitempty"`
	Participants []UserDTO       `json:"participants"`
	Counterpart  *UserDTO        `json:"counterpart,omitempty"`
	LastMessage  *LastMessageDTO `json:"last_message"`
	UnreadCount  int             `json:"unread_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ConversationListResponse struct {
	Conversations []ConversationDTO `json:"conversations"`
}

func FromConversationView(v services.ConversationView) ConversationDTO {
	c := v.Conversation
	dto := ConversationDTO{
		ID:           c.ID.String(),
		IsGroup:      c.IsGroup,
		GroupName:    c.GroupName.String,
		GroupImage:   c.GroupImage.String,
		Participants: make([]UserDTO, 0, len(v.Participants)),
		LastMessage:  fromLastMessage(c.LastMessage),
		UnreadCount:  v.UnreadCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, p := range v.Participants {
		dto.Participants = append(dto.Participants, FromProfile(p))
	}
	if v.Counterpart != nil {
		peer := FromProfile(*v.Counterpart)
		dto.Counterpart = &peer
	}
	return dto
}

func FromConversationViews(views []services.ConversationView) ConversationListResponse {
	out := ConversationListResponse{Conversations: make([]ConversationDTO, 0, len(views))}
	for _, v := range views {
		out.Conversations = append(out.Conversations, FromConversationView(v))
	}
	return out
}

func fromLastMessage(last *conversation.LastMessage) *LastMessageDTO {
	if last == nil {
		return nil
	}
	return &LastMessageDTO{
		MessageID: last.MessageID.String(),
		Seq:       last.Seq,
		SenderID:  last.SenderID.String(),
		Content:   last.Content,
		Deleted:   last.Deleted,
		CreatedAt: last.CreatedAt,
	}
}
