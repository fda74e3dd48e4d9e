package handler

import (
	"net/http"

	"agora-chat/internal/services"
	"agora-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}
	page, err := parseInt(c.Query("page"))
	if err != nil {
		badRequest(c, "invalid page")
		return
	}

	items, err := h.service.GetMessages(c.Request.Context(), conversationID, userID, page)
	if err != nil {
		writeError(c, err)
		return
	}
	if page == 0 {
		page = 1
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessagePage(page, items)))
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid message id")
		return
	}
	var req httpdto.MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "conversation_id is required")
		return
	}
	conversationID, err := parseUUID(req.ConversationID)
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}

	msg, err := h.service.MarkMessageSeen(c.Request.Context(), messageID, conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}

	n, err := h.service.MarkConversationRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MarkReadResponse{
		ConversationID: conversationID.String(),
		Updated:        n,
	}))
}

// Delete accepts an optional conversation_id query parameter that must match
// the message's conversation.
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid message id")
		return
	}
	var conversationID *uuid.UUID
	if raw := c.Query("conversation_id"); raw != "" {
		id, err := parseUUID(raw)
		if err != nil {
			badRequest(c, "invalid conversation id")
			return
		}
		conversationID = &id
	}

	msg, err := h.service.DeleteMessage(c.Request.Context(), userID, messageID, conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}
