package handler

import (
	"net/http"

	"agora-chat/internal/services"
	"agora-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	service *services.ConversationService
}

func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationViews(items)))
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}

	view, err := h.service.GetConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationView(view)))
}

// StartDirect returns the existing direct conversation with the peer, or
// creates it. Both outcomes answer 200.
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req httpdto.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "peer_id is required")
		return
	}
	peerID, err := parseUUID(req.PeerID)
	if err != nil {
		badRequest(c, "invalid peer id")
		return
	}

	view, err := h.service.StartOrGetConversation(c.Request.Context(), peerID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationView(view)))
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req httpdto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and participants are required")
		return
	}

	participantIDs := make([]uuid.UUID, 0, len(req.Participants))
	for _, idStr := range req.Participants {
		id, err := parseUUID(idStr)
		if err != nil {
			badRequest(c, "invalid participant id")
			return
		}
		participantIDs = append(participantIDs, id)
	}

	view, err := h.service.CreateGroupConversation(c.Request.Context(), userID, req.Name, req.Image, participantIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromConversationView(view)))
}
