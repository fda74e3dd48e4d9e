package handler

import (
	"net/http"

	"agora-chat/internal/services"
	"agora-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UnreadHandler struct {
	aggregator *services.UnreadAggregator
}

func NewUnreadHandler(aggregator *services.UnreadAggregator) *UnreadHandler {
	return &UnreadHandler{aggregator: aggregator}
}

// Counts omits conversations with nothing unread.
func (h *UnreadHandler) Counts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	counts, err := h.aggregator.GetUnreadCounts(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := httpdto.UnreadCountsResponse{Counts: make(map[string]int, len(counts))}
	for id, n := range counts {
		resp.Counts[id.String()] = n
		resp.Total += n
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

type conversationUnreadResponse struct {
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}

func (h *UnreadHandler) ConversationCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid conversation id")
		return
	}

	n, err := h.aggregator.CountForConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conversationUnreadResponse{
		ConversationID: conversationID.String(),
		Count:          n,
	}))
}
