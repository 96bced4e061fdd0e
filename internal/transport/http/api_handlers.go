package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/shelfx/shelfx-chat/internal/core"
	"github.com/shelfx/shelfx-chat/internal/proto"
	"github.com/shelfx/shelfx-chat/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{hub: hub, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConversationResponse is one entry of the active chats list.
type ConversationResponse struct {
	ID                 string `json:"id"`
	BookID             string `json:"bookId"`
	CounterpartyID     string `json:"counterpartyId"`
	CounterpartyOnline bool   `json:"counterpartyOnline"`
	Unread             int    `json:"unread"`
	CreatedAt          int64  `json:"createdAt"`
}

// ListConversations returns the caller's conversations with unread counts.
// GET /api/conversations
func (h *APIHandlers) ListConversations(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)

	summaries, err := h.hub.Conversations(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(summaries, func(s core.ConversationSummary, _ int) ConversationResponse {
		return ConversationResponse{
			ID:                 s.Conversation.ID,
			BookID:             s.Conversation.BookID,
			CounterpartyID:     s.CounterpartyID,
			CounterpartyOnline: s.CounterpartyOnline,
			Unread:             s.Unread,
			CreatedAt:          s.Conversation.CreatedAt.UnixMilli(),
		}
	}))
}

// Unread returns the caller's current unread snapshot.
// GET /api/unread
func (h *APIHandlers) Unread(c *gin.Context) {
	counts := h.hub.Snapshot(c.GetString(ContextKeyUserID))
	if counts == nil {
		counts = map[string]int{}
	}
	c.JSON(http.StatusOK, proto.UnreadSnapshot{Counts: counts})
}

// History returns a page of messages, oldest first.
// GET /api/conversations/:id/messages?limit=50&before=123
func (h *APIHandlers) History(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &id
	}

	messages, err := h.hub.History(c.Request.Context(), c.GetString(ContextKeyUserID), c.Param("id"), limit, before)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(m *store.Message, _ int) proto.Message {
		return messageFromStore(m)
	}))
}

func (h *APIHandlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, core.ErrPersistence):
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("api request failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("api request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
