package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/telexbot/internal/chatbot"
)

// AdminHandler serves the read-only inspection listings and the
// bot-responses CRUD surface.
type AdminHandler struct {
	store chatbot.Store
}

func NewAdminHandler(store chatbot.Store) *AdminHandler {
	return &AdminHandler{store: store}
}

// ListConversations handles GET /conversations
func (h *AdminHandler) ListConversations(c echo.Context) error {
	filter := chatbot.ConversationFilter{
		ChannelID: c.QueryParam("channel_id"),
		UserID:    c.QueryParam("user_id"),
	}
	if isActive := c.QueryParam("is_active"); isActive != "" {
		active := strings.EqualFold(isActive, "true")
		filter.IsActive = &active
	}

	conversations, err := h.store.ListConversations(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list conversations")
	}
	return c.JSON(http.StatusOK, conversations)
}

type conversationDetail struct {
	*chatbot.Conversation
	Messages []*chatbot.Message `json:"messages"`
}

// GetConversation handles GET /conversations/:id
func (h *AdminHandler) GetConversation(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
	}

	conv, err := h.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get conversation")
	}

	messages, err := h.store.ListConversationMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list messages")
	}

	return c.JSON(http.StatusOK, conversationDetail{Conversation: conv, Messages: messages})
}

// ListConversationMessages handles GET /conversations/:id/messages
func (h *AdminHandler) ListConversationMessages(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
	}

	if _, err := h.store.GetConversation(c.Request().Context(), id); err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get conversation")
	}

	messages, err := h.store.ListConversationMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list messages")
	}
	return c.JSON(http.StatusOK, messages)
}

// ListMessages handles GET /messages
func (h *AdminHandler) ListMessages(c echo.Context) error {
	filter := chatbot.MessageFilter{
		ConversationID: c.QueryParam("conversation_id"),
		Type:           chatbot.MessageType(c.QueryParam("message_type")),
	}

	messages, err := h.store.ListMessages(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list messages")
	}
	return c.JSON(http.StatusOK, messages)
}

type botResponseRequest struct {
	TriggerPattern string `json:"trigger_pattern"`
	ResponseText   string `json:"response_text"`
	IsRegex        bool   `json:"is_regex"`
	IsActive       *bool  `json:"is_active"`
	Priority       int    `json:"priority"`
}

// ListBotResponses handles GET /bot-responses
func (h *AdminHandler) ListBotResponses(c echo.Context) error {
	var isActive *bool
	if v := c.QueryParam("is_active"); v != "" {
		active := strings.EqualFold(v, "true")
		isActive = &active
	}

	rules, err := h.store.ListRules(c.Request().Context(), isActive)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list bot responses")
	}
	return c.JSON(http.StatusOK, rules)
}

// GetBotResponse handles GET /bot-responses/:id
func (h *AdminHandler) GetBotResponse(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid bot response ID")
	}

	rule, err := h.store.GetRule(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Bot response not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get bot response")
	}
	return c.JSON(http.StatusOK, rule)
}

// CreateBotResponse handles POST /bot-responses
func (h *AdminHandler) CreateBotResponse(c echo.Context) error {
	var req botResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.TriggerPattern) == "" || strings.TrimSpace(req.ResponseText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trigger_pattern and response_text are required")
	}

	rule := &chatbot.TriggerRule{
		TriggerPattern: req.TriggerPattern,
		ResponseText:   req.ResponseText,
		IsRegex:        req.IsRegex,
		IsActive:       true,
		Priority:       req.Priority,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.CreateRule(c.Request().Context(), rule); err != nil {
		if errors.Is(err, chatbot.ErrDuplicatePattern) {
			return echo.NewHTTPError(http.StatusConflict, "A bot response with this trigger pattern already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create bot response")
	}
	return c.JSON(http.StatusCreated, rule)
}

// UpdateBotResponse handles PUT /bot-responses/:id
func (h *AdminHandler) UpdateBotResponse(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid bot response ID")
	}

	rule, err := h.store.GetRule(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Bot response not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get bot response")
	}

	var req botResponseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.TriggerPattern) == "" || strings.TrimSpace(req.ResponseText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trigger_pattern and response_text are required")
	}

	rule.TriggerPattern = req.TriggerPattern
	rule.ResponseText = req.ResponseText
	rule.IsRegex = req.IsRegex
	rule.Priority = req.Priority
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.store.UpdateRule(c.Request().Context(), rule); err != nil {
		if errors.Is(err, chatbot.ErrDuplicatePattern) {
			return echo.NewHTTPError(http.StatusConflict, "A bot response with this trigger pattern already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update bot response")
	}
	return c.JSON(http.StatusOK, rule)
}

// DeleteBotResponse handles DELETE /bot-responses/:id
func (h *AdminHandler) DeleteBotResponse(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid bot response ID")
	}

	if err := h.store.DeleteRule(c.Request().Context(), id); err != nil {
		if errors.Is(err, chatbot.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Bot response not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete bot response")
	}
	return c.NoContent(http.StatusNoContent)
}
