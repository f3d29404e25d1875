package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/telexbot/internal/chatbot"
)

const serviceName = "Telex Chat Automation Bot"

// ChatHandler serves the A2A and test chat endpoints.
type ChatHandler struct {
	agent *chatbot.Agent
}

func NewChatHandler(agent *chatbot.Agent) *ChatHandler {
	return &ChatHandler{agent: agent}
}

type simpleRequest struct {
	Message        string                 `json:"message"`
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id"`
	ChannelID      string                 `json:"channel_id"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type simpleResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	Status         string `json:"status"`
}

// ServiceInfo handles GET /a2a/agent/chatbot
func (h *ChatHandler) ServiceInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "online",
		"service":   serviceName,
		"version":   "1.0.0",
		"protocol":  "A2A JSON-RPC 2.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleA2A handles POST /a2a/agent/chatbot. The two accepted request
// shapes are told apart once, here, by the jsonrpc marker; everything
// past this point runs on the canonical chatbot.ChatRequest.
func (h *ChatHandler) HandleA2A(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid JSON payload"})
	}

	if probe.JSONRPC == jsonrpcVersion {
		return h.handleEnvelope(c, body)
	}
	return h.handleSimple(c, body)
}

func (h *ChatHandler) handleEnvelope(c echo.Context, body []byte) error {
	req, rpcErr := parseEnvelope(body)
	if rpcErr != nil {
		return c.JSON(http.StatusBadRequest, rpcErr)
	}

	result, err := h.agent.ProcessMessage(c.Request().Context(), req.Chat)
	if err != nil {
		if errors.Is(err, chatbot.ErrEmptyMessage) {
			return c.JSON(http.StatusBadRequest,
				newRPCError(req.RequestID, codeInvalidParams, "Invalid params: message text is required", nil))
		}
		log.Error().Err(err).Str("context_id", req.ContextID).Msg("Chat processing failed")
		return c.JSON(http.StatusInternalServerError,
			newRPCError(req.RequestID, codeInternalError, "Internal error", map[string]interface{}{"details": err.Error()}))
	}

	return c.JSON(http.StatusOK, buildTaskReply(req, result.Response, result.Timestamp))
}

func (h *ChatHandler) handleSimple(c echo.Context, body []byte) error {
	var req simpleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request format"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid request format",
			"details": "message is required",
		})
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	result, err := h.agent.ProcessMessage(c.Request().Context(), chatbot.ChatRequest{
		Text:           req.Message,
		ConversationID: conversationID,
		UserID:         req.UserID,
		ChannelID:      req.ChannelID,
	})
	if err != nil {
		if errors.Is(err, chatbot.ErrEmptyMessage) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Message is required"})
		}
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("Chat processing failed")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "Internal error"})
	}

	return c.JSON(http.StatusOK, simpleResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID,
		Timestamp:      result.Timestamp.UTC().Format(time.RFC3339),
		Status:         "success",
	})
}

// HandleTest handles POST /test: the simplified shape only, routed
// through the same pipeline under a throwaway conversation.
func (h *ChatHandler) HandleTest(c echo.Context) error {
	var req simpleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid request format"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Message is required"})
	}

	result, err := h.agent.ProcessMessage(c.Request().Context(), chatbot.ChatRequest{
		Text:           req.Message,
		ConversationID: "test-" + uuid.NewString(),
		UserID:         "test_user",
		ChannelID:      "test_channel",
	})
	if err != nil {
		log.Error().Err(err).Msg("Test chat processing failed")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"response":        result.Response,
		"conversation_id": result.ConversationID,
		"timestamp":       result.Timestamp.UTC().Format(time.RFC3339),
	})
}
