package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/telexbot/internal/chatbot"
)

// Wire types for the JSON-RPC 2.0 A2A (Agent-to-Agent) protocol used
// by the integrating chat platform.

const (
	jsonrpcVersion = "2.0"

	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	// The bot answers and waits for the next user turn; it never holds
	// a task open for clarification itself.
	taskStateInputRequired = "input-required"
)

type a2aPart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type a2aMessage struct {
	Kind      string    `json:"kind"`
	Role      string    `json:"role"`
	Parts     []a2aPart `json:"parts"`
	MessageID string    `json:"messageId,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	ChannelID string    `json:"channelId,omitempty"`
}

type a2aParams struct {
	Message   json.RawMessage `json:"message"`
	TaskID    string          `json:"taskId"`
	ContextID string          `json:"contextId"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcErrorBody    `json:"error"`
}

func newRPCError(id json.RawMessage, code int, message string, data interface{}) rpcErrorResponse {
	return rpcErrorResponse{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   rpcErrorBody{Code: code, Message: message, Data: data},
	}
}

type taskStatus struct {
	State     string     `json:"state"`
	Timestamp string     `json:"timestamp"`
	Message   a2aMessage `json:"message"`
}

type taskArtifact struct {
	ArtifactID string    `json:"artifactId"`
	Name       string    `json:"name"`
	Parts      []a2aPart `json:"parts"`
}

type taskResult struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    taskStatus     `json:"status"`
	Artifacts []taskArtifact `json:"artifacts"`
	History   []a2aMessage   `json:"history"`
	Kind      string         `json:"kind"`
}

type taskReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  taskResult      `json:"result"`
}

// envelopeRequest is a parsed and validated task/message envelope,
// normalized to the canonical chat request.
type envelopeRequest struct {
	RequestID     json.RawMessage
	TaskID        string
	ContextID     string
	UserMessageID string
	Chat          chatbot.ChatRequest
}

// parseEnvelope validates a JSON-RPC A2A request body. The envelope's
// contextId is the sole conversation key on this path; a hybrid payload
// also carrying conversation_id is resolved by shape, so contextId
// wins. Returns a ready-to-send error response when validation fails.
func parseEnvelope(body []byte) (*envelopeRequest, *rpcErrorResponse) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		rpcErr := newRPCError(nil, codeInvalidRequest, "Invalid Request: malformed JSON", nil)
		return nil, &rpcErr
	}

	if len(req.ID) == 0 || string(req.ID) == "null" {
		rpcErr := newRPCError(nil, codeInvalidRequest, "Invalid Request: id is required", nil)
		return nil, &rpcErr
	}

	var params a2aParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			rpcErr := newRPCError(req.ID, codeInvalidParams, "Invalid params: params must be an object", nil)
			return nil, &rpcErr
		}
	}

	text, msg := extractMessageText(params.Message)
	if text == "" {
		rpcErr := newRPCError(req.ID, codeInvalidParams, "Invalid params: message text is required", nil)
		return nil, &rpcErr
	}

	taskID := params.TaskID
	if taskID == "" {
		taskID = msg.TaskID
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	contextID := params.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	userMessageID := msg.MessageID
	if userMessageID == "" {
		userMessageID = uuid.NewString()
	}

	return &envelopeRequest{
		RequestID:     req.ID,
		TaskID:        taskID,
		ContextID:     contextID,
		UserMessageID: userMessageID,
		Chat: chatbot.ChatRequest{
			Text:           text,
			ConversationID: contextID,
			UserID:         msg.UserID,
			ChannelID:      msg.ChannelID,
		},
	}, nil
}

// extractMessageText handles both the nested message object (text
// parts concatenated) and the direct-string variant some platforms
// send in params.message.
func extractMessageText(raw json.RawMessage) (string, a2aMessage) {
	if len(raw) == 0 {
		return "", a2aMessage{}
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, a2aMessage{}
	}

	var msg a2aMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", a2aMessage{}
	}

	var text string
	for _, part := range msg.Parts {
		if part.Kind == "text" {
			text += part.Text
		}
	}
	return text, msg
}

// buildTaskReply assembles the full A2A task envelope: reply status,
// an artifact carrying the response text, and the user/agent exchange
// as history.
func buildTaskReply(req *envelopeRequest, replyText string, ts time.Time) taskReply {
	userMessage := a2aMessage{
		Kind:      "message",
		Role:      "user",
		Parts:     []a2aPart{{Kind: "text", Text: req.Chat.Text}},
		MessageID: req.UserMessageID,
		TaskID:    req.TaskID,
	}
	agentMessage := a2aMessage{
		Kind:      "message",
		Role:      "agent",
		Parts:     []a2aPart{{Kind: "text", Text: replyText}},
		MessageID: uuid.NewString(),
		TaskID:    req.TaskID,
	}

	return taskReply{
		JSONRPC: jsonrpcVersion,
		ID:      req.RequestID,
		Result: taskResult{
			ID:        req.TaskID,
			ContextID: req.ContextID,
			Status: taskStatus{
				State:     taskStateInputRequired,
				Timestamp: ts.UTC().Format(time.RFC3339),
				Message:   agentMessage,
			},
			Artifacts: []taskArtifact{{
				ArtifactID: uuid.NewString(),
				Name:       "response",
				Parts:      []a2aPart{{Kind: "text", Text: replyText}},
			}},
			History: []a2aMessage{userMessage, agentMessage},
			Kind:    "task",
		},
	}
}
