package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telexbot/internal/chatbot"
)

func newTestHandler(t *testing.T) (*ChatHandler, *chatbot.InMemoryStore) {
	t.Helper()
	store := chatbot.NewInMemoryStore()
	rule := &chatbot.TriggerRule{TriggerPattern: "hello", ResponseText: "Hi there!", IsActive: true}
	require.NoError(t, store.CreateRule(context.Background(), rule))

	agent := chatbot.NewAgent(store, nil, chatbot.AgentConfig{DefaultReply: "fixed default"})
	return NewChatHandler(agent), store
}

func postJSON(handler echo.HandlerFunc, body string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/a2a/agent/chatbot", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, handler(c)
}

func TestHandleA2ASimplifiedShape(t *testing.T) {
	handler, store := newTestHandler(t)

	rec, err := postJSON(handler.HandleA2A, `{"message":"hello","conversation_id":"conv-1","user_id":"u1"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp simpleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi there!", resp.Response)
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)

	messages, err := store.ListMessages(context.Background(), chatbot.MessageFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chatbot.MessageUser, messages[0].Type)
	assert.Equal(t, chatbot.MessageBot, messages[1].Type)
}

func TestHandleA2ASimplifiedGeneratesConversationID(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, err := postJSON(handler.HandleA2A, `{"message":"hello"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp simpleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ConversationID)
}

func TestHandleA2AEnvelopeShape(t *testing.T) {
	handler, store := newTestHandler(t)

	body := `{
		"jsonrpc": "2.0",
		"id": "req-1",
		"method": "message/send",
		"params": {
			"message": {"kind":"message","role":"user","parts":[{"kind":"text","text":"hello"}],"messageId":"msg-1"},
			"taskId": "task-1",
			"contextId": "ctx-1"
		}
	}`
	rec, err := postJSON(handler.HandleA2A, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply taskReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "2.0", reply.JSONRPC)
	assert.Equal(t, `"req-1"`, string(reply.ID))
	assert.Equal(t, "task-1", reply.Result.ID)
	assert.Equal(t, "ctx-1", reply.Result.ContextID)
	assert.Equal(t, "input-required", reply.Result.Status.State)
	assert.Equal(t, "Hi there!", reply.Result.Status.Message.Parts[0].Text)

	messages, err := store.ListMessages(context.Background(), chatbot.MessageFilter{ConversationID: "ctx-1"})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, chatbot.MessageUser, messages[0].Type)
	assert.Equal(t, chatbot.MessageBot, messages[1].Type)
}

// Both shapes must leave structurally identical conversation state;
// only the reply envelope differs.
func TestHandleA2AShapesHaveEquivalentSideEffects(t *testing.T) {
	handler, store := newTestHandler(t)

	_, err := postJSON(handler.HandleA2A, `{"message":"hello","conversation_id":"simple-conv"}`)
	require.NoError(t, err)

	envelope := `{"jsonrpc":"2.0","id":"r1","params":{"message":{"parts":[{"kind":"text","text":"hello"}]},"contextId":"envelope-conv"}}`
	_, err = postJSON(handler.HandleA2A, envelope)
	require.NoError(t, err)

	ctx := context.Background()
	simple, err := store.ListMessages(ctx, chatbot.MessageFilter{ConversationID: "simple-conv"})
	require.NoError(t, err)
	enveloped, err := store.ListMessages(ctx, chatbot.MessageFilter{ConversationID: "envelope-conv"})
	require.NoError(t, err)

	require.Len(t, simple, 2)
	require.Len(t, enveloped, 2)
	for i := range simple {
		assert.Equal(t, simple[i].Type, enveloped[i].Type)
		assert.Equal(t, simple[i].Content, enveloped[i].Content)
	}
}

func TestHandleA2AEmptySimplifiedMessage(t *testing.T) {
	handler, store := newTestHandler(t)

	rec, err := postJSON(handler.HandleA2A, `{"message":"","conversation_id":"conv-x"}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// InvalidRequest leaves no trace behind.
	conversations, err := store.ListConversations(context.Background(), chatbot.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestHandleA2AEnvelopeMissingID(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, err := postJSON(handler.HandleA2A, `{"jsonrpc":"2.0","params":{"message":"hi"}}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var rpcErr rpcErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rpcErr))
	assert.Equal(t, codeInvalidRequest, rpcErr.Error.Code)
}

func TestHandleTest(t *testing.T) {
	handler, store := newTestHandler(t)

	rec, err := postJSON(handler.HandleTest, `{"message":"hello"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi there!", resp["response"])
	convID, _ := resp["conversation_id"].(string)
	assert.True(t, strings.HasPrefix(convID, "test-"))

	conv, err := store.GetOrCreateConversation(context.Background(), convID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "test_user", conv.UserID)
}

func TestHandleTestMissingMessage(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, err := postJSON(handler.HandleTest, `{}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Message is required", resp["error"])
}

func TestHandleA2AUnmatchedFallsBackToDefault(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec, err := postJSON(handler.HandleA2A, `{"message":"xyzzy-unmatched","conversation_id":"conv-d"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp simpleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fixed default", resp.Response)
	assert.Equal(t, "success", resp.Status)
}
