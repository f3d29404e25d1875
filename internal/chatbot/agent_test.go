package chatbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telexbot/internal/ai"
)

type stubGenerator struct {
	reply   string
	err     error
	calls   int
	history []ai.Turn
}

func (s *stubGenerator) Generate(ctx context.Context, text string, history []ai.Turn) (string, error) {
	s.calls++
	s.history = history
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubGenerator) Name() string { return "stub" }

func seedGreetingRule(t *testing.T, store *InMemoryStore) *TriggerRule {
	t.Helper()
	rule := &TriggerRule{TriggerPattern: "hello", ResponseText: "Hi there!", IsActive: true}
	require.NoError(t, store.CreateRule(context.Background(), rule))
	return rule
}

func TestProcessMessagePatternMatch(t *testing.T) {
	store := NewInMemoryStore()
	rule := seedGreetingRule(t, store)
	agent := NewAgent(store, nil, AgentConfig{})
	ctx := context.Background()

	result, err := agent.ProcessMessage(ctx, ChatRequest{
		Text:           "hello",
		ConversationID: "conv-1",
		UserID:         "u1",
		ChannelID:      "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", result.Response)
	assert.Equal(t, "pattern", result.Method)
	assert.Equal(t, rule.ID, result.RuleID)
	assert.Equal(t, "conv-1", result.ConversationID)

	conv, err := store.GetOrCreateConversation(ctx, "conv-1", "", "")
	require.NoError(t, err)
	messages, err := store.ListConversationMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, MessageUser, messages[0].Type)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, MessageBot, messages[1].Type)
	assert.Equal(t, "Hi there!", messages[1].Content)
	assert.Equal(t, "pattern", messages[1].Metadata["method"])
	assert.Equal(t, rule.ID, messages[1].Metadata["rule_id"])

	updated, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UseCount)
}

func TestProcessMessageDefaultReplyWithoutGenerator(t *testing.T) {
	store := NewInMemoryStore()
	seedGreetingRule(t, store)
	agent := NewAgent(store, nil, AgentConfig{DefaultReply: "fixed default"})
	ctx := context.Background()

	result, err := agent.ProcessMessage(ctx, ChatRequest{Text: "xyzzy-unmatched", ConversationID: "conv-2"})
	require.NoError(t, err)
	assert.Equal(t, "fixed default", result.Response)
	assert.Equal(t, "default", result.Method)

	conv, err := store.GetOrCreateConversation(ctx, "conv-2", "", "")
	require.NoError(t, err)
	messages, err := store.ListConversationMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestProcessMessageGeneratorSuccess(t *testing.T) {
	store := NewInMemoryStore()
	gen := &stubGenerator{reply: "generated reply"}
	agent := NewAgent(store, gen, AgentConfig{})
	ctx := context.Background()

	_, err := agent.ProcessMessage(ctx, ChatRequest{Text: "first question", ConversationID: "conv-3"})
	require.NoError(t, err)

	result, err := agent.ProcessMessage(ctx, ChatRequest{Text: "second question", ConversationID: "conv-3"})
	require.NoError(t, err)
	assert.Equal(t, "generated reply", result.Response)
	assert.Equal(t, "ai", result.Method)
	assert.Equal(t, 2, gen.calls)

	// History carries the first exchange but not the inbound message.
	require.Len(t, gen.history, 2)
	assert.Equal(t, ai.RoleUser, gen.history[0].Role)
	assert.Equal(t, "first question", gen.history[0].Content)
	assert.Equal(t, ai.RoleAssistant, gen.history[1].Role)
}

func TestProcessMessageGeneratorFailureFallsBack(t *testing.T) {
	store := NewInMemoryStore()
	gen := &stubGenerator{err: errors.New("upstream timeout")}
	agent := NewAgent(store, gen, AgentConfig{DefaultReply: "fixed default"})

	result, err := agent.ProcessMessage(context.Background(), ChatRequest{Text: "anything", ConversationID: "conv-4"})
	require.NoError(t, err)
	assert.Equal(t, "fixed default", result.Response)
	assert.Equal(t, "default", result.Method)
	assert.Equal(t, 1, gen.calls)
}

func TestProcessMessageEmptyTextRejected(t *testing.T) {
	store := NewInMemoryStore()
	agent := NewAgent(store, nil, AgentConfig{})
	ctx := context.Background()

	for _, text := range []string{"", "   "} {
		_, err := agent.ProcessMessage(ctx, ChatRequest{Text: text, ConversationID: "conv-5"})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	// No conversation or message side effects.
	conversations, err := store.ListConversations(ctx, ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, conversations)
	messages, err := store.ListMessages(ctx, MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestProcessMessageReusesConversation(t *testing.T) {
	store := NewInMemoryStore()
	seedGreetingRule(t, store)
	agent := NewAgent(store, nil, AgentConfig{})
	ctx := context.Background()

	_, err := agent.ProcessMessage(ctx, ChatRequest{Text: "hello", ConversationID: "conv-6"})
	require.NoError(t, err)
	_, err = agent.ProcessMessage(ctx, ChatRequest{Text: "hello again", ConversationID: "conv-6"})
	require.NoError(t, err)

	conversations, err := store.ListConversations(ctx, ConversationFilter{})
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	messages, err := store.ListConversationMessages(ctx, conversations[0].ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}
