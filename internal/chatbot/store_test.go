package chatbot

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first, err := store.GetOrCreateConversation(ctx, "conv-1", "u1", "c1")
	require.NoError(t, err)
	second, err := store.GetOrCreateConversation(ctx, "conv-1", "other", "other")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// First writer wins; the reload keeps the original attribution.
	assert.Equal(t, "u1", second.UserID)

	conversations, err := store.ListConversations(ctx, ConversationFilter{})
	require.NoError(t, err)
	assert.Len(t, conversations, 1)
}

func TestGetOrCreateConversationConcurrent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := store.GetOrCreateConversation(ctx, "conv-race", "", "")
			if err != nil {
				t.Errorf("getOrCreate failed: %v", err)
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	conversations, err := store.ListConversations(ctx, ConversationFilter{})
	require.NoError(t, err)
	assert.Len(t, conversations, 1)
}

func TestCreateRuleDuplicatePattern(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRule(ctx, &TriggerRule{TriggerPattern: "hello", ResponseText: "hi", IsActive: true}))
	err := store.CreateRule(ctx, &TriggerRule{TriggerPattern: "hello", ResponseText: "other", IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicatePattern)
}

func TestAppendMessageTouchesConversation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "conv-2", "", "")
	require.NoError(t, err)

	msg := &Message{Type: MessageUser, Content: "hi"}
	require.NoError(t, store.AppendMessage(ctx, conv.ID, msg))
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	reloaded, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.LastInteraction.Before(msg.Timestamp))
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	store := NewInMemoryStore()
	err := store.AppendMessage(context.Background(), 42, &Message{Type: MessageUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecentMessagesLimit(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "conv-3", "", "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.AppendMessage(ctx, conv.ID, &Message{Type: MessageUser, Content: content}))
	}

	recent, err := store.ListRecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "four", recent[1].Content)
}

func TestListMessagesFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "conv-4", "", "")
	require.NoError(t, err)
	other, err := store.GetOrCreateConversation(ctx, "conv-5", "", "")
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, conv.ID, &Message{Type: MessageUser, Content: "q"}))
	require.NoError(t, store.AppendMessage(ctx, conv.ID, &Message{Type: MessageBot, Content: "a"}))
	require.NoError(t, store.AppendMessage(ctx, other.ID, &Message{Type: MessageUser, Content: "elsewhere"}))

	messages, err := store.ListMessages(ctx, MessageFilter{ConversationID: "conv-4"})
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	messages, err = store.ListMessages(ctx, MessageFilter{ConversationID: "conv-4", Type: MessageBot})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "a", messages[0].Content)
}
