package chatbot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePattern = errors.New("trigger pattern already exists")
)

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	ChannelID string
	UserID    string
	IsActive  *bool
}

// MessageFilter narrows message listings. ConversationID is the
// external conversation id, not the row id.
type MessageFilter struct {
	ConversationID string
	Type           MessageType
}

// Store is the persistence boundary for rules, conversations and
// messages. PostgresStore is the production implementation;
// InMemoryStore backs the tests.
type Store interface {
	CreateRule(ctx context.Context, r *TriggerRule) error
	UpdateRule(ctx context.Context, r *TriggerRule) error
	DeleteRule(ctx context.Context, id int64) error
	GetRule(ctx context.Context, id int64) (*TriggerRule, error)
	ListRules(ctx context.Context, isActive *bool) ([]*TriggerRule, error)
	ListActiveRules(ctx context.Context) ([]*TriggerRule, error)
	IncrementRuleUseCount(ctx context.Context, id int64) error

	GetOrCreateConversation(ctx context.Context, conversationID, userID, channelID string) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]*Conversation, error)

	AppendMessage(ctx context.Context, conversationID int64, m *Message) error
	ListConversationMessages(ctx context.Context, conversationID int64) ([]*Message, error)
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]*Message, error)
}

// InMemoryStore is a threadsafe in-memory store for tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	rules         map[int64]*TriggerRule
	conversations map[int64]*Conversation
	byExternalID  map[string]int64
	messages      map[int64][]*Message
	nextRuleID    int64
	nextConvID    int64
	nextMsgID     int64
	now           func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:         make(map[int64]*TriggerRule),
		conversations: make(map[int64]*Conversation),
		byExternalID:  make(map[string]int64),
		messages:      make(map[int64][]*Message),
		now:           time.Now,
	}
}

func (s *InMemoryStore) CreateRule(ctx context.Context, r *TriggerRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.TriggerPattern == r.TriggerPattern {
			return ErrDuplicatePattern
		}
	}
	s.nextRuleID++
	r.ID = s.nextRuleID
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) UpdateRule(ctx context.Context, r *TriggerRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rules[r.ID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range s.rules {
		if existing.ID != r.ID && existing.TriggerPattern == r.TriggerPattern {
			return ErrDuplicatePattern
		}
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.now()
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *InMemoryStore) GetRule(ctx context.Context, id int64) (*TriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *InMemoryStore) ListRules(ctx context.Context, isActive *bool) ([]*TriggerRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TriggerRule, 0, len(s.rules))
	for _, r := range s.rules {
		if isActive != nil && r.IsActive != *isActive {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

func (s *InMemoryStore) ListActiveRules(ctx context.Context) ([]*TriggerRule, error) {
	active := true
	return s.ListRules(ctx, &active)
}

func (s *InMemoryStore) IncrementRuleUseCount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.UseCount++
	r.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) GetOrCreateConversation(ctx context.Context, conversationID, userID, channelID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExternalID[conversationID]; ok {
		return cloneConversation(s.conversations[id]), nil
	}
	s.nextConvID++
	conv := &Conversation{
		ID:              s.nextConvID,
		ConversationID:  conversationID,
		UserID:          userID,
		ChannelID:       channelID,
		StartedAt:       s.now(),
		LastInteraction: s.now(),
		IsActive:        true,
	}
	s.conversations[conv.ID] = conv
	s.byExternalID[conversationID] = conv.ID
	return cloneConversation(conv), nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *InMemoryStore) ListConversations(ctx context.Context, f ConversationFilter) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if f.ChannelID != "" && conv.ChannelID != f.ChannelID {
			continue
		}
		if f.UserID != "" && conv.UserID != f.UserID {
			continue
		}
		if f.IsActive != nil && conv.IsActive != *f.IsActive {
			continue
		}
		out = append(out, cloneConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastInteraction.Equal(out[j].LastInteraction) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastInteraction.After(out[j].LastInteraction)
	})
	return out, nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, conversationID int64, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	s.nextMsgID++
	m.ID = s.nextMsgID
	m.ConversationID = conversationID
	m.Timestamp = s.now()
	s.messages[conversationID] = append(s.messages[conversationID], cloneMessage(m))
	conv.LastInteraction = m.Timestamp
	return nil
}

func (s *InMemoryStore) ListConversationMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (s *InMemoryStore) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, f MessageFilter) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for convID, msgs := range s.messages {
		if f.ConversationID != "" {
			conv := s.conversations[convID]
			if conv == nil || conv.ConversationID != f.ConversationID {
				continue
			}
		}
		for _, m := range msgs {
			if f.Type != "" && m.Type != f.Type {
				continue
			}
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = make([]*Message, 0)
	}
	return out, nil
}

// sortRules orders rules by priority descending, creation order
// ascending. The resolver depends on this being stable.
func sortRules(rules []*TriggerRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func cloneRule(r *TriggerRule) *TriggerRule {
	c := *r
	return &c
}

func cloneConversation(conv *Conversation) *Conversation {
	c := *conv
	return &c
}

func cloneMessage(m *Message) *Message {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
