package chatbot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/telexbot/internal/ai"
)

// DefaultReply is used when no rule matches and generation is
// unavailable or fails.
const DefaultReply = "Thanks for your message! I'm a chat automation assistant. " +
	"Try asking for help, or say hello."

const (
	defaultHistoryLimit    = 10
	defaultGenerateTimeout = 20 * time.Second
)

// ErrEmptyMessage rejects requests whose message text is empty or
// whitespace. No conversation state is touched in that case.
var ErrEmptyMessage = errors.New("message text is required")

// PersistenceError marks store failures so the HTTP layer can map them
// to a 500 response.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence failure: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ChatRequest is the canonical request both wire shapes normalize to.
type ChatRequest struct {
	Text           string
	ConversationID string
	UserID         string
	ChannelID      string
}

// ChatResult describes the reply and how it was produced.
type ChatResult struct {
	Response       string
	ConversationID string
	Timestamp      time.Time
	Method         string // pattern | ai | default
	RuleID         int64
}

// AgentConfig tunes the agent; zero values fall back to defaults.
type AgentConfig struct {
	DefaultReply    string
	HistoryLimit    int
	GenerateTimeout time.Duration
}

// Agent runs the message pipeline: track the conversation, record the
// user message, resolve a reply (rules first, generation as fallback)
// and record the bot message.
type Agent struct {
	store           Store
	resolver        *Resolver
	generator       ai.TextGenerator
	defaultReply    string
	historyLimit    int
	generateTimeout time.Duration
}

// NewAgent wires the pipeline. generator may be nil, in which case
// unmatched messages get the default reply.
func NewAgent(store Store, generator ai.TextGenerator, cfg AgentConfig) *Agent {
	if cfg.DefaultReply == "" {
		cfg.DefaultReply = DefaultReply
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerateTimeout
	}
	return &Agent{
		store:           store,
		resolver:        NewResolver(store),
		generator:       generator,
		defaultReply:    cfg.DefaultReply,
		historyLimit:    cfg.HistoryLimit,
		generateTimeout: cfg.GenerateTimeout,
	}
}

// ProcessMessage handles one inbound message as an indivisible unit.
// A persistence failure mid-pipeline may leave the user message saved
// without a bot reply; that partial state is surfaced, not retried.
func (a *Agent) ProcessMessage(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := a.store.GetOrCreateConversation(ctx, req.ConversationID, req.UserID, req.ChannelID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	userMeta := map[string]interface{}{}
	if req.UserID != "" {
		userMeta["user_id"] = req.UserID
	}
	if req.ChannelID != "" {
		userMeta["channel_id"] = req.ChannelID
	}
	userMsg := &Message{Type: MessageUser, Content: req.Text, Metadata: userMeta}
	if err := a.store.AppendMessage(ctx, conv.ID, userMsg); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	match, err := a.resolver.Resolve(ctx, req.Text)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	var (
		responseText string
		method       string
		ruleID       int64
	)
	if match.Matched {
		responseText = match.ResponseText
		method = "pattern"
		ruleID = match.RuleID
		if err := a.store.IncrementRuleUseCount(ctx, match.RuleID); err != nil {
			log.Warn().Int64("rule_id", match.RuleID).Err(err).Msg("Failed to increment rule use count")
		}
	} else {
		responseText, method = a.generateFallback(ctx, conv, req.Text)
	}

	botMeta := map[string]interface{}{"method": method}
	if ruleID != 0 {
		botMeta["rule_id"] = ruleID
	}
	botMsg := &Message{Type: MessageBot, Content: responseText, Metadata: botMeta}
	if err := a.store.AppendMessage(ctx, conv.ID, botMsg); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	return &ChatResult{
		Response:       responseText,
		ConversationID: conv.ConversationID,
		Timestamp:      botMsg.Timestamp,
		Method:         method,
		RuleID:         ruleID,
	}, nil
}

// generateFallback asks the generator for a reply, bounded by the
// configured timeout. Every failure path degrades to the default
// reply; generation trouble never reaches the caller.
func (a *Agent) generateFallback(ctx context.Context, conv *Conversation, text string) (string, string) {
	if a.generator == nil {
		return a.defaultReply, "default"
	}

	history := a.recentHistory(ctx, conv.ID, text)

	genCtx, cancel := context.WithTimeout(ctx, a.generateTimeout)
	defer cancel()

	reply, err := a.generator.Generate(genCtx, text, history)
	if err != nil {
		log.Warn().
			Str("generator", a.generator.Name()).
			Str("conversation_id", conv.ConversationID).
			Err(err).
			Msg("Fallback generation failed, using default reply")
		return a.defaultReply, "default"
	}
	return reply, "ai"
}

// recentHistory returns the last messages as generator turns, oldest
// first, excluding the inbound message that was just appended.
func (a *Agent) recentHistory(ctx context.Context, conversationID int64, text string) []ai.Turn {
	messages, err := a.store.ListRecentMessages(ctx, conversationID, a.historyLimit+1)
	if err != nil {
		log.Warn().Int64("conversation", conversationID).Err(err).Msg("Failed to load conversation history")
		return nil
	}
	if n := len(messages); n > 0 && messages[n-1].Type == MessageUser && messages[n-1].Content == text {
		messages = messages[:n-1]
	}
	if len(messages) > a.historyLimit {
		messages = messages[len(messages)-a.historyLimit:]
	}

	turns := make([]ai.Turn, 0, len(messages))
	for _, m := range messages {
		role := ai.RoleUser
		if m.Type == MessageBot {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns
}
