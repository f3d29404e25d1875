package chatbot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store on top of the bot_responses,
// conversations and messages tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const ruleColumns = `id, trigger_pattern, response_text, is_regex, is_active, priority, use_count, created_at, updated_at`

func (s *PostgresStore) CreateRule(ctx context.Context, r *TriggerRule) error {
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO bot_responses (trigger_pattern, response_text, is_regex, is_active, priority)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, use_count, created_at, updated_at
    `, r.TriggerPattern, r.ResponseText, r.IsRegex, r.IsActive, r.Priority,
	).Scan(&r.ID, &r.UseCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePattern
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, r *TriggerRule) error {
	err := s.db.QueryRowContext(ctx, `
        UPDATE bot_responses
        SET trigger_pattern = $1, response_text = $2, is_regex = $3, is_active = $4, priority = $5, updated_at = NOW()
        WHERE id = $6
        RETURNING updated_at
    `, r.TriggerPattern, r.ResponseText, r.IsRegex, r.IsActive, r.Priority, r.ID,
	).Scan(&r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrDuplicatePattern
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bot_responses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRule(ctx context.Context, id int64) (*TriggerRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM bot_responses WHERE id = $1`, id)
	return scanRule(row)
}

func (s *PostgresStore) ListRules(ctx context.Context, isActive *bool) ([]*TriggerRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM bot_responses`
	var args []interface{}
	if isActive != nil {
		query += ` WHERE is_active = $1`
		args = append(args, *isActive)
	}
	query += ` ORDER BY priority DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*TriggerRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]*TriggerRule, error) {
	active := true
	return s.ListRules(ctx, &active)
}

func (s *PostgresStore) IncrementRuleUseCount(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE bot_responses SET use_count = use_count + 1, updated_at = NOW() WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("failed to increment use count: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const conversationColumns = `id, conversation_id, coalesce(user_id, ''), coalesce(channel_id, ''), started_at, last_interaction, is_active`

// GetOrCreateConversation is safe under concurrent calls with the same
// conversation id: the unique constraint guarantees a single row and
// losers of the insert race reload the winner's row.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, conversationID, userID, channelID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO conversations (conversation_id, user_id, channel_id)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
        ON CONFLICT (conversation_id) DO NOTHING
        RETURNING `+conversationColumns+`
    `, conversationID, userID, channelID)

	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
        SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = $1
    `, conversationID)
	conv, err = scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

func (s *PostgresStore) ListConversations(ctx context.Context, f ConversationFilter) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	var args []interface{}
	if f.ChannelID != "" {
		args = append(args, f.ChannelID)
		query += fmt.Sprintf(` AND channel_id = $%d`, len(args))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		query += fmt.Sprintf(` AND is_active = $%d`, len(args))
	}
	query += ` ORDER BY last_interaction DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

// AppendMessage inserts the message and refreshes the conversation's
// last_interaction in a single transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID int64, m *Message) error {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO messages (conversation_id, message_type, content, metadata)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `, conversationID, string(m.Type), m.Content, metaJSON).Scan(&m.ID, &m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	m.ConversationID = conversationID

	if _, err := tx.ExecContext(ctx, `
        UPDATE conversations SET last_interaction = NOW() WHERE id = $1
    `, conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

const messageColumns = `id, conversation_id, message_type, content, created_at, metadata`

func (s *PostgresStore) ListConversationMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY id ASC
    `, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListRecentMessages returns the last limit messages in chronological
// order (most recent last).
func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT * FROM (
            SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY id DESC LIMIT $2
        ) recent ORDER BY id ASC
    `, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) ListMessages(ctx context.Context, f MessageFilter) ([]*Message, error) {
	query := `
        SELECT m.id, m.conversation_id, m.message_type, m.content, m.created_at, m.metadata
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE 1=1`
	var args []interface{}
	if f.ConversationID != "" {
		args = append(args, f.ConversationID)
		query += fmt.Sprintf(` AND c.conversation_id = $%d`, len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(` AND m.message_type = $%d`, len(args))
	}
	query += ` ORDER BY m.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*TriggerRule, error) {
	var r TriggerRule
	err := row.Scan(&r.ID, &r.TriggerPattern, &r.ResponseText, &r.IsRegex, &r.IsActive, &r.Priority, &r.UseCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	return &r, nil
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	err := row.Scan(&conv.ID, &conv.ConversationID, &conv.UserID, &conv.ChannelID, &conv.StartedAt, &conv.LastInteraction, &conv.IsActive)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	messages := make([]*Message, 0)
	for rows.Next() {
		var m Message
		var metaJSON []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Type, &m.Content, &m.Timestamp, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
