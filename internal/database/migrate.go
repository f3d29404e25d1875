package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bot_responses (
		id BIGSERIAL PRIMARY KEY,
		trigger_pattern TEXT NOT NULL UNIQUE,
		response_text TEXT NOT NULL,
		is_regex BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 0,
		use_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL UNIQUE,
		user_id TEXT,
		channel_id TEXT,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_interaction TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_last_interaction ON conversations (last_interaction DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bot_responses_active ON bot_responses (is_active, priority DESC)`,
}

// Migrate creates the chatbot tables and indexes if they don't exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// defaultRules are the builtin patterns the bot shipped with. They are
// seeded at a low priority so operator-defined rules outrank them, and
// remain editable through the bot-responses API afterwards.
var defaultRules = []struct {
	pattern  string
	response string
}{
	{`\b(hi|hello|hey|greetings)\b`, "Hello! I'm your chat automation assistant. How can I help you today?"},
	{`\b(help|assist|support)\b`, "I'm here to help! I can answer common questions, provide automated responses and assist with general inquiries. What do you need help with?"},
	{`\b(thanks|thank you|thx)\b`, "You're welcome! Feel free to ask if you need anything else."},
	{`\b(bye|goodbye|see you)\b`, "Goodbye! Have a great day! Feel free to return anytime."},
	{`\b(status|health|ping)\b`, "I'm online and ready to assist! All systems operational."},
	{`\bwhat (can|do) you do\b`, "I'm a chat automation bot: I respond to common queries automatically, track conversations and provide helpful information. Try asking me anything!"},
}

const defaultRulePriority = -10

// SeedDefaultRules inserts the builtin rules, skipping any pattern an
// operator already owns. Safe to run repeatedly.
func SeedDefaultRules(ctx context.Context, db *sql.DB) error {
	for _, rule := range defaultRules {
		result, err := db.ExecContext(ctx, `
            INSERT INTO bot_responses (trigger_pattern, response_text, is_regex, priority)
            VALUES ($1, $2, TRUE, $3)
            ON CONFLICT (trigger_pattern) DO NOTHING
        `, rule.pattern, rule.response, defaultRulePriority)
		if err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", rule.pattern, err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows > 0 {
			log.Debug().Str("pattern", rule.pattern).Msg("Seeded default rule")
		}
	}
	return nil
}
