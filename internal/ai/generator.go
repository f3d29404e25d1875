// Package ai declares the text-generation capability the chat agent
// falls back to when no trigger rule matches. Implementations live in
// subpackages so the agent never depends on a specific vendor.
package ai

import (
	"context"
	"errors"
)

// Role identifies the author of a prior conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message handed to the generator as context,
// ordered oldest first.
type Turn struct {
	Role    Role
	Content string
}

// TextGenerator produces a reply for a message given bounded recent
// history. Calls must respect ctx cancellation; the agent bounds them
// with a deadline.
type TextGenerator interface {
	Generate(ctx context.Context, text string, history []Turn) (string, error)
	Name() string
}

var (
	// ErrUnavailable means the generator cannot be constructed at all,
	// typically because no credentials are configured.
	ErrUnavailable = errors.New("text generation is not configured")

	// ErrGenerationFailed wraps upstream errors and timeouts.
	ErrGenerationFailed = errors.New("text generation failed")
)
