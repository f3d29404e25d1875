package chatbot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// RuleSource supplies the active trigger rules. The resolver treats it
// as read-only for the duration of a single resolution.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]*TriggerRule, error)
}

// MatchResult is the outcome of evaluating a message against the rules.
type MatchResult struct {
	Matched      bool
	ResponseText string
	RuleID       int64
}

// Resolver evaluates incoming message text against the trigger rules.
type Resolver struct {
	rules RuleSource
}

func NewResolver(rules RuleSource) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve returns the response of the first matching active rule,
// evaluating higher priorities first and breaking ties by creation
// order. Regex rules are matched as a case-insensitive search,
// substring rules by containment. A malformed regex is skipped so one
// bad pattern cannot take resolution down.
func (r *Resolver) Resolve(ctx context.Context, messageText string) (MatchResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(messageText))

	rules, err := r.rules.ListActiveRules(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to list active rules: %w", err)
	}
	sortRules(rules)

	for _, rule := range rules {
		if rule.IsRegex {
			re, err := regexp.Compile("(?i)" + rule.TriggerPattern)
			if err != nil {
				log.Warn().
					Int64("rule_id", rule.ID).
					Str("pattern", rule.TriggerPattern).
					Err(err).
					Msg("Skipping malformed regex trigger pattern")
				continue
			}
			if re.MatchString(normalized) {
				return MatchResult{Matched: true, ResponseText: rule.ResponseText, RuleID: rule.ID}, nil
			}
			continue
		}

		if rule.TriggerPattern == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(rule.TriggerPattern)) {
			return MatchResult{Matched: true, ResponseText: rule.ResponseText, RuleID: rule.ID}, nil
		}
	}

	return MatchResult{}, nil
}
