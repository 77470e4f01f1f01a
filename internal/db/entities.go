package db

import (
	"errors"
)

var ErrNotFound = errors.New("not found")

const (
	LinksPolicyStrict = "strict"
	LinksPolicySafe   = "safe"
	LinksPolicyAllow  = "allow"
)

const (
	MinMuteDurationSeconds = 10
	MaxMuteDurationSeconds = 86400
)

type (
	// ChatPolicy holds the per-chat moderation configuration. Toggle
	// defaults mirror the initial deployment: every content filter on,
	// reputation lookups off until an API key is configured.
	ChatPolicy struct {
		ChatID              int64   `db:"chat_id"`
		BannedWordsEnabled  bool    `db:"banned_words_enabled"`
		LinkFilterEnabled   bool    `db:"link_filter_enabled"`
		VirusTotalEnabled   bool    `db:"virustotal_enabled"`
		SpamFilterEnabled   bool    `db:"spam_filter_enabled"`
		ToxicityEnabled     bool    `db:"toxicity_enabled"`
		WarningsEnabled     bool    `db:"warnings_enabled"`
		MuteDurationSeconds int64   `db:"mute_duration_seconds"`
		ToxicityThreshold   float64 `db:"toxicity_threshold"`
	}
)

func DefaultPolicy(chatID int64) *ChatPolicy {
	return &ChatPolicy{
		ChatID:              chatID,
		BannedWordsEnabled:  true,
		LinkFilterEnabled:   true,
		VirusTotalEnabled:   false,
		SpamFilterEnabled:   true,
		ToxicityEnabled:     true,
		WarningsEnabled:     true,
		MuteDurationSeconds: 30,
		ToxicityThreshold:   0.6,
	}
}

// LinksPolicy derives the effective link handling mode. The strict filter
// wins over reputation checking when both toggles are set.
func (p *ChatPolicy) LinksPolicy() string {
	switch {
	case p.LinkFilterEnabled:
		return LinksPolicyStrict
	case p.VirusTotalEnabled:
		return LinksPolicySafe
	default:
		return LinksPolicyAllow
	}
}
