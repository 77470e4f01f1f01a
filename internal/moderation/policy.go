package moderation

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modguard/modguard/internal/db"
	apperrors "github.com/modguard/modguard/internal/errors"
)

const (
	policyCacheSize = 1024
	policyCacheTTL  = time.Hour
)

// Toggle names accepted by /enable and /disable.
const (
	SettingBannedWords = "banned_words"
	SettingLinks       = "links"
	SettingVirusTotal  = "virustotal"
	SettingSpam        = "spam"
	SettingToxicity    = "toxicity"
	SettingWarnings    = "warnings"
)

type policyStore interface {
	GetPolicy(ctx context.Context, chatID int64) (*db.ChatPolicy, error)
	SetPolicy(ctx context.Context, policy *db.ChatPolicy) error
}

// PolicyStore serves per-chat policy with create-on-miss defaults. Reads
// go through an expiring in-memory cache; writes go through to sqlite so
// admin-configured policy survives restarts, the one piece of moderation
// state that does.
type PolicyStore struct {
	store policyStore
	cache *expirable.LRU[int64, *db.ChatPolicy]
}

func NewPolicyStore(store policyStore) *PolicyStore {
	return &PolicyStore{
		store: store,
		cache: expirable.NewLRU[int64, *db.ChatPolicy](policyCacheSize, nil, policyCacheTTL),
	}
}

// Get never fails: a missing row yields defaults which are persisted
// best-effort, and storage errors degrade to defaults for this call.
func (s *PolicyStore) Get(ctx context.Context, chatID int64) *db.ChatPolicy {
	if policy, ok := s.cache.Get(chatID); ok {
		return policy
	}

	policy, err := s.store.GetPolicy(ctx, chatID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		policy = db.DefaultPolicy(chatID)
		if err := s.store.SetPolicy(ctx, policy); err != nil {
			s.getLogEntry().WithField("error", err.Error()).Error("failed to persist default policy")
		}
	case err != nil:
		s.getLogEntry().WithField("error", err.Error()).Error("failed to load policy, using defaults")
		return db.DefaultPolicy(chatID)
	}

	s.cache.Add(chatID, policy)
	return policy
}

// Set updates one named setting. Unknown names report ErrUnknownSetting,
// malformed or out-of-range values report ErrValidation; the two are
// distinct so command handlers can word the reply.
func (s *PolicyStore) Set(ctx context.Context, chatID int64, field, value string) error {
	policy := s.Get(ctx, chatID)
	updated := *policy

	switch field {
	case SettingBannedWords, SettingLinks, SettingVirusTotal, SettingSpam, SettingToxicity, SettingWarnings:
		on, err := parseToggle(value)
		if err != nil {
			return err
		}
		switch field {
		case SettingBannedWords:
			updated.BannedWordsEnabled = on
		case SettingLinks:
			updated.LinkFilterEnabled = on
		case SettingVirusTotal:
			updated.VirusTotalEnabled = on
		case SettingSpam:
			updated.SpamFilterEnabled = on
		case SettingToxicity:
			updated.ToxicityEnabled = on
		case SettingWarnings:
			updated.WarningsEnabled = on
		}

	case "mute_duration":
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Wrapf(apperrors.ErrValidation, "mute duration must be a number, got %q", value)
		}
		if seconds < db.MinMuteDurationSeconds || seconds > db.MaxMuteDurationSeconds {
			return errors.Wrapf(apperrors.ErrValidation, "mute duration must be in [%d, %d] seconds",
				db.MinMuteDurationSeconds, db.MaxMuteDurationSeconds)
		}
		updated.MuteDurationSeconds = seconds

	case "toxicity_threshold":
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return errors.Wrapf(apperrors.ErrValidation, "toxicity threshold must be in [0, 1], got %q", value)
		}
		updated.ToxicityThreshold = threshold

	case "links_policy":
		switch value {
		case db.LinksPolicyStrict:
			updated.LinkFilterEnabled = true
			updated.VirusTotalEnabled = false
		case db.LinksPolicySafe:
			updated.LinkFilterEnabled = false
			updated.VirusTotalEnabled = true
		case db.LinksPolicyAllow:
			updated.LinkFilterEnabled = false
			updated.VirusTotalEnabled = false
		default:
			return errors.Wrapf(apperrors.ErrValidation, "links policy must be strict, safe or allow, got %q", value)
		}

	default:
		return errors.Wrapf(apperrors.ErrUnknownSetting, "%q", field)
	}

	if err := s.store.SetPolicy(ctx, &updated); err != nil {
		return errors.Wrap(err, "persist policy")
	}
	s.cache.Add(chatID, &updated)
	return nil
}

// SetEnabled is the /enable and /disable entry point.
func (s *PolicyStore) SetEnabled(ctx context.Context, chatID int64, field string, on bool) error {
	value := "off"
	if on {
		value = "on"
	}
	return s.Set(ctx, chatID, field, value)
}

func parseToggle(value string) (bool, error) {
	switch value {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, errors.Wrapf(apperrors.ErrValidation, "expected on or off, got %q", value)
}

func (s *PolicyStore) getLogEntry() *log.Entry {
	return log.WithField("object", "PolicyStore")
}
