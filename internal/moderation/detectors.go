package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/modguard/modguard/internal/db"
)

// Stage names, in pipeline order.
const (
	StageBannedWords = "banned_words"
	StageLinks       = "links"
	StageSpamRate    = "spam_rate"
	StageToxicity    = "toxicity"
)

var linkPattern = regexp.MustCompile(`(?i)\b(?:https?://|t\.me/|www\.)\S+`)

// BannedWordsDetector flags case-insensitive substring matches against the
// banned vocabulary. First in the pipeline: cheapest and highest
// confidence, and it applies to admins too.
type BannedWordsDetector struct {
	words *WordList
}

func NewBannedWordsDetector(words *WordList) *BannedWordsDetector {
	return &BannedWordsDetector{words: words}
}

func (d *BannedWordsDetector) Name() string { return StageBannedWords }

func (d *BannedWordsDetector) Check(ctx context.Context, msg *Message) StageResult {
	_ = ctx
	if !msg.Policy.BannedWordsEnabled {
		return noVerdict()
	}
	word, ok := d.words.Match(msg.Text)
	if !ok {
		return noVerdict()
	}
	return verdict(&Verdict{
		Reason: fmt.Sprintf("banned word %q", word),
		Notice: "Message removed for violating chat rules.",
	})
}

// URLChecker is the external reputation collaborator. A pending or unknown
// scan is reported as not malicious, never as a block.
type URLChecker interface {
	CheckURL(ctx context.Context, url string) (malicious bool, detail string, err error)
}

// LinkDetector enforces the chat's link policy. Admins bypass this stage
// entirely. Under the strict policy any link is removed; under the safe
// policy every extracted URL is checked against the reputation
// collaborator and the first malicious one stops the message.
type LinkDetector struct {
	reputation URLChecker
}

func NewLinkDetector(reputation URLChecker) *LinkDetector {
	return &LinkDetector{reputation: reputation}
}

func (d *LinkDetector) Name() string { return StageLinks }

func (d *LinkDetector) Check(ctx context.Context, msg *Message) StageResult {
	if msg.Admin {
		return noVerdict()
	}

	mode := msg.Policy.LinksPolicy()
	if mode == db.LinksPolicyAllow {
		return noVerdict()
	}

	urls := linkPattern.FindAllString(msg.Text, -1)
	if len(urls) == 0 {
		return noVerdict()
	}

	if mode == db.LinksPolicyStrict {
		return verdict(&Verdict{
			Reason: "link not allowed",
			Notice: "Links are not allowed in this chat, message removed.",
		})
	}

	if d.reputation == nil {
		return stageError(fmt.Errorf("reputation checker not configured"))
	}
	for _, raw := range urls {
		malicious, detail, err := d.reputation.CheckURL(ctx, normalizeURL(raw))
		if err != nil {
			return stageError(fmt.Errorf("check url %q: %w", raw, err))
		}
		if malicious {
			return verdict(&Verdict{
				Reason: fmt.Sprintf("malicious link (%s)", detail),
				Notice: fmt.Sprintf("Message removed, link flagged as dangerous (%s).", detail),
			})
		}
	}
	return noVerdict()
}

func normalizeURL(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?)")
	if strings.HasPrefix(strings.ToLower(raw), "http://") || strings.HasPrefix(strings.ToLower(raw), "https://") {
		return raw
	}
	return "https://" + raw
}

// SpamRateDetector counts the message against the sender's sliding window
// and mutes on overflow. Runs after the content checks so a single bad
// message is attributed to content policy, not flood policy. The window is
// recorded even for admins and muted users; only enforcement is skipped.
type SpamRateDetector struct {
	window *RateWindow
	mutes  *MuteRegistry
	limit  int
}

func NewSpamRateDetector(window *RateWindow, mutes *MuteRegistry, limit int) *SpamRateDetector {
	return &SpamRateDetector{window: window, mutes: mutes, limit: limit}
}

func (d *SpamRateDetector) Name() string { return StageSpamRate }

func (d *SpamRateDetector) Check(ctx context.Context, msg *Message) StageResult {
	_ = ctx
	if !msg.Policy.SpamFilterEnabled {
		return noVerdict()
	}

	count := d.window.Record(msg.ChatID, msg.UserID, msg.Sent)
	if count <= d.limit || msg.Admin {
		return noVerdict()
	}
	if d.mutes.IsMuted(msg.ChatID, msg.UserID) {
		return noVerdict()
	}

	duration := time.Duration(msg.Policy.MuteDurationSeconds) * time.Second
	return verdict(&Verdict{
		Reason:       fmt.Sprintf("%d messages in window, limit %d", count, d.limit),
		Notice:       fmt.Sprintf("Flood! @%s is muted for %d seconds.", msg.Username, msg.Policy.MuteDurationSeconds),
		Mute:         true,
		MuteDuration: duration,
	})
}

// ToxicityClassifier is the external ML collaborator. Classification
// failures skip the stage for the message.
type ToxicityClassifier interface {
	Classify(ctx context.Context, text string) (toxic bool, probability float64, err error)
}

// ToxicityDetector is always the last stage: the classifier call is the
// most expensive check and should not fire on messages already handled by
// cheaper, more specific ones.
type ToxicityDetector struct {
	classifier ToxicityClassifier
}

func NewToxicityDetector(classifier ToxicityClassifier) *ToxicityDetector {
	return &ToxicityDetector{classifier: classifier}
}

func (d *ToxicityDetector) Name() string { return StageToxicity }

func (d *ToxicityDetector) Check(ctx context.Context, msg *Message) StageResult {
	if !msg.Policy.ToxicityEnabled {
		return noVerdict()
	}
	if d.classifier == nil {
		return stageError(fmt.Errorf("classifier not configured"))
	}

	_, probability, err := d.classifier.Classify(ctx, msg.Text)
	if err != nil {
		return stageError(fmt.Errorf("classify: %w", err))
	}
	if probability <= msg.Policy.ToxicityThreshold {
		return noVerdict()
	}
	return verdict(&Verdict{
		Reason: fmt.Sprintf("toxicity probability %.2f", probability),
		Notice: fmt.Sprintf("@%s's message was removed as toxic (probability: %.0f%%).", msg.Username, probability*100),
	})
}
