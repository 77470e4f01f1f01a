package moderation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	apperrors "github.com/modguard/modguard/internal/errors"
)

// Transport is the platform surface enforcement needs. All calls are
// best-effort: a failed platform action is logged, never retried here.
type Transport interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	RestrictUser(ctx context.Context, chatID, userID int64, canSend bool) error
	BanUser(ctx context.Context, chatID, userID int64) error
}

// Actuator translates a verdict into platform actions and owns the
// warning escalation path.
type Actuator struct {
	transport Transport
	mutes     *MuteRegistry
	warnings  *WarningLedger
}

func NewActuator(transport Transport, mutes *MuteRegistry, warnings *WarningLedger) *Actuator {
	return &Actuator{
		transport: transport,
		mutes:     mutes,
		warnings:  warnings,
	}
}

// Apply executes a verdict: delete the message, mute if asked, announce.
// Partial progress is never undone; every step failure is logged and the
// next step still runs. Mute state is tracked even when the platform
// restriction call fails.
func (a *Actuator) Apply(ctx context.Context, msg *Message, v *Verdict) {
	entry := a.getLogEntry().WithFields(log.Fields{
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
		"stage":   v.Stage,
	})

	if err := a.transport.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		entry.WithField("error", err.Error()).Error("failed to delete message")
	}

	if v.Mute {
		already := a.mutes.Mute(msg.ChatID, msg.UserID, msg.Username, v.MuteDuration)
		if already {
			entry.Debug("user already muted, skipping restriction")
		} else if err := a.transport.RestrictUser(ctx, msg.ChatID, msg.UserID, false); err != nil {
			entry.WithField("error", err.Error()).Error("failed to restrict user")
		}
	}

	if v.Notice != "" {
		if err := a.transport.SendMessage(ctx, msg.ChatID, v.Notice); err != nil {
			entry.WithField("error", err.Error()).Error("failed to send notice")
		}
	}
}

// DropMessage deletes a message without any announcement; used for
// messages from muted senders that never reach the detectors.
func (a *Actuator) DropMessage(ctx context.Context, chatID int64, messageID int) {
	if err := a.transport.DeleteMessage(ctx, chatID, messageID); err != nil {
		a.getLogEntry().WithFields(log.Fields{
			"chat_id":    chatID,
			"message_id": messageID,
			"error":      err.Error(),
		}).Error("failed to delete muted user's message")
	}
}

// Warn increments the target's warning count and bans at the threshold.
func (a *Actuator) Warn(ctx context.Context, chatID, userID int64) (count int, banned bool, err error) {
	count, banned = a.warnings.Add(chatID, userID)
	if !banned {
		return count, false, nil
	}
	if err := a.transport.BanUser(ctx, chatID, userID); err != nil {
		return count, true, fmt.Errorf("ban at warning threshold: %w", err)
	}
	a.mutes.Clear(chatID, userID)
	return count, true, nil
}

// MuteUser is the command-driven mute path. Reports ErrAlreadyMuted
// without touching the existing timer. The state transition stands even
// when the platform restriction call fails.
func (a *Actuator) MuteUser(ctx context.Context, chatID, userID int64, username string, duration time.Duration) error {
	if already := a.mutes.Mute(chatID, userID, username, duration); already {
		return apperrors.ErrAlreadyMuted
	}
	if err := a.transport.RestrictUser(ctx, chatID, userID, false); err != nil {
		a.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err.Error(),
		}).Error("failed to restrict user")
	}
	return nil
}

// UnmuteUser cancels the pending expiry and lifts the restriction.
func (a *Actuator) UnmuteUser(ctx context.Context, chatID, userID int64) error {
	if !a.mutes.Unmute(chatID, userID) {
		return apperrors.ErrNotFound
	}
	if err := a.transport.RestrictUser(ctx, chatID, userID, true); err != nil {
		a.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err.Error(),
		}).Error("failed to lift restriction")
	}
	return nil
}

func (a *Actuator) WarningsThreshold() int {
	return a.warnings.Threshold()
}

// Ban bans the target outright, clearing any tracked mute state.
func (a *Actuator) Ban(ctx context.Context, chatID, userID int64) error {
	if err := a.transport.BanUser(ctx, chatID, userID); err != nil {
		return err
	}
	a.mutes.Clear(chatID, userID)
	return nil
}

func (a *Actuator) getLogEntry() *log.Entry {
	return log.WithField("object", "Actuator")
}
