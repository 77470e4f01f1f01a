package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modguard/modguard/internal/bot"
	"github.com/modguard/modguard/internal/moderation"
)

// MemberStatusChecker resolves a user's membership status for command
// target validation.
type MemberStatusChecker interface {
	MemberStatus(ctx context.Context, chatID, userID int64) (string, error)
}

// Moderator is the top-level message handler: it short-circuits muted
// senders, resolves admin exemption and policy once, runs the detector
// pipeline and actuates the first verdict.
type Moderator struct {
	s        bot.Service
	policies *moderation.PolicyStore
	admins   *moderation.AdminDirectory
	pipeline *moderation.Pipeline
	actuator *moderation.Actuator
	mutes    *moderation.MuteRegistry
	members  MemberStatusChecker
}

func NewModerator(
	s bot.Service,
	policies *moderation.PolicyStore,
	admins *moderation.AdminDirectory,
	pipeline *moderation.Pipeline,
	actuator *moderation.Actuator,
	mutes *moderation.MuteRegistry,
	members MemberStatusChecker,
) *Moderator {
	m := &Moderator{
		s:        s,
		policies: policies,
		admins:   admins,
		pipeline: pipeline,
		actuator: actuator,
		mutes:    mutes,
		members:  members,
	}
	m.getLogEntry().Debug("created new moderator")
	return m
}

func (m *Moderator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u == nil {
		return false, errors.New("nil update")
	}
	if u.Message == nil {
		return true, nil
	}
	if chat == nil || user == nil {
		return false, errors.New("nil chat or user")
	}
	if chat.IsPrivate() {
		return true, nil
	}

	if u.Message.IsCommand() {
		if err := m.handleCommand(ctx, u.Message, chat, user); err != nil {
			m.getLogEntry().WithField("error", err.Error()).Error("error handling command")
			return true, err
		}
		return true, nil
	}

	if err := m.handleMessage(ctx, u.Message, chat, user); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Error("error handling message")
		return true, err
	}
	return true, nil
}

func (m *Moderator) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	entry := m.getLogEntry().WithFields(log.Fields{
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	// Muted senders never reach the detectors; the message is dropped
	// best-effort.
	if m.mutes.IsMuted(chat.ID, user.ID) {
		entry.Debug("dropping message from muted user")
		m.actuator.DropMessage(ctx, chat.ID, msg.MessageID)
		return nil
	}

	content := bot.ExtractContentFromMessage(msg)
	if content == "" {
		return nil
	}

	event := &moderation.Message{
		ChatID:    chat.ID,
		UserID:    user.ID,
		Username:  bot.GetUN(user),
		MessageID: msg.MessageID,
		Text:      content,
		Sent:      time.Now(),
		Admin:     m.admins.IsAdmin(ctx, chat.ID, user.ID),
		Policy:    m.policies.Get(ctx, chat.ID),
	}

	if verdict := m.pipeline.Evaluate(ctx, event); verdict != nil {
		m.actuator.Apply(ctx, event, verdict)
	}
	return nil
}

func (m *Moderator) getLogEntry() *log.Entry {
	return log.WithField("object", "Moderator")
}
