package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modguard/modguard/internal/bot"
	apperrors "github.com/modguard/modguard/internal/errors"
	"github.com/modguard/modguard/internal/moderation"
)

const settingsTemplate = `Moderation settings for this chat:
banned_words: {{ .banned_words }}
links: {{ .links }}
virustotal: {{ .virustotal }}
spam: {{ .spam }}
toxicity: {{ .toxicity }}
warnings: {{ .warnings }}
links_policy: {{ .links_policy }}
mute_duration: {{ .mute_duration }}s
toxicity_threshold: {{ .toxicity_threshold }}`

func (m *Moderator) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	switch msg.Command() {
	case "ban":
		return m.banCommand(ctx, msg, chat, user)
	case "mute":
		return m.muteCommand(ctx, msg, chat, user)
	case "unmute":
		return m.unmuteCommand(ctx, msg, chat, user)
	case "warn":
		return m.warnCommand(ctx, msg, chat, user)
	case "settings":
		return m.settingsCommand(ctx, msg, chat, user)
	case "enable":
		return m.toggleCommand(ctx, msg, chat, user, true)
	case "disable":
		return m.toggleCommand(ctx, msg, chat, user, false)
	case "set_mute_duration":
		return m.setCommand(ctx, msg, chat, user, "mute_duration")
	case "set_links_policy":
		return m.setCommand(ctx, msg, chat, user, "links_policy")
	}
	return nil
}

// requireAdmin gates privileged commands. The denial is user-visible and
// changes no state.
func (m *Moderator) requireAdmin(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) bool {
	if m.admins.IsAdmin(ctx, chat.ID, user.ID) {
		return true
	}
	m.getLogEntry().WithFields(log.Fields{
		"chat_id": chat.ID,
		"user_id": user.ID,
		"command": msg.Command(),
	}).Info("unauthorized command")
	m.reply(msg, chat, "Only chat administrators can use this command.")
	return false
}

func resolveTarget(msg *api.Message) (*api.User, error) {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return nil, apperrors.ErrNoReplyTarget
	}
	return msg.ReplyToMessage.From, nil
}

func (m *Moderator) banCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	target, err := resolveTarget(msg)
	if err != nil {
		m.reply(msg, chat, "This command must be used as a reply to a message.")
		return nil
	}

	if err := m.actuator.Ban(ctx, chat.ID, target.ID); err != nil {
		m.reply(msg, chat, "Failed to ban the user.")
		return errors.Wrap(err, "ban command")
	}
	m.reply(msg, chat, fmt.Sprintf("User @%s is banned.", bot.GetUN(target)))
	return nil
}

func (m *Moderator) muteCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	target, err := resolveTarget(msg)
	if err != nil {
		m.reply(msg, chat, "This command must be used as a reply to a message.")
		return nil
	}

	status, err := m.members.MemberStatus(ctx, chat.ID, target.ID)
	if err != nil {
		m.getLogEntry().WithField("error", err.Error()).Error("failed to get member status")
	} else if status == "left" || status == "kicked" {
		m.mutes.Clear(chat.ID, target.ID)
		m.reply(msg, chat, "That user has left the chat.")
		return nil
	}

	policy := m.policies.Get(ctx, chat.ID)
	duration := time.Duration(policy.MuteDurationSeconds) * time.Second
	if err := m.actuator.MuteUser(ctx, chat.ID, target.ID, bot.GetUN(target), duration); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyMuted) {
			m.reply(msg, chat, "That user is already muted.")
			return nil
		}
		return errors.Wrap(err, "mute command")
	}
	m.reply(msg, chat, fmt.Sprintf("User @%s is muted for %d seconds.", bot.GetUN(target), policy.MuteDurationSeconds))
	return nil
}

func (m *Moderator) unmuteCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	target, err := resolveTarget(msg)
	if err != nil {
		m.reply(msg, chat, "This command must be used as a reply to a message.")
		return nil
	}

	if err := m.actuator.UnmuteUser(ctx, chat.ID, target.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			m.reply(msg, chat, "That user is not muted.")
			return nil
		}
		return errors.Wrap(err, "unmute command")
	}
	m.reply(msg, chat, fmt.Sprintf("User @%s is unmuted.", bot.GetUN(target)))
	return nil
}

func (m *Moderator) warnCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	policy := m.policies.Get(ctx, chat.ID)
	if !policy.WarningsEnabled {
		m.reply(msg, chat, "Warnings are disabled in this chat.")
		return nil
	}
	target, err := resolveTarget(msg)
	if err != nil {
		m.reply(msg, chat, "This command must be used as a reply to a message.")
		return nil
	}
	if m.admins.IsAdmin(ctx, chat.ID, target.ID) {
		m.reply(msg, chat, "Administrators cannot be warned.")
		return nil
	}

	count, banned, err := m.actuator.Warn(ctx, chat.ID, target.ID)
	if err != nil {
		return errors.Wrap(err, "warn command")
	}
	if banned {
		m.reply(msg, chat, fmt.Sprintf("User @%s is banned after %d warnings.", bot.GetUN(target), count))
		return nil
	}
	m.reply(msg, chat, fmt.Sprintf("Warning %d/%d", count, m.actuator.WarningsThreshold()))
	return nil
}

func (m *Moderator) settingsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	policy := m.policies.Get(ctx, chat.ID)
	text := tool.ExecTemplate(settingsTemplate, map[string]any{
		"banned_words":       onOff(policy.BannedWordsEnabled),
		"links":              onOff(policy.LinkFilterEnabled),
		"virustotal":         onOff(policy.VirusTotalEnabled),
		"spam":               onOff(policy.SpamFilterEnabled),
		"toxicity":           onOff(policy.ToxicityEnabled),
		"warnings":           onOff(policy.WarningsEnabled),
		"links_policy":       policy.LinksPolicy(),
		"mute_duration":      policy.MuteDurationSeconds,
		"toxicity_threshold": policy.ToxicityThreshold,
	})
	m.reply(msg, chat, text)
	return nil
}

func (m *Moderator) toggleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, on bool) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		m.reply(msg, chat, "Usage: /enable <filter> or /disable <filter>")
		return nil
	}

	if err := m.policies.SetEnabled(ctx, chat.ID, name, on); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUnknownSetting):
			m.reply(msg, chat, fmt.Sprintf("Unknown filter %q. Valid filters: %s.", name, strings.Join([]string{
				moderation.SettingBannedWords,
				moderation.SettingLinks,
				moderation.SettingVirusTotal,
				moderation.SettingSpam,
				moderation.SettingToxicity,
				moderation.SettingWarnings,
			}, ", ")))
			return nil
		default:
			return errors.Wrap(err, "toggle command")
		}
	}

	state := "disabled"
	if on {
		state = "enabled"
	}
	m.reply(msg, chat, fmt.Sprintf("Filter %q is now %s.", name, state))
	return nil
}

func (m *Moderator) setCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User, field string) error {
	if !m.requireAdmin(ctx, msg, chat, user) {
		return nil
	}
	value := strings.TrimSpace(msg.CommandArguments())
	if value == "" {
		m.reply(msg, chat, fmt.Sprintf("Usage: /%s <value>", msg.Command()))
		return nil
	}

	if err := m.policies.Set(ctx, chat.ID, field, value); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			m.reply(msg, chat, cause(err))
			return nil
		case errors.Is(err, apperrors.ErrUnknownSetting):
			m.reply(msg, chat, fmt.Sprintf("Unknown setting %q.", field))
			return nil
		default:
			return errors.Wrap(err, "set command")
		}
	}
	m.reply(msg, chat, fmt.Sprintf("Setting %q updated to %q.", field, value))
	return nil
}

func (m *Moderator) reply(msg *api.Message, chat *api.Chat, text string) {
	responseMsg := api.NewMessage(chat.ID, text)
	responseMsg.ReplyParameters.AllowSendingWithoutReply = true
	responseMsg.ReplyParameters.MessageID = msg.MessageID
	responseMsg.ReplyParameters.ChatID = chat.ID
	if msg.Chat.IsForum {
		responseMsg.MessageThreadID = msg.MessageThreadID
	}
	if _, err := m.s.GetBot().Send(responseMsg); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Error("failed to send reply")
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func cause(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "+apperrors.ErrValidation.Error()); idx > 0 {
		msg = msg[:idx]
	}
	return msg
}
