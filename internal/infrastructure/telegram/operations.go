package telegram

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
)

// Operations provides the platform transport operations the moderation
// core depends on. Every call maps one-to-one onto a Bot API request and
// wraps the platform error for the caller to log.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_ = ctx
	_, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID))
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (o *Operations) SendMessage(ctx context.Context, chatID int64, text string) error {
	_ = ctx
	_, err := o.bot.Send(api.NewMessage(chatID, text))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// RestrictUser toggles the target's ability to send messages.
func (o *Operations) RestrictUser(ctx context.Context, chatID, userID int64, canSend bool) error {
	_ = ctx
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		Permissions: &api.ChatPermissions{
			CanSendMessages:       canSend,
			CanSendOtherMessages:  canSend,
			CanAddWebPagePreviews: canSend,
		},
	}
	if _, err := o.bot.Request(config); err != nil {
		return fmt.Errorf("failed to restrict user: %w", err)
	}
	return nil
}

func (o *Operations) BanUser(ctx context.Context, chatID, userID int64) error {
	_ = ctx
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		RevokeMessages: true,
	}
	if _, err := o.bot.Request(config); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// MemberStatus reports the target's membership status in the chat.
func (o *Operations) MemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	_ = ctx
	member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.Status, nil
}

func (o *Operations) ListAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	_ = ctx
	admins, err := o.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
		ChatConfig: api.ChatConfig{
			ChatID: chatID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.User.ID)
	}
	return ids, nil
}
