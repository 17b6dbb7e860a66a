package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// TelegramConfig contains Telegram-specific configuration
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// TelegramChannel sends notifications to a single Telegram chat.
type TelegramChannel struct {
	bot    *bot.Bot
	chatID string
}

// NewTelegramChannel validates the config and connects the bot.
func NewTelegramChannel(cfg TelegramConfig) (*TelegramChannel, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot_token is required for Telegram notifications")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("chat_id is required for Telegram notifications")
	}

	b, err := bot.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &TelegramChannel{bot: b, chatID: cfg.ChatID}, nil
}

// Name identifies the channel.
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Send delivers a message to the configured chat.
func (t *TelegramChannel) Send(ctx context.Context, message string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
