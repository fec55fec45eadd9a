package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/config"
	"github.com/logwarden/logwarden/internal/types"
)

// TelegramNotifier pushes alert summaries to a set of Telegram chats.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	cfg    config.TelegramConfig
	logger zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(config.ResolveEnv(cfg.BotToken))
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot initialized")

	return &TelegramNotifier{
		bot:    bot,
		cfg:    cfg,
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// NotifyAlert sends a formatted message to every configured chat. Merged
// alerts are skipped: only new alerts page anyone.
func (t *TelegramNotifier) NotifyAlert(a *types.Alert, created bool) {
	if !created {
		return
	}

	msg := fmt.Sprintf(
		"%s *%s*\n\n"+
			"*Type:* `%s`\n"+
			"*Level:* %s\n"+
			"*Detail:* %s\n"+
			"*ID:* `%d`",
		levelIcon(a.AlertLevel),
		escapeMarkdown(a.Title),
		a.AlertType,
		a.AlertLevel,
		escapeMarkdown(a.Description),
		a.ID,
	)

	for _, chatID := range t.cfg.ChatIDs {
		m := tgbotapi.NewMessage(chatID, msg)
		m.ParseMode = "Markdown"
		if _, err := t.bot.Send(m); err != nil {
			t.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		}
	}
}

func levelIcon(l types.AlertLevel) string {
	switch l {
	case types.AlertCritical:
		return "🔴"
	case types.AlertHigh:
		return "🟠"
	case types.AlertMedium:
		return "🟡"
	case types.AlertLow:
		return "🟢"
	default:
		return "🔵"
	}
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"`", "\\`",
		"[", "\\[",
	)
	return replacer.Replace(s)
}
