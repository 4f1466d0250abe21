package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
)

const (
	telegramSendRetries = 2
	telegramRetryWait   = time.Second
)

// Telegram implementa ports.Notifier sobre la Bot API. Sin token o con
// enabled=false queda en no-op: el bot nunca depende de Telegram para operar.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram crea el notificador. Devuelve uno deshabilitado (nil bot) si
// la config no está completa.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if !cfg.Enabled || cfg.BotToken == "" {
		slog.Info("telegram: disabled")
		return &Telegram{}, nil
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}

	slog.Info("telegram: connected", "bot", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert envía la alerta al chat configurado.
func (t *Telegram) Alert(ctx context.Context, event domain.AlertEvent) error {
	if t.bot == nil {
		return nil
	}

	text := fmt.Sprintf("%s *%s*\n%s", severityIcon(event.Severity), event.Kind, event.Message)
	if event.MarketID != "" {
		text += fmt.Sprintf("\n`%s`", event.MarketID)
	}
	return t.send(ctx, text)
}

// CycleReport envía solo los ciclos con trade; el resto sería spam.
func (t *Telegram) CycleReport(ctx context.Context, report domain.CycleReport) error {
	if t.bot == nil || !report.Traded() {
		return nil
	}

	outcome := report.Outcome
	text := fmt.Sprintf(
		"💰 *%s*\n%s\nSide: %s  Filled: $%.2f @ %.3f\nStatus: %s  Open: %d  Exposure: $%.2f",
		report.MarketID,
		compactQuestion(report.Question, 80),
		report.Decision.Side, outcome.FilledUSD, outcome.AvgPrice,
		outcome.Status, report.OpenCount, report.Exposure,
	)
	return t.send(ctx, text)
}

// send entrega el mensaje con reintentos acotados. La API de la librería no
// acepta context, así que solo comprobamos cancelación entre intentos.
func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	var lastErr error
	for attempt := 0; attempt <= telegramSendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(msg); err != nil {
			lastErr = err
			slog.Warn("telegram: send failed", "attempt", attempt+1, "error", err)
			time.Sleep(telegramRetryWait)
			continue
		}
		return nil
	}
	return fmt.Errorf("notify.Telegram.send: %w", lastErr)
}
