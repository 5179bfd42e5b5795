package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/notification"
	"github.com/hitoshi/schedbot/internal/ssau"
)

// BotAPI はtgbotapiクライアントのうち送信に使うメソッドの集合。
// テスト時にモックに差し替え可能。
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier はドメインメッセージをレンダリングしてTelegramに送信する。
// 長文は自動でチャンク分割し、一時的な障害は再試行する。
type Notifier struct {
	bot       BotAPI
	renderer  *Renderer
	policy    ssau.RetryPolicy
	collector metrics.MetricsCollector
}

var _ notification.Notifier = (*Notifier)(nil)

// NewNotifier はNotifierを生成する。
func NewNotifier(bot BotAPI, renderer *Renderer, policy ssau.RetryPolicy, collector metrics.MetricsCollector) *Notifier {
	return &Notifier{
		bot:       bot,
		renderer:  renderer,
		policy:    policy,
		collector: collector,
	}
}

// Send はメッセージをレンダリングし、chatIDへ送信する。
func (n *Notifier) Send(ctx context.Context, chatID int64, msg model.Message) error {
	text, err := n.renderer.Render(msg)
	if err != nil {
		return err
	}

	chunks := SplitMessage(text, MessageLimit)
	if len(chunks) > 1 {
		slog.Info("長文メッセージを分割して送信します",
			slog.Int64("chat_id", chatID),
			slog.Int("chunks", len(chunks)))
	}

	for _, chunk := range chunks {
		if err := n.sendChunk(ctx, chatID, chunk); err != nil {
			n.collector.RecordTelegramSend(false)
			return fmt.Errorf("Telegramメッセージの送信に失敗しました: %w", err)
		}
	}
	n.collector.RecordTelegramSend(true)
	return nil
}

// sendChunk は1チャンクを再試行付きで送信する。
func (n *Notifier) sendChunk(ctx context.Context, chatID int64, text string) error {
	op := func() error {
		m := tgbotapi.NewMessage(chatID, text)
		m.ParseMode = tgbotapi.ModeHTML
		m.DisableWebPagePreview = true
		if _, err := n.bot.Send(m); err != nil {
			return classifySendError(err)
		}
		return nil
	}
	onRetry := func(err error, delay time.Duration, attempt int) {
		slog.Warn("Telegram送信を再試行します",
			slog.Int64("chat_id", chatID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}
	return ssau.Do(ctx, n.policy, op, ssau.IsRetryable, onRetry)
}

// classifySendError は送信エラーを再試行可否で分類する。
// レート制限とサーバーエラーは再試行可能、その他のAPIエラーは即時失敗。
// APIエラー以外（ネットワーク障害など）は再試行可能として扱う。
func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &ssau.RetryableError{Err: err}
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &ssau.RetryableError{
			Err:        err,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
		}
	case apiErr.Code >= http.StatusInternalServerError:
		return &ssau.RetryableError{Err: err}
	default:
		return err
	}
}
