package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/ssau"
)

// mockBot はBotAPIのモック。
type mockBot struct {
	sendFn func(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return m.sendFn(c)
}

// fastPolicy は待機をほぼ省いたテスト用の再試行設定を返す。
func fastPolicy() ssau.RetryPolicy {
	return ssau.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// TestNotifierSend_DeliversRenderedMessage はレンダリング済みHTMLが送信されることをテストする。
func TestNotifierSend_DeliversRenderedMessage(t *testing.T) {
	var got tgbotapi.MessageConfig
	bot := &mockBot{
		sendFn: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			got = c.(tgbotapi.MessageConfig)
			return tgbotapi.Message{}, nil
		},
	}
	n := NewNotifier(bot, NewRenderer(), fastPolicy(), metrics.Noop{})

	err := n.Send(context.Background(), 1000, model.InfoMessage{Title: "Готово", Lines: []string{"ок"}})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.ChatID != 1000 {
		t.Errorf("ChatID = %d, want 1000", got.ChatID)
	}
	if got.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("ParseMode = %q, want HTML", got.ParseMode)
	}
	if got.Text != "<b>Готово</b>\n- ок" {
		t.Errorf("Text = %q", got.Text)
	}
}

// TestNotifierSend_SplitsLongMessage は上限超過のメッセージが複数回に分けて送信されることをテストする。
func TestNotifierSend_SplitsLongMessage(t *testing.T) {
	var sent []string
	bot := &mockBot{
		sendFn: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			sent = append(sent, c.(tgbotapi.MessageConfig).Text)
			return tgbotapi.Message{}, nil
		},
	}
	n := NewNotifier(bot, NewRenderer(), fastPolicy(), metrics.Noop{})

	lines := make([]string, 600)
	for i := range lines {
		lines[i] = strings.Repeat("я", 10)
	}
	err := n.Send(context.Background(), 1000, model.InfoMessage{Title: "Список", Lines: lines})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(sent) < 2 {
		t.Fatalf("送信回数 = %d, want >= 2", len(sent))
	}
	for _, chunk := range sent {
		if len([]rune(chunk)) > MessageLimit {
			t.Errorf("チャンクが上限超過: %d文字", len([]rune(chunk)))
		}
	}
}

// TestNotifierSend_RetriesOnNetworkError はネットワーク障害が再試行されることをテストする。
func TestNotifierSend_RetriesOnNetworkError(t *testing.T) {
	calls := 0
	bot := &mockBot{
		sendFn: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			calls++
			if calls == 1 {
				return tgbotapi.Message{}, errors.New("connection reset")
			}
			return tgbotapi.Message{}, nil
		},
	}
	n := NewNotifier(bot, NewRenderer(), fastPolicy(), metrics.Noop{})

	err := n.Send(context.Background(), 1000, model.InfoMessage{Title: "Готово"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("送信試行 = %d, want 2", calls)
	}
}

// TestNotifierSend_RetriesOnRateLimit はレート制限が再試行されることをテストする。
func TestNotifierSend_RetriesOnRateLimit(t *testing.T) {
	calls := 0
	bot := &mockBot{
		sendFn: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			calls++
			if calls == 1 {
				return tgbotapi.Message{}, &tgbotapi.Error{
					Code:               http.StatusTooManyRequests,
					Message:            "Too Many Requests",
					ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 0},
				}
			}
			return tgbotapi.Message{}, nil
		},
	}
	n := NewNotifier(bot, NewRenderer(), fastPolicy(), metrics.Noop{})

	err := n.Send(context.Background(), 1000, model.InfoMessage{Title: "Готово"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("送信試行 = %d, want 2", calls)
	}
}

// TestNotifierSend_ClientErrorFailsFast はクライアントエラーが再試行されないことをテストする。
func TestNotifierSend_ClientErrorFailsFast(t *testing.T) {
	calls := 0
	bot := &mockBot{
		sendFn: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			calls++
			return tgbotapi.Message{}, &tgbotapi.Error{Code: http.StatusForbidden, Message: "bot was blocked"}
		},
	}
	n := NewNotifier(bot, NewRenderer(), fastPolicy(), metrics.Noop{})

	err := n.Send(context.Background(), 1000, model.InfoMessage{Title: "Готово"})
	if err == nil {
		t.Fatal("Send() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("送信試行 = %d, want 1", calls)
	}
}

// TestClassifySendError_RetryAfterPropagates はレート制限の待機秒数が伝播することをテストする。
func TestClassifySendError_RetryAfterPropagates(t *testing.T) {
	err := classifySendError(&tgbotapi.Error{
		Code:               http.StatusTooManyRequests,
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	})
	var re *ssau.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("RetryableErrorでない: %v", err)
	}
	if re.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", re.RetryAfter)
	}
}
