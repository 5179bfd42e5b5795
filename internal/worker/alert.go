// Package worker は定期実行のバックグラウンドジョブを提供する。
// 時間割の先読み同期ジョブとリマインダー送信ジョブを含む。
package worker

import (
	"context"
	"log/slog"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/notification"
)

// AdminAlerter はジョブ全体の失敗を管理者チャットへ通知する。
// chatIDが0の場合は何もしない。アラート送信自体の失敗はログに留める。
type AdminAlerter struct {
	notifier notification.Notifier
	chatID   int64
}

// NewAdminAlerter はAdminAlerterを生成する。
func NewAdminAlerter(notifier notification.Notifier, chatID int64) *AdminAlerter {
	return &AdminAlerter{notifier: notifier, chatID: chatID}
}

// Alert は管理者チャットへエラー通知を送信する。
func (a *AdminAlerter) Alert(ctx context.Context, title string, err error) {
	if a == nil || a.chatID == 0 {
		return
	}
	msg := model.ErrorMessage{Title: title, Details: []string{err.Error()}}
	if sendErr := a.notifier.Send(ctx, a.chatID, msg); sendErr != nil {
		slog.Error("管理者アラートの送信に失敗しました",
			slog.String("error", sendErr.Error()))
	}
}
