package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/schedbot/internal/logger"
	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/notification"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/user"
)

// NotifyJob は授業開始前リマインダーの送信を定期的にポーリングする。
// 送信判定と重複排除はnotification.Service側が行うため、
// ポーリング周期が重なっても二重送信にはならない。
type NotifyJob struct {
	runTx     user.TxRunner
	service   *notification.Service
	collector metrics.MetricsCollector
	alerter   *AdminAlerter
}

// NewNotifyJob はNotifyJobを生成する。
func NewNotifyJob(
	runTx user.TxRunner,
	service *notification.Service,
	collector metrics.MetricsCollector,
	alerter *AdminAlerter,
) *NotifyJob {
	return &NotifyJob{
		runTx:     runTx,
		service:   service,
		collector: collector,
		alerter:   alerter,
	}
}

// Start は指定間隔でジョブを起動する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *NotifyJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("リマインダージョブを開始しました", slog.Duration("interval", interval))

	j.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("リマインダージョブを停止しました")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

func (j *NotifyJob) runCycle(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.collector.RecordWorkerError("notification")
		slog.Error("リマインダージョブが失敗しました", slog.String("error", err.Error()))
		j.alerter.Alert(ctx, "Ошибка воркера уведомлений", err)
	}
}

// RunOnce は通知有効ユーザーを1巡し、送信対象のリマインダーを処理する。
// 資格情報またはプロフィールのないユーザーは対象外。
// 1ユーザーの失敗は記録して次のユーザーへ進む。
func (j *NotifyJob) RunOnce(ctx context.Context) error {
	var users []*model.User
	err := j.runTx(ctx, func(uow *repository.UnitOfWork) error {
		var listErr error
		users, listErr = uow.Users.ListEnabled(ctx)
		return listErr
	})
	if err != nil {
		return fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	for _, u := range users {
		if !u.HasCredentials() || !u.HasProfile() {
			continue
		}

		uctx := logger.WithRequestID(ctx, fmt.Sprintf("worker-notify-%d", u.Telegram.ChatID))
		err := j.runTx(uctx, func(uow *repository.UnitOfWork) error {
			_, processErr := j.service.ProcessUser(uctx, uow, u)
			return processErr
		})
		if err != nil {
			slog.Error("ユーザーのリマインダー処理に失敗しました",
				slog.Int64("chat_id", u.Telegram.ChatID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
