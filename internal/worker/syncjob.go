package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/logger"
	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/schedule"
	"github.com/hitoshi/schedbot/internal/user"
)

// SyncJob は通知有効ユーザーの時間割キャッシュを定期的に先読みする。
// キャッシュが新鮮なうちは何もしないため、実行間隔より短い周期で
// 回しても安全。
type SyncJob struct {
	runTx     user.TxRunner
	users     *user.Service
	sync      *schedule.SyncService
	clock     clock.Clock
	location  *time.Location
	maxAge    time.Duration
	collector metrics.MetricsCollector
	alerter   *AdminAlerter
}

// NewSyncJob はSyncJobを生成する。
func NewSyncJob(
	runTx user.TxRunner,
	users *user.Service,
	sync *schedule.SyncService,
	clk clock.Clock,
	location *time.Location,
	maxAge time.Duration,
	collector metrics.MetricsCollector,
	alerter *AdminAlerter,
) *SyncJob {
	return &SyncJob{
		runTx:     runTx,
		users:     users,
		sync:      sync,
		clock:     clk,
		location:  location,
		maxAge:    maxAge,
		collector: collector,
		alerter:   alerter,
	}
}

// Start は指定間隔でジョブを起動する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *SyncJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("時間割同期ジョブを開始しました", slog.Duration("interval", interval))

	j.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("時間割同期ジョブを停止しました")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle はRunOnceを実行し、ジョブ全体の失敗を記録・通報する。
func (j *SyncJob) runCycle(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.collector.RecordWorkerError("schedule_sync")
		slog.Error("時間割同期ジョブが失敗しました", slog.String("error", err.Error()))
		j.alerter.Alert(ctx, "Ошибка воркера синка", err)
	}
}

// RunOnce は通知有効ユーザーを1巡し、各ユーザーの時間割を同期する。
// 1ユーザーの失敗は記録して次のユーザーへ進む。
func (j *SyncJob) RunOnce(ctx context.Context) error {
	start := time.Now()

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
		uctx := logger.WithRequestID(ctx, fmt.Sprintf("worker-sync-%d", u.Telegram.ChatID))
		synced, err := j.syncUser(uctx, u)
		if err != nil {
			j.collector.RecordSyncResult(false)
			slog.Error("ユーザーの時間割同期に失敗しました",
				slog.Int64("chat_id", u.Telegram.ChatID),
				slog.String("error", err.Error()))
			continue
		}
		if synced {
			j.collector.RecordSyncResult(true)
		}
	}

	slog.Info("時間割同期サイクルが完了しました",
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())))
	return nil
}

// syncUser は1ユーザー分の同期を行う。資格情報のないユーザーは飛ばす。
// プロフィール未同期の場合はこの場で取得を試みる。
// 明日が別の学年週にかかる場合は翌週分も先読みする。
func (j *SyncJob) syncUser(ctx context.Context, u *model.User) (bool, error) {
	if !u.HasCredentials() {
		return false, nil
	}
	if !u.HasProfile() {
		var err error
		u, err = j.users.SyncProfile(ctx, u)
		if err != nil {
			return false, err
		}
	}

	nowLocal := j.clock.Now().In(j.location)
	tomorrow := nowLocal.AddDate(0, 0, 1)
	calc := schedule.NewWeekCalculator(u.Profile.AcademicYearStart)

	err := j.runTx(ctx, func(uow *repository.UnitOfWork) error {
		if _, err := j.sync.SyncIfStale(ctx, uow, u, nowLocal, j.maxAge); err != nil {
			return err
		}
		if calc.WeekNumber(tomorrow) != calc.WeekNumber(nowLocal) {
			if _, err := j.sync.SyncIfStale(ctx, uow, u, tomorrow, j.maxAge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
