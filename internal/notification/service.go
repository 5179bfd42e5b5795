package notification

import (
	"context"
	"log/slog"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
)

// Notifier はリマインダー送信のインターフェース。
// テスト時にモックに差し替え可能。
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg model.Message) error
}

// Service はリマインダーの収集・送信・記録をまとめて行う。
type Service struct {
	planner   *Planner
	notifier  Notifier
	clock     clock.Clock
	collector metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(planner *Planner, notifier Notifier, clk clock.Clock, collector metrics.MetricsCollector) *Service {
	return &Service{
		planner:   planner,
		notifier:  notifier,
		clock:     clk,
		collector: collector,
	}
}

// ProcessUser は1ユーザー分のリマインダーを処理し、送信件数を返す。
// 1件の送信失敗は記録せずスキップし、残りの送信は続行する。
// 失敗した通知は窓が閉じるまで次の周期で再試行される。
func (s *Service) ProcessUser(ctx context.Context, uow *repository.UnitOfWork, user *model.User) (int, error) {
	now := s.clock.Now()
	due, err := s.planner.CollectDue(ctx, uow, user, now)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent := 0
	for _, n := range due {
		msg := model.NotificationMessage{
			Lesson:      n.Lesson,
			LessonStart: n.LessonStart,
		}
		if err := s.notifier.Send(ctx, n.User.Telegram.ChatID, msg); err != nil {
			s.collector.RecordNotificationSent(false)
			slog.Error("リマインダーの送信に失敗しました",
				slog.Int64("chat_id", n.User.Telegram.ChatID),
				slog.Int64("lesson_id", n.Lesson.ID),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.planner.MarkSent(ctx, uow, n, now); err != nil {
			return sent, err
		}
		s.collector.RecordNotificationSent(true)
		sent++
	}

	slog.Info("リマインダーを送信しました",
		slog.Int64("chat_id", user.Telegram.ChatID),
		slog.Int("count", sent))
	return sent, nil
}
