package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
)

// WeekScheduleFetcher は週の時間割取得のインターフェース。
// テスト時にモックに差し替え可能。
type WeekScheduleFetcher interface {
	FetchWeekSchedule(ctx context.Context, user *model.User, weekNumber int) ([]model.Lesson, error)
}

// SyncService はポータルからの時間割取得とキャッシュ更新を行う。
type SyncService struct {
	fetcher WeekScheduleFetcher
	clock   clock.Clock
}

// NewSyncService はSyncServiceを生成する。
func NewSyncService(fetcher WeekScheduleFetcher, clk clock.Clock) *SyncService {
	return &SyncService{fetcher: fetcher, clock: clk}
}

// SyncForUser は対象日の属する学年週の時間割を取得してキャッシュを置き換える。
func (s *SyncService) SyncForUser(ctx context.Context, uow *repository.UnitOfWork, user *model.User, targetDate time.Time) (*model.ScheduleCache, error) {
	if user.ID == 0 {
		return nil, fmt.Errorf("キャッシュの保存にはユーザーIDが必要です")
	}
	if !user.HasProfile() {
		return nil, model.NewProfileRequiredError()
	}

	weekNumber := NewWeekCalculator(user.Profile.AcademicYearStart).WeekNumber(targetDate)
	slog.Info("時間割を同期します",
		slog.Int64("chat_id", user.Telegram.ChatID),
		slog.Time("date", targetDate),
		slog.Int("week", weekNumber))

	lessons, err := s.fetcher.FetchWeekSchedule(ctx, user, weekNumber)
	if err != nil {
		return nil, err
	}

	cache := &model.ScheduleCache{
		UserID:     user.ID,
		WeekNumber: weekNumber,
		FetchedAt:  s.clock.Now(),
		Lessons:    lessons,
	}
	if err := uow.ScheduleCache.Upsert(ctx, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// SyncIfStale はキャッシュが存在し新鮮であればそれを返し、
// 欠損または古い場合のみポータルから再取得する。
func (s *SyncService) SyncIfStale(ctx context.Context, uow *repository.UnitOfWork, user *model.User, targetDate time.Time, maxAge time.Duration) (*model.ScheduleCache, error) {
	if user.ID == 0 {
		return nil, fmt.Errorf("キャッシュの保存にはユーザーIDが必要です")
	}
	if !user.HasProfile() {
		return nil, model.NewProfileRequiredError()
	}

	weekNumber := NewWeekCalculator(user.Profile.AcademicYearStart).WeekNumber(targetDate)
	cache, err := uow.ScheduleCache.Find(ctx, user.ID, weekNumber)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return s.SyncForUser(ctx, uow, user, targetDate)
	}

	if s.clock.Now().Sub(cache.FetchedAt.UTC()) < maxAge {
		return cache, nil
	}
	return s.SyncForUser(ctx, uow, user, targetDate)
}
