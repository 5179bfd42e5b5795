// Package notification は授業開始前リマインダーの計画と送信を提供する。
package notification

import (
	"context"
	"time"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/schedule"
)

// LessonNotification は送信予定のリマインダー1件。
type LessonNotification struct {
	User        *model.User
	Lesson      model.Lesson
	LessonStart time.Time
}

// Planner は送信すべきリマインダーを収集する。
// 授業開始のリード時間前から開始時刻までの窓に現在時刻が入っており、
// かつ未送信のものだけが対象になる。
type Planner struct {
	lead     time.Duration
	location *time.Location
}

// NewPlanner はPlannerを生成する。
func NewPlanner(lead time.Duration, loc *time.Location) *Planner {
	return &Planner{lead: lead, location: loc}
}

// CollectDue は現在時刻に送信すべきリマインダーを返す。
// プロフィール未同期のユーザーは対象外として空を返す。
func (p *Planner) CollectDue(ctx context.Context, uow *repository.UnitOfWork, user *model.User, now time.Time) ([]LessonNotification, error) {
	if user.ID == 0 || !user.HasProfile() {
		return nil, nil
	}

	nowLocal := now.In(p.location)
	weekNumber := schedule.NewWeekCalculator(user.Profile.AcademicYearStart).WeekNumber(nowLocal)

	cache, err := uow.ScheduleCache.Find(ctx, user.ID, weekNumber)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, nil
	}

	today := localDate(nowLocal)
	lessons := schedule.FilterForDate(cache.Lessons, nowLocal, weekNumber, user.Profile.Subgroup)

	var due []LessonNotification
	for _, lesson := range lessons {
		lessonStart := lesson.Time.Start.At(nowLocal, p.location)
		notifyTime := lessonStart.Add(-p.lead)

		// 窓は [開始-リード, 開始)。開始後は送らない。
		if nowLocal.Before(notifyTime) || !nowLocal.Before(lessonStart) {
			continue
		}

		sent, err := uow.NotificationLog.WasSent(ctx, user.ID, lesson.ID, today)
		if err != nil {
			return nil, err
		}
		if sent {
			continue
		}

		due = append(due, LessonNotification{
			User:        user,
			Lesson:      lesson,
			LessonStart: lessonStart,
		})
	}
	return due, nil
}

// MarkSent は送信済み記録を残す。
func (p *Planner) MarkSent(ctx context.Context, uow *repository.UnitOfWork, n LessonNotification, sentAt time.Time) error {
	return uow.NotificationLog.MarkSent(ctx, n.User.ID, n.Lesson.ID, localDate(n.LessonStart), sentAt)
}

// localDate はローカル時刻の日付部分をUTCの日付として返す。
func localDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
