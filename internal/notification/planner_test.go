package notification

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
)

// mockCacheRepo は時間割キャッシュリポジトリのモック。
type mockCacheRepo struct {
	findFn func(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error)
}

func (m *mockCacheRepo) Find(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
	return m.findFn(ctx, userID, weekNumber)
}

func (m *mockCacheRepo) Upsert(ctx context.Context, cache *model.ScheduleCache) error {
	return nil
}

// mockLogRepo は送信済みログリポジトリのモック。
type mockLogRepo struct {
	wasSentFn  func(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error)
	markSentFn func(ctx context.Context, userID, lessonID int64, lessonDate, sentAt time.Time) error
}

func (m *mockLogRepo) WasSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error) {
	if m.wasSentFn == nil {
		return false, nil
	}
	return m.wasSentFn(ctx, userID, lessonID, lessonDate)
}

func (m *mockLogRepo) MarkSent(ctx context.Context, userID, lessonID int64, lessonDate, sentAt time.Time) error {
	if m.markSentFn == nil {
		return nil
	}
	return m.markSentFn(ctx, userID, lessonID, lessonDate, sentAt)
}

// 2025-09-01 は学年第1週の月曜日。
var yearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

// plannerTestUser はプロフィール同期済みのテストユーザーを返す。
func plannerTestUser() *model.User {
	return &model.User{
		ID:       42,
		Telegram: model.TelegramIdentity{ChatID: 1000, NotifyEnabled: true},
		Profile: &model.PortalProfile{
			GroupID:           555,
			GroupName:         "6101",
			YearID:            10,
			AcademicYearStart: yearStart,
			Subgroup:          model.SubgroupAll,
			UserType:          "student",
		},
	}
}

// lessonAt は指定の曜日・週・開始時刻の授業を返す。
func lessonAt(t *testing.T, id int64, weekday int, weeks []int, start, end string) model.Lesson {
	t.Helper()
	st, err := model.ParseDayTime(start)
	if err != nil {
		t.Fatal(err)
	}
	en, err := model.ParseDayTime(end)
	if err != nil {
		t.Fatal(err)
	}
	lt, err := model.NewLessonTime(st, en)
	if err != nil {
		t.Fatal(err)
	}
	return model.Lesson{ID: id, Subject: "テスト", Weekday: weekday, WeekNumbers: weeks, Time: lt}
}

// uowWith はモックリポジトリを束ねたUnitOfWorkを返す。
func uowWith(cache *mockCacheRepo, log *mockLogRepo) *repository.UnitOfWork {
	return &repository.UnitOfWork{
		ScheduleCache:   cache,
		NotificationLog: log,
	}
}

// cacheWith は月曜朝09:50開始の授業1つを含むキャッシュを返すモック。
func cacheWith(lessons ...model.Lesson) *mockCacheRepo {
	return &mockCacheRepo{
		findFn: func(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
			return &model.ScheduleCache{UserID: userID, WeekNumber: weekNumber, Lessons: lessons}, nil
		},
	}
}

// TestCollectDue_InsideWindow はリード窓の内側でリマインダーが対象になることをテストする。
// 09:50開始・リード15分のとき、09:44は窓 [09:35, 09:50) の内側。
func TestCollectDue_InsideWindow(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 9, 44, 0, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("len(due) = %d, want 1", len(due))
	}
	wantStart := time.Date(2025, 9, 1, 9, 50, 0, 0, time.UTC)
	if !due[0].LessonStart.Equal(wantStart) {
		t.Errorf("LessonStart = %v, want %v", due[0].LessonStart, wantStart)
	}
}

// TestCollectDue_BeforeWindow は窓より前の時刻で対象外になることをテストする。
func TestCollectDue_BeforeWindow(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 9, 34, 59, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

// TestCollectDue_AtLessonStartExcluded は開始時刻ちょうどで対象外になることをテストする。
// 窓は開始時刻を含まない半開区間。
func TestCollectDue_AtLessonStartExcluded(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 9, 50, 0, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

// TestCollectDue_AtWindowOpenIncluded は窓の開始時刻ちょうどで対象になることをテストする。
func TestCollectDue_AtWindowOpenIncluded(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 9, 35, 0, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Errorf("len(due) = %d, want 1", len(due))
	}
}

// TestCollectDue_AlreadySentExcluded は送信済みの授業が除外されることをテストする。
func TestCollectDue_AlreadySentExcluded(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	log := &mockLogRepo{
		wasSentFn: func(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error) {
			return true, nil
		},
	}
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), log)
	now := time.Date(2025, 9, 1, 9, 44, 0, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

// TestCollectDue_NoProfileReturnsEmpty はプロフィール未同期のユーザーが対象外であることをテストする。
func TestCollectDue_NoProfileReturnsEmpty(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	user := plannerTestUser()
	user.Profile = nil

	due, err := p.CollectDue(context.Background(), nil, user, time.Now())
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if due != nil {
		t.Errorf("due = %v, want nil", due)
	}
}

// TestCollectDue_NoCacheReturnsEmpty はキャッシュ欠損時に空を返すことをテストする。
func TestCollectDue_NoCacheReturnsEmpty(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	cache := &mockCacheRepo{
		findFn: func(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
			return nil, nil
		},
	}
	uow := uowWith(cache, &mockLogRepo{})

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

// TestCollectDue_LocalTimezoneWindow はローカルタイムゾーンで窓が判定されることをテストする。
// UTC+4のローカル09:44は、UTCの05:44に相当する。
func TestCollectDue_LocalTimezoneWindow(t *testing.T) {
	loc := time.FixedZone("UTC+4", 4*3600)
	p := NewPlanner(15*time.Minute, loc)
	uow := uowWith(cacheWith(lessonAt(t, 1, 1, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 5, 44, 0, 0, time.UTC)

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("len(due) = %d, want 1", len(due))
	}
	if due[0].LessonStart.Hour() != 9 {
		t.Errorf("LessonStart.Hour = %d, want 9 (ローカル時刻)", due[0].LessonStart.Hour())
	}
}

// TestCollectDue_OtherWeekdayExcluded は他の曜日の授業が対象外であることをテストする。
func TestCollectDue_OtherWeekdayExcluded(t *testing.T) {
	p := NewPlanner(15*time.Minute, time.UTC)
	uow := uowWith(cacheWith(lessonAt(t, 1, 2, []int{1}, "09:50", "11:25")), &mockLogRepo{})
	now := time.Date(2025, 9, 1, 9, 44, 0, 0, time.UTC) // 月曜

	due, err := p.CollectDue(context.Background(), uow, plannerTestUser(), now)
	if err != nil {
		t.Fatalf("CollectDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}
