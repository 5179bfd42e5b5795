package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/notification"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/schedule"
	"github.com/hitoshi/schedbot/internal/user"
)

// spyCollector は記録されたメトリクスを数えるMetricsCollector。
type spyCollector struct {
	mu           sync.Mutex
	syncOK       int
	syncFail     int
	notifyOK     int
	notifyFail   int
	workerErrors []string
}

func (s *spyCollector) RecordPortalRequest(string, int)           {}
func (s *spyCollector) RecordPortalLatency(string, time.Duration) {}
func (s *spyCollector) RecordLoginAttempt(bool)                   {}
func (s *spyCollector) RecordTelegramSend(bool)                   {}

func (s *spyCollector) RecordSyncResult(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.syncOK++
	} else {
		s.syncFail++
	}
}

func (s *spyCollector) RecordNotificationSent(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.notifyOK++
	} else {
		s.notifyFail++
	}
}

func (s *spyCollector) RecordWorkerError(loop string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workerErrors = append(s.workerErrors, loop)
}

// mockUsers はUserRepositoryのモック。
type mockUsers struct {
	listEnabledFn func(ctx context.Context) ([]*model.User, error)
	upsertFn      func(ctx context.Context, u *model.User) (*model.User, error)
}

func (m *mockUsers) FindByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return nil, nil
}

func (m *mockUsers) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	if m.upsertFn == nil {
		return u, nil
	}
	return m.upsertFn(ctx, u)
}

func (m *mockUsers) ListEnabled(ctx context.Context) ([]*model.User, error) {
	return m.listEnabledFn(ctx)
}

// mockCaches はScheduleCacheRepositoryのモック。
type mockCaches struct {
	findFn   func(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error)
	upsertFn func(ctx context.Context, cache *model.ScheduleCache) error
}

func (m *mockCaches) Find(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
	if m.findFn == nil {
		return nil, nil
	}
	return m.findFn(ctx, userID, weekNumber)
}

func (m *mockCaches) Upsert(ctx context.Context, cache *model.ScheduleCache) error {
	if m.upsertFn == nil {
		return nil
	}
	return m.upsertFn(ctx, cache)
}

// mockLogs はNotificationLogRepositoryのモック。
type mockLogs struct{}

func (mockLogs) WasSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error) {
	return false, nil
}

func (mockLogs) MarkSent(ctx context.Context, userID, lessonID int64, lessonDate, sentAt time.Time) error {
	return nil
}

// mockWeekFetcher はWeekScheduleFetcherのモック。
type mockWeekFetcher struct {
	fetchFn func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error)
}

func (m *mockWeekFetcher) FetchWeekSchedule(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
	return m.fetchFn(ctx, u, weekNumber)
}

// mockProfileFetcher はProfileFetcherのモック。
type mockProfileFetcher struct {
	fetchFn func(ctx context.Context, login, password string) (*model.PortalProfile, error)
}

func (m *mockProfileFetcher) FetchProfile(ctx context.Context, login, password string) (*model.PortalProfile, error) {
	return m.fetchFn(ctx, login, password)
}

// mockNotifier はNotifierのモック。
type mockNotifier struct {
	sendFn func(ctx context.Context, chatID int64, msg model.Message) error
}

func (m *mockNotifier) Send(ctx context.Context, chatID int64, msg model.Message) error {
	if m.sendFn == nil {
		return nil
	}
	return m.sendFn(ctx, chatID, msg)
}

// 2025-09-01（月）が学年第1週の初日。
var workerYearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func workerUser(id int64, withProfile bool) *model.User {
	u := &model.User{
		ID:          id,
		Telegram:    model.TelegramIdentity{ChatID: 1000 + id, NotifyEnabled: true},
		Credentials: &model.PortalCredentials{Login: "login", Password: "pass"},
	}
	if withProfile {
		u.Profile = &model.PortalProfile{
			GroupID:           555,
			YearID:            10,
			AcademicYearStart: workerYearStart,
			Subgroup:          model.SubgroupAll,
			UserType:          "student",
		}
	}
	return u
}

func runnerFor(users *mockUsers, caches *mockCaches) user.TxRunner {
	return func(ctx context.Context, fn func(uow *repository.UnitOfWork) error) error {
		return fn(&repository.UnitOfWork{
			Users:           users,
			ScheduleCache:   caches,
			NotificationLog: mockLogs{},
		})
	}
}

// TestSyncJobRunOnce_SyncsUsers は有効ユーザーの時間割が同期されることをテストする。
func TestSyncJobRunOnce_SyncsUsers(t *testing.T) {
	now := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{workerUser(1, true), workerUser(2, true)}, nil
		},
	}
	var upserted []*model.ScheduleCache
	caches := &mockCaches{
		upsertFn: func(ctx context.Context, cache *model.ScheduleCache) error {
			upserted = append(upserted, cache)
			return nil
		},
	}
	fetcher := &mockWeekFetcher{
		fetchFn: func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
			return nil, nil
		},
	}
	runTx := runnerFor(users, caches)
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: now}

	j := NewSyncJob(runTx, user.NewService(runTx, nil), schedule.NewSyncService(fetcher, clk),
		clk, time.UTC, 12*time.Hour, collector, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(upserted) != 2 {
		t.Errorf("キャッシュ更新回数 = %d, want 2", len(upserted))
	}
	if collector.syncOK != 2 || collector.syncFail != 0 {
		t.Errorf("syncOK = %d, syncFail = %d", collector.syncOK, collector.syncFail)
	}
}

// TestSyncJobRunOnce_SkipsCredentialless は資格情報のないユーザーが飛ばされることをテストする。
func TestSyncJobRunOnce_SkipsCredentialless(t *testing.T) {
	u := workerUser(1, true)
	u.Credentials = nil
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{u}, nil
		},
	}
	fetched := false
	fetcher := &mockWeekFetcher{
		fetchFn: func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
			fetched = true
			return nil, nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: workerYearStart}

	j := NewSyncJob(runTx, user.NewService(runTx, nil), schedule.NewSyncService(fetcher, clk),
		clk, time.UTC, 12*time.Hour, collector, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if fetched {
		t.Error("資格情報のないユーザーがフェッチされた")
	}
	if collector.syncOK != 0 || collector.syncFail != 0 {
		t.Errorf("同期が記録された: ok=%d fail=%d", collector.syncOK, collector.syncFail)
	}
}

// TestSyncJobRunOnce_SyncsMissingProfile はプロフィール未同期のユーザーが
// その場で同期されることをテストする。
func TestSyncJobRunOnce_SyncsMissingProfile(t *testing.T) {
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{workerUser(1, false)}, nil
		},
	}
	profiles := &mockProfileFetcher{
		fetchFn: func(ctx context.Context, login, password string) (*model.PortalProfile, error) {
			return &model.PortalProfile{
				GroupID:           555,
				YearID:            10,
				AcademicYearStart: workerYearStart,
				Subgroup:          model.SubgroupAll,
				UserType:          "student",
			}, nil
		},
	}
	fetched := false
	fetcher := &mockWeekFetcher{
		fetchFn: func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
			fetched = true
			return nil, nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)}

	j := NewSyncJob(runTx, user.NewService(runTx, profiles), schedule.NewSyncService(fetcher, clk),
		clk, time.UTC, 12*time.Hour, collector, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if !fetched {
		t.Error("プロフィール同期後に時間割がフェッチされていない")
	}
	if collector.syncOK != 1 {
		t.Errorf("syncOK = %d, want 1", collector.syncOK)
	}
}

// TestSyncJobRunOnce_PrefetchesNextWeek は週境界の前日に翌週分も先読みすることをテストする。
func TestSyncJobRunOnce_PrefetchesNextWeek(t *testing.T) {
	// 2025-09-07は第1週の日曜。翌日は第2週の月曜。
	now := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{workerUser(1, true)}, nil
		},
	}
	var weeks []int
	fetcher := &mockWeekFetcher{
		fetchFn: func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
			weeks = append(weeks, weekNumber)
			return nil, nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	clk := clock.FixedClock{Time: now}

	j := NewSyncJob(runTx, user.NewService(runTx, nil), schedule.NewSyncService(fetcher, clk),
		clk, time.UTC, 12*time.Hour, &spyCollector{}, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(weeks) != 2 || weeks[0] != 1 || weeks[1] != 2 {
		t.Errorf("フェッチされた週 = %v, want [1 2]", weeks)
	}
}

// TestSyncJobRunOnce_UserFailureIsolated は1ユーザーの失敗が他に波及しないことをテストする。
func TestSyncJobRunOnce_UserFailureIsolated(t *testing.T) {
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{workerUser(1, true), workerUser(2, true)}, nil
		},
	}
	fetcher := &mockWeekFetcher{
		fetchFn: func(ctx context.Context, u *model.User, weekNumber int) ([]model.Lesson, error) {
			if u.ID == 1 {
				return nil, errors.New("ポータル障害")
			}
			return nil, nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)}

	j := NewSyncJob(runTx, user.NewService(runTx, nil), schedule.NewSyncService(fetcher, clk),
		clk, time.UTC, 12*time.Hour, collector, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if collector.syncOK != 1 || collector.syncFail != 1 {
		t.Errorf("syncOK = %d, syncFail = %d, want 1/1", collector.syncOK, collector.syncFail)
	}
}

// TestSyncJob_AlertsOnJobFailure はユーザー一覧の取得失敗で管理者に通報されることをテストする。
func TestSyncJob_AlertsOnJobFailure(t *testing.T) {
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return nil, errors.New("接続断")
		},
	}
	var alertChatID int64
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, chatID int64, msg model.Message) error {
			alertChatID = chatID
			if _, ok := msg.(model.ErrorMessage); !ok {
				t.Errorf("msg型 = %T, want ErrorMessage", msg)
			}
			return nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: workerYearStart}

	j := NewSyncJob(runTx, user.NewService(runTx, nil), schedule.NewSyncService(nil, clk),
		clk, time.UTC, 12*time.Hour, collector, NewAdminAlerter(notifier, 99))
	j.runCycle(context.Background())

	if alertChatID != 99 {
		t.Errorf("アラート送信先 = %d, want 99", alertChatID)
	}
	if len(collector.workerErrors) != 1 || collector.workerErrors[0] != "schedule_sync" {
		t.Errorf("workerErrors = %v", collector.workerErrors)
	}
}

// TestNotifyJobRunOnce_ProcessesUsers は対象ユーザーのリマインダーが処理されることをテストする。
func TestNotifyJobRunOnce_ProcessesUsers(t *testing.T) {
	// 月曜09:44、09:50開始の授業がリード15分の窓内にある。
	now := time.Date(2025, 9, 1, 9, 44, 0, 0, time.UTC)
	start, _ := model.ParseDayTime("09:50")
	end, _ := model.ParseDayTime("11:25")
	lesson := model.Lesson{
		ID: 1, Subject: "Математический анализ", Weekday: 1,
		WeekNumbers: []int{1}, Time: model.LessonTime{Start: start, End: end},
	}
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{workerUser(1, true)}, nil
		},
	}
	caches := &mockCaches{
		findFn: func(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
			return &model.ScheduleCache{UserID: userID, WeekNumber: weekNumber, Lessons: []model.Lesson{lesson}}, nil
		},
	}
	sent := 0
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, chatID int64, msg model.Message) error {
			sent++
			return nil
		},
	}
	runTx := runnerFor(users, caches)
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: now}
	service := notification.NewService(
		notification.NewPlanner(15*time.Minute, time.UTC), notifier, clk, collector)

	j := NewNotifyJob(runTx, service, collector, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if sent != 1 {
		t.Errorf("送信件数 = %d, want 1", sent)
	}
	if collector.notifyOK != 1 {
		t.Errorf("notifyOK = %d, want 1", collector.notifyOK)
	}
}

// TestNotifyJobRunOnce_SkipsUnprepared は資格情報やプロフィールのないユーザーが
// 対象外になることをテストする。
func TestNotifyJobRunOnce_SkipsUnprepared(t *testing.T) {
	credless := workerUser(1, true)
	credless.Credentials = nil
	profileless := workerUser(2, false)
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{credless, profileless}, nil
		},
	}
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, chatID int64, msg model.Message) error {
			t.Error("送信されるべきではない")
			return nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	clk := clock.FixedClock{Time: workerYearStart}
	service := notification.NewService(
		notification.NewPlanner(15*time.Minute, time.UTC), notifier, clk, &spyCollector{})

	j := NewNotifyJob(runTx, service, &spyCollector{}, nil)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
}

// TestNotifyJob_AlertsOnJobFailure はジョブ全体の失敗で管理者に通報されることをテストする。
func TestNotifyJob_AlertsOnJobFailure(t *testing.T) {
	users := &mockUsers{
		listEnabledFn: func(ctx context.Context) ([]*model.User, error) {
			return nil, errors.New("接続断")
		},
	}
	alerted := false
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, chatID int64, msg model.Message) error {
			alerted = true
			return nil
		},
	}
	runTx := runnerFor(users, &mockCaches{})
	collector := &spyCollector{}
	clk := clock.FixedClock{Time: workerYearStart}
	service := notification.NewService(
		notification.NewPlanner(15*time.Minute, time.UTC), notifier, clk, collector)

	j := NewNotifyJob(runTx, service, collector, NewAdminAlerter(notifier, 99))
	j.runCycle(context.Background())

	if !alerted {
		t.Error("管理者アラートが送信されていない")
	}
	if len(collector.workerErrors) != 1 || collector.workerErrors[0] != "notification" {
		t.Errorf("workerErrors = %v", collector.workerErrors)
	}
}
