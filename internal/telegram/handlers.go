package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/schedule"
	"github.com/hitoshi/schedbot/internal/user"
)

func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := r.loadUser(ctx, msg); err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	r.sendInfo(ctx, msg.Chat.ID, "Добро пожаловать",
		"Введи /auth ЛОГИН ПАРОЛЬ, чтобы сохранить доступ.",
		"Команды: /help, /status, /schedule, /tomorrow, /next.")
}

func (r *Router) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	r.sendInfo(ctx, msg.Chat.ID, "Команды",
		"/start - регистрация",
		"/auth ЛОГИН ПАРОЛЬ - сохранить доступ",
		"/subgroup 1|2|all - выбрать подгруппу",
		"/notify on|off - уведомления",
		"/status - текущие настройки",
		"/schedule - расписание на сегодня",
		"/tomorrow - расписание на завтра",
		"/next - ближайшая пара",
		"/notify_test - тестовое уведомление",
		"/sync - принудительно обновить расписание")
}

func (r *Router) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	u, err := r.loadUser(ctx, msg)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}

	groupLabel, yearLabel, subgroupLabel, typeLabel := "не определена", "не определен", "не определена", "не определен"
	if u.HasProfile() {
		groupLabel = strconv.FormatInt(u.Profile.GroupID, 10)
		yearLabel = strconv.FormatInt(u.Profile.YearID, 10)
		subgroupLabel = subgroupLabelFor(u.Profile.Subgroup)
		typeLabel = u.Profile.UserType
	}
	creds := "нет"
	if u.HasCredentials() {
		creds = "есть"
	}
	notify := "выключены"
	if u.Telegram.NotifyEnabled {
		notify = "включены"
	}

	r.sendInfo(ctx, msg.Chat.ID, "Настройки",
		"Группа: "+groupLabel,
		"Год: "+yearLabel,
		"Подгруппа: "+subgroupLabel,
		"Тип: "+typeLabel,
		"Уведомления: "+notify,
		"Доступ: "+creds)
}

func (r *Router) handleAuth(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		r.sendInfo(ctx, msg.Chat.ID, "Использование", "/auth ЛОГИН ПАРОЛЬ")
		return
	}

	if _, err := r.loadUser(ctx, msg); err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	u, err := r.users.UpdateCredentials(ctx, msg.Chat.ID, args[0], args[1])
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}

	u, err = r.ensureProfile(ctx, u, true)
	if err != nil {
		r.sendError(ctx, msg.Chat.ID, "Профиль не обновлен",
			"Данные сохранены, но профиль (группа/год) не получен.")
		return
	}
	if !u.HasProfile() {
		r.sendError(ctx, msg.Chat.ID, "Профиль не получен",
			"Данные сохранены, но профиль (группа/год) не найден.")
		return
	}

	r.sendInfo(ctx, msg.Chat.ID, "Данные сохранены",
		fmt.Sprintf("Группа: %d", u.Profile.GroupID),
		fmt.Sprintf("Год: %d", u.Profile.YearID))
}

func (r *Router) handleSubgroup(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) == 0 {
		r.sendInfo(ctx, msg.Chat.ID, "Использование", "/subgroup 1|2|all")
		return
	}

	subgroup, err := parseSubgroupArg(args[0])
	if err != nil {
		r.sendError(ctx, msg.Chat.ID, "Неверное значение", "Подгруппа должна быть 1 или 2.")
		return
	}

	u, err := r.loadUser(ctx, msg)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	if !u.HasCredentials() {
		r.sendError(ctx, msg.Chat.ID, "Нет доступа",
			"Сначала укажи логин/пароль: /auth ЛОГИН ПАРОЛЬ")
		return
	}
	if _, err := r.ensureProfile(ctx, u, false); err != nil {
		r.sendError(ctx, msg.Chat.ID, "Профиль не получен", "Не удалось получить профиль.")
		return
	}

	if _, err := r.users.UpdateSettings(ctx, msg.Chat.ID, user.SettingsUpdate{Subgroup: &subgroup}); err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	r.sendInfo(ctx, msg.Chat.ID, "Подгруппа обновлена",
		"Текущая подгруппа: "+subgroupLabelFor(subgroup)+".")
}

func (r *Router) handleNotify(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
		r.sendInfo(ctx, msg.Chat.ID, "Использование", "/notify on|off")
		return
	}
	enabled := args[0] == "on"

	if _, err := r.loadUser(ctx, msg); err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	if _, err := r.users.UpdateSettings(ctx, msg.Chat.ID, user.SettingsUpdate{NotifyEnabled: &enabled}); err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}

	status := "Выключены."
	if enabled {
		status = "Включены."
	}
	r.sendInfo(ctx, msg.Chat.ID, "Уведомления", status)
}

// handleSchedule は今日（dayOffset=0）または明日（dayOffset=1）の時間割を返信する。
func (r *Router) handleSchedule(ctx context.Context, msg *tgbotapi.Message, dayOffset int, title string) {
	u, ok := r.authedUserWithProfile(ctx, msg)
	if !ok {
		return
	}

	nowLocal := r.nowLocal()
	targetDate := nowLocal
	if dayOffset != 0 {
		targetDate = midnight(nowLocal.AddDate(0, 0, dayOffset))
	}

	cache, err := r.syncCache(ctx, u, targetDate, false)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}

	week := schedule.NewWeekCalculator(u.Profile.AcademicYearStart).WeekNumber(targetDate)
	lessons := schedule.FilterForDate(cache.Lessons, targetDate, week, u.Profile.Subgroup)

	r.send(ctx, msg.Chat.ID, model.ScheduleMessage{
		Title:   title,
		Date:    targetDate,
		Lessons: lessons,
	})
}

func (r *Router) handleNext(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := r.authedUserWithProfile(ctx, msg)
	if !ok {
		return
	}

	next, err := r.findUpcoming(ctx, u)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	if next == nil {
		r.sendInfo(ctx, msg.Chat.ID, "Ближайшие занятия", "Занятий не найдено.")
		return
	}

	r.send(ctx, msg.Chat.ID, model.NotificationMessage{
		Title:       "Следующая пара",
		Lesson:      next.Lesson,
		LessonStart: next.StartAt,
	})
}

func (r *Router) handleNotifyTest(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := r.authedUserWithProfile(ctx, msg)
	if !ok {
		return
	}

	next, err := r.findUpcoming(ctx, u)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}
	if next == nil {
		r.sendInfo(ctx, msg.Chat.ID, "Тест уведомления", "Ближайших занятий не найдено.")
		return
	}

	r.send(ctx, msg.Chat.ID, model.NotificationMessage{
		Title:       "Тест уведомления",
		Lesson:      next.Lesson,
		LessonStart: next.StartAt,
	})
}

func (r *Router) handleSync(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := r.authedUserWithProfile(ctx, msg)
	if !ok {
		return
	}

	cache, err := r.syncCache(ctx, u, r.nowLocal(), true)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return
	}

	r.sendInfo(ctx, msg.Chat.ID, "Расписание обновлено",
		"Время: "+cache.FetchedAt.In(r.location).Format("2006-01-02 15:04"))
}

// authedUserWithProfile は資格情報とプロフィールが揃ったユーザーを返す。
// 揃っていない場合は案内を返信し、okにfalseを返す。
func (r *Router) authedUserWithProfile(ctx context.Context, msg *tgbotapi.Message) (*model.User, bool) {
	u, err := r.loadUser(ctx, msg)
	if err != nil {
		r.sendFailure(ctx, msg.Chat.ID, err)
		return nil, false
	}
	if !u.HasCredentials() {
		r.sendError(ctx, msg.Chat.ID, "Нет доступа",
			"Сначала укажи логин/пароль: /auth ЛОГИН ПАРОЛЬ")
		return nil, false
	}

	u, err = r.ensureProfile(ctx, u, false)
	if err != nil {
		r.sendError(ctx, msg.Chat.ID, "Профиль не получен",
			"Не удалось получить данные профиля (группа/год).")
		return nil, false
	}
	return u, true
}

// findUpcoming は今週で次の授業を探し、見つからなければ翌週の月曜から探し直す。
func (r *Router) findUpcoming(ctx context.Context, u *model.User) (*schedule.UpcomingLesson, error) {
	nowLocal := r.nowLocal()
	calc := schedule.NewWeekCalculator(u.Profile.AcademicYearStart)

	cache, err := r.syncCache(ctx, u, nowLocal, false)
	if err != nil {
		return nil, err
	}
	next := schedule.FindNext(cache.Lessons, nowLocal, calc.WeekNumber(nowLocal), u.Profile.Subgroup)
	if next != nil {
		return next, nil
	}

	// 今週に残りがない場合は翌週の月曜0時から走査し直す。
	daysUntilMonday := 8 - isoWeekday(nowLocal)
	nextWeekLocal := midnight(nowLocal.AddDate(0, 0, daysUntilMonday))
	cache, err = r.syncCache(ctx, u, nextWeekLocal, false)
	if err != nil {
		return nil, err
	}
	return schedule.FindNext(cache.Lessons, nextWeekLocal, calc.WeekNumber(nextWeekLocal), u.Profile.Subgroup), nil
}

// midnight は同じロケーションにおける日の開始時刻を返す。
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// isoWeekday はISO曜日（1=月〜7=日）を返す。
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// parseSubgroupArg はコマンド引数をサブグループ選択に変換する。
func parseSubgroupArg(arg string) (model.Subgroup, error) {
	if arg == "all" {
		return model.SubgroupAll, nil
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, err
	}
	return model.ParseSubgroup(v)
}

// subgroupLabelFor はサブグループ選択の表示文字列を返す。
func subgroupLabelFor(s model.Subgroup) string {
	if s.IsAll() {
		return "all"
	}
	return strconv.Itoa(int(s))
}
