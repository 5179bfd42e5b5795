// Package telegram はTelegram Bot APIを通じたメッセージの整形と送信を提供する。
package telegram

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/schedbot/internal/model"
)

// notificationDefaultTitle はタイトル未指定のリマインダーに使う見出し。
const notificationDefaultTitle = "Напоминание"

// Renderer はドメインメッセージをTelegramのHTMLパースモード文字列に変換する。
// ポータル由来のテキスト（科目名・教員名など）はサニタイズしてから埋め込む。
type Renderer struct {
	sanitizer *bluemonday.Policy
}

// NewRenderer はRendererを生成する。
func NewRenderer() *Renderer {
	return &Renderer{sanitizer: bluemonday.StrictPolicy()}
}

// Render はメッセージ種別ごとのHTML文字列を返す。
// 未知の種別はエラーを返す。
func (r *Renderer) Render(msg model.Message) (string, error) {
	switch m := msg.(type) {
	case model.InfoMessage:
		return r.renderTitled(m.Title, m.Lines), nil
	case model.ErrorMessage:
		return r.renderTitled(m.Title, m.Details), nil
	case model.ScheduleMessage:
		return r.renderSchedule(m), nil
	case model.NotificationMessage:
		return r.renderNotification(m), nil
	default:
		return "", fmt.Errorf("未対応のメッセージ型です: %T", msg)
	}
}

// renderTitled は太字タイトルと箇条書き本文のメッセージを組み立てる。
func (r *Renderer) renderTitled(title string, lines []string) string {
	var b strings.Builder
	b.WriteString("<b>" + r.clean(title) + "</b>")
	for _, line := range lines {
		b.WriteString("\n- " + r.clean(line))
	}
	return b.String()
}

func (r *Renderer) renderSchedule(m model.ScheduleMessage) string {
	var b strings.Builder
	b.WriteString("<b>" + r.clean(m.Title) + "</b>\n")
	b.WriteString("Дата: <code>" + m.Date.Format("2006-01-02") + "</code>")

	if len(m.Lessons) == 0 {
		b.WriteString("\n\nЗанятий нет.")
		return b.String()
	}

	lessons := make([]model.Lesson, len(m.Lessons))
	copy(lessons, m.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Time.Start.Before(lessons[j].Time.Start)
	})
	for _, lesson := range lessons {
		b.WriteString("\n\n" + r.lessonCard(lesson))
	}
	return b.String()
}

func (r *Renderer) renderNotification(m model.NotificationMessage) string {
	title := m.Title
	if title == "" {
		title = notificationDefaultTitle
	}

	var b strings.Builder
	b.WriteString("<b>" + r.clean(title) + "</b>\n")
	b.WriteString("Начало: <code>" + m.LessonStart.Format("2006-01-02 15:04") + "</code>")
	b.WriteString("\n\n" + r.lessonCard(m.Lesson))
	return b.String()
}

// lessonCard は1授業分のカードを組み立てる。
// タグは行をまたがないため、改行位置での分割はタグを壊さない。
func (r *Renderer) lessonCard(l model.Lesson) string {
	teacher := l.Teacher
	if teacher == "" {
		teacher = "Преподаватель не указан"
	}
	mode := "очно"
	if l.IsOnline {
		mode = "онлайн"
	}

	var b strings.Builder
	b.WriteString("<b>" + r.clean(l.Subject) + "</b> (<i>" + r.clean(l.Type) + "</i>)")
	b.WriteString("\n- Время: <code>" + l.Time.FormatRange() + "</code>")
	b.WriteString("\n- Преподаватель: " + r.clean(teacher))
	b.WriteString("\n- Формат: " + mode)
	if l.ConferenceURL != "" {
		b.WriteString("\n- Ссылка: <a href=\"" + html.EscapeString(l.ConferenceURL) + "\">Открыть конференцию</a>")
	}
	return b.String()
}

// clean はポータル由来のテキストからタグを除去し、HTML安全な形にする。
// bluemondayの出力はエスケープ済みのためそのまま埋め込める。
func (r *Renderer) clean(s string) string {
	return strings.TrimSpace(r.sanitizer.Sanitize(s))
}
