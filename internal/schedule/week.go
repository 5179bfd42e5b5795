// Package schedule は時間割の同期・絞り込み・探索を提供する。
package schedule

import (
	"log/slog"
	"time"
)

// WeekCalculator は日付から学年週番号を計算する。
// 学年週は学年開始日を含む週を1とする連番。
type WeekCalculator struct {
	startDate time.Time
}

// NewWeekCalculator はWeekCalculatorを生成する。
// startDateは学年開始日（時刻成分は無視される）。
func NewWeekCalculator(startDate time.Time) *WeekCalculator {
	return &WeekCalculator{startDate: dateOnly(startDate)}
}

// WeekNumber は指定日の学年週番号を返す。
// 学年開始日より前の日付は警告を出して1を返す。
func (c *WeekCalculator) WeekNumber(targetDate time.Time) int {
	target := dateOnly(targetDate)
	deltaDays := int(target.Sub(c.startDate).Hours() / 24)
	if deltaDays < 0 {
		slog.Warn("対象日が学年開始日より前です",
			slog.Time("target", target),
			slog.Time("year_start", c.startDate))
		return 1
	}
	return deltaDays/7 + 1
}

// dateOnly は時刻成分を落としたUTCの日付を返す。
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// isoWeekday はISO 8601の曜日番号（1=月〜7=日）を返す。
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
