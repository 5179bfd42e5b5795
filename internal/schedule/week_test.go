package schedule

import (
	"testing"
	"time"
)

var yearStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

// TestWeekNumber_StartDate は学年開始日が第1週になることをテストする。
func TestWeekNumber_StartDate(t *testing.T) {
	c := NewWeekCalculator(yearStart)
	if got := c.WeekNumber(yearStart); got != 1 {
		t.Errorf("WeekNumber(開始日) = %d, want 1", got)
	}
}

// TestWeekNumber_EndOfFirstWeek は開始6日後がまだ第1週であることをテストする。
func TestWeekNumber_EndOfFirstWeek(t *testing.T) {
	c := NewWeekCalculator(yearStart)
	if got := c.WeekNumber(yearStart.AddDate(0, 0, 6)); got != 1 {
		t.Errorf("WeekNumber(開始+6日) = %d, want 1", got)
	}
}

// TestWeekNumber_SecondWeek は開始7日後が第2週になることをテストする。
func TestWeekNumber_SecondWeek(t *testing.T) {
	c := NewWeekCalculator(yearStart)
	if got := c.WeekNumber(time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)); got != 2 {
		t.Errorf("WeekNumber(2025-09-08) = %d, want 2", got)
	}
}

// TestWeekNumber_BeforeStartClampsToOne は開始日より前の日付が1に丸められることをテストする。
func TestWeekNumber_BeforeStartClampsToOne(t *testing.T) {
	c := NewWeekCalculator(yearStart)
	if got := c.WeekNumber(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)); got != 1 {
		t.Errorf("WeekNumber(2025-08-31) = %d, want 1", got)
	}
}

// TestWeekNumber_IgnoresTimeOfDay は時刻成分が週計算に影響しないことをテストする。
func TestWeekNumber_IgnoresTimeOfDay(t *testing.T) {
	c := NewWeekCalculator(yearStart)
	lateEvening := time.Date(2025, 9, 7, 23, 59, 0, 0, time.UTC)
	if got := c.WeekNumber(lateEvening); got != 1 {
		t.Errorf("WeekNumber(2025-09-07 23:59) = %d, want 1", got)
	}
}

// TestIsoWeekday はISO曜日番号の変換をテストする。
func TestIsoWeekday(t *testing.T) {
	monday := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := isoWeekday(monday); got != 1 {
		t.Errorf("isoWeekday(月曜) = %d, want 1", got)
	}
	sunday := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)
	if got := isoWeekday(sunday); got != 7 {
		t.Errorf("isoWeekday(日曜) = %d, want 7", got)
	}
}
