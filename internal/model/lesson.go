// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayTime はタイムゾーンを持たない時刻（時・分）を表す。
// 授業の開始・終了時刻として使用する。
type DayTime struct {
	Hour   int
	Minute int
}

// ParseDayTime は "15:04" または "15:04:05" 形式の文字列をDayTimeに変換する。
// 秒は切り捨てる。
func ParseDayTime(s string) (DayTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DayTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return DayTime{}, fmt.Errorf("時刻の形式が不正です: %q", s)
}

// String は "15:04" 形式の文字列を返す。
func (d DayTime) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// Minutes は0時からの経過分数を返す。比較に使用する。
func (d DayTime) Minutes() int {
	return d.Hour*60 + d.Minute
}

// Before はdがotherより前かどうかを返す。
func (d DayTime) Before(other DayTime) bool {
	return d.Minutes() < other.Minutes()
}

// At は指定日付・ロケーションにおける時刻をtime.Timeとして返す。
func (d DayTime) At(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), d.Hour, d.Minute, 0, 0, loc)
}

// MarshalJSON は "15:04" 形式のJSON文字列として出力する。
func (d DayTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON は "15:04" または "15:04:05" 形式のJSON文字列を読み取る。
func (d *DayTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDayTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LessonTime は授業の開始・終了時刻を表す。
// 不変条件: End は Start より後でなければならない。
type LessonTime struct {
	Start DayTime `json:"start"`
	End   DayTime `json:"end"`
}

// NewLessonTime はLessonTimeを生成する。End <= Start の場合はエラーを返す。
func NewLessonTime(start, end DayTime) (LessonTime, error) {
	if !start.Before(end) {
		return LessonTime{}, fmt.Errorf("授業の終了時刻は開始時刻より後でなければなりません: %s-%s", start, end)
	}
	return LessonTime{Start: start, End: end}, nil
}

// FormatRange は "08:00-09:35" 形式の文字列を返す。
func (t LessonTime) FormatRange() string {
	return t.Start.String() + "-" + t.End.String()
}

// Lesson は時間割上の1つの授業を表すイミュータブルな値。
// Subgroup がnilの場合は全サブグループ対象を意味する。
type Lesson struct {
	ID            int64      `json:"id"`
	Type          string     `json:"type"`
	Subject       string     `json:"subject"`
	Teacher       string     `json:"teacher,omitempty"`
	Weekday       int        `json:"weekday"` // ISO曜日（1=月〜7=日）
	WeekNumbers   []int      `json:"week_numbers"`
	Time          LessonTime `json:"time"`
	IsOnline      bool       `json:"is_online"`
	ConferenceURL string     `json:"conference_url,omitempty"`
	Subgroup      *int       `json:"subgroup,omitempty"`
}

// OccursInWeek は授業が指定の学年週に開講されるかどうかを返す。
func (l *Lesson) OccursInWeek(weekNumber int) bool {
	for _, w := range l.WeekNumbers {
		if w == weekNumber {
			return true
		}
	}
	return false
}

// Subgroup はユーザーのサブグループ選択を表す。
// SubgroupAll はワイルドカードで、どのサブグループ指定の授業にもマッチする。
type Subgroup int

const (
	// SubgroupAll は全サブグループの授業を対象とする。
	SubgroupAll Subgroup = 0
	// SubgroupOne は第1サブグループ。
	SubgroupOne Subgroup = 1
	// SubgroupTwo は第2サブグループ。
	SubgroupTwo Subgroup = 2
)

// ParseSubgroup は数値をSubgroupに変換する。0〜2以外はエラーを返す。
func ParseSubgroup(v int) (Subgroup, error) {
	if v < 0 || v > 2 {
		return 0, fmt.Errorf("サブグループの値が不正です: %d", v)
	}
	return Subgroup(v), nil
}

// Matches はユーザーのサブグループ選択が授業のサブグループ指定にマッチするかを返す。
// 授業側がnil（全サブグループ対象）、またはユーザー側がSubgroupAllの場合は常にマッチする。
func (s Subgroup) Matches(lessonSubgroup *int) bool {
	if lessonSubgroup == nil {
		return true
	}
	if s == SubgroupAll {
		return true
	}
	return int(s) == *lessonSubgroup
}

// IsAll はワイルドカード選択かどうかを返す。
func (s Subgroup) IsAll() bool {
	return s == SubgroupAll
}
