package ssau

import (
	"fmt"
	"time"
)

// ポータルAPIのレスポンスDTO。未知のフィールドは無視する。

type scheduleResponseDTO struct {
	Lessons []lessonDTO `json:"lessons"`
}

type lessonDTO struct {
	ID         int64          `json:"id"`
	Type       *nameDTO       `json:"type"`
	Discipline nameDTO        `json:"discipline"`
	Teachers   []namedPerson  `json:"teachers"`
	Weekday    weekdayDTO     `json:"weekday"`
	Weeks      []weekDTO      `json:"weeks"`
	Time       timeBlockDTO   `json:"time"`
	Conference *conferenceDTO `json:"conference"`
	Groups     []groupRefDTO  `json:"groups"`
}

type nameDTO struct {
	Name string `json:"name"`
}

type namedPerson struct {
	Name string `json:"name"`
}

type weekdayDTO struct {
	ID int `json:"id"`
}

type weekDTO struct {
	Week     int  `json:"week"`
	IsOnline bool `json:"isOnline"`
}

type timeBlockDTO struct {
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

type conferenceDTO struct {
	URL string `json:"url"`
}

type groupRefDTO struct {
	Subgroup *int `json:"subgroup"`
}

type groupDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type unifiedYearDTO struct {
	ID          int64  `json:"id"`
	Year        int    `json:"year"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Weeks       int    `json:"weeks"`
	IsCurrent   bool   `json:"isCurrent"`
	IsElongated bool   `json:"isElongated"`
}

// parsePortalDate は "2006-01-02" 形式の日付をUTCの時刻として解釈する。
func parsePortalDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付の形式が不正です: %q", s)
	}
	return t, nil
}
