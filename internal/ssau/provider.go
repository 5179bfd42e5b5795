package ssau

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hitoshi/schedbot/internal/model"
)

// ポータルAPIのパス。
const (
	schedulePath     = "/api/proxy/timetable/get-timetable"
	groupsPath       = "/api/proxy/personal/groups"
	dictionariesPath = "/api/proxy/dictionaries"
	yearsSlug        = "unified_years"
)

// ScheduleProvider はポータルから週の時間割を取得する。
type ScheduleProvider struct {
	client *Client
}

// NewScheduleProvider はScheduleProviderを生成する。
func NewScheduleProvider(client *Client) *ScheduleProvider {
	return &ScheduleProvider{client: client}
}

// FetchWeekSchedule は指定ユーザー・学年週の授業一覧を取得する。
// 資格情報とプロフィールの両方が必要。
func (p *ScheduleProvider) FetchWeekSchedule(ctx context.Context, user *model.User, weekNumber int) ([]model.Lesson, error) {
	if !user.HasCredentials() {
		return nil, model.NewCredentialsRequiredError()
	}
	if !user.HasProfile() {
		return nil, model.NewProfileRequiredError()
	}

	slog.Info("時間割を取得します",
		slog.Int64("chat_id", user.Telegram.ChatID),
		slog.Int("week", weekNumber),
		slog.Int64("group_id", user.Profile.GroupID),
		slog.Int64("year_id", user.Profile.YearID))

	params := url.Values{}
	params.Set("yearId", strconv.FormatInt(user.Profile.YearID, 10))
	params.Set("week", strconv.Itoa(weekNumber))
	params.Set("userType", user.Profile.UserType)
	params.Set("groupId", strconv.FormatInt(user.Profile.GroupID, 10))

	body, err := p.client.Get(ctx, user.Credentials.Login, user.Credentials.Password, schedulePath, params)
	if err != nil {
		return nil, err
	}

	var dto scheduleResponseDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("時間割レスポンスのデコードに失敗しました: %w", err)
	}
	return mapLessons(dto)
}

// mapLessons はDTOをドメインの授業一覧に変換する。
func mapLessons(dto scheduleResponseDTO) ([]model.Lesson, error) {
	lessons := make([]model.Lesson, 0, len(dto.Lessons))
	for _, item := range dto.Lessons {
		begin, err := model.ParseDayTime(item.Time.BeginTime)
		if err != nil {
			return nil, fmt.Errorf("授業 %d の開始時刻が不正です: %w", item.ID, err)
		}
		end, err := model.ParseDayTime(item.Time.EndTime)
		if err != nil {
			return nil, fmt.Errorf("授業 %d の終了時刻が不正です: %w", item.ID, err)
		}
		lessonTime, err := model.NewLessonTime(begin, end)
		if err != nil {
			return nil, fmt.Errorf("授業 %d: %w", item.ID, err)
		}

		lesson := model.Lesson{
			ID:      item.ID,
			Subject: item.Discipline.Name,
			Weekday: item.Weekday.ID,
			Time:    lessonTime,
		}
		if item.Type != nil {
			lesson.Type = item.Type.Name
		}
		if len(item.Teachers) > 0 {
			lesson.Teacher = item.Teachers[0].Name
		}
		for _, w := range item.Weeks {
			lesson.WeekNumbers = append(lesson.WeekNumbers, w.Week)
			if w.IsOnline {
				lesson.IsOnline = true
			}
		}
		if item.Conference != nil {
			lesson.ConferenceURL = item.Conference.URL
		}
		if len(item.Groups) > 0 {
			lesson.Subgroup = item.Groups[0].Subgroup
		}

		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

// ProfileProvider はポータルからユーザーのグループと学年情報を取得する。
type ProfileProvider struct {
	client *Client
}

// NewProfileProvider はProfileProviderを生成する。
func NewProfileProvider(client *Client) *ProfileProvider {
	return &ProfileProvider{client: client}
}

// FetchProfile はグループ一覧と学年辞書からプロフィールを組み立てる。
// グループは先頭を採用し、学年はisCurrentのもの、なければ末尾を採用する。
func (p *ProfileProvider) FetchProfile(ctx context.Context, login, password string) (*model.PortalProfile, error) {
	groups, err := p.fetchGroups(ctx, login, password)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, model.NewEmptyProfileError("グループ一覧")
	}
	group := groups[0]

	years, err := p.fetchYears(ctx, login, password)
	if err != nil {
		return nil, err
	}
	if len(years) == 0 {
		return nil, model.NewEmptyProfileError("学年辞書")
	}
	year := selectYear(years)

	yearStart, err := parsePortalDate(year.StartDate)
	if err != nil {
		return nil, err
	}

	slog.Info("プロフィールを取得しました",
		slog.Int64("group_id", group.ID),
		slog.Int64("year_id", year.ID),
		slog.String("year_start", year.StartDate))

	return &model.PortalProfile{
		GroupID:           group.ID,
		GroupName:         group.Name,
		YearID:            year.ID,
		AcademicYearStart: yearStart,
		Subgroup:          model.SubgroupAll,
		UserType:          "student",
	}, nil
}

// fetchGroups はユーザーの所属グループ一覧を取得する。
func (p *ProfileProvider) fetchGroups(ctx context.Context, login, password string) ([]groupDTO, error) {
	body, err := p.client.Get(ctx, login, password, groupsPath, nil)
	if err != nil {
		return nil, err
	}
	var groups []groupDTO
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("グループ一覧のデコードに失敗しました: %w", err)
	}
	return groups, nil
}

// fetchYears は学年辞書を取得する。
func (p *ProfileProvider) fetchYears(ctx context.Context, login, password string) ([]unifiedYearDTO, error) {
	params := url.Values{}
	params.Set("slug", yearsSlug)

	body, err := p.client.Get(ctx, login, password, dictionariesPath, params)
	if err != nil {
		return nil, err
	}
	var years []unifiedYearDTO
	if err := json.Unmarshal(body, &years); err != nil {
		return nil, fmt.Errorf("学年辞書のデコードに失敗しました: %w", err)
	}
	return years, nil
}

// selectYear は現行フラグの立った学年を返す。なければ末尾を返す。
func selectYear(years []unifiedYearDTO) unifiedYearDTO {
	for _, year := range years {
		if year.IsCurrent {
			return year
		}
	}
	return years[len(years)-1]
}
