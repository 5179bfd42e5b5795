package schedule

import (
	"time"

	"github.com/hitoshi/schedbot/internal/model"
)

// UpcomingLesson は次に始まる授業とその開始時刻。
type UpcomingLesson struct {
	Lesson  model.Lesson
	StartAt time.Time
}

// FindNext は現在時刻以降で最も早く始まる授業を探す。
// 今日から7日先までを走査し、見つからない場合はnilを返す。
// 学年週番号は呼び出し元が渡した値を全日に適用する。走査が週境界を
// またぐ場合、翌週の授業は翌週の週番号で絞り込まれない点に注意。
func FindNext(lessons []model.Lesson, nowLocal time.Time, weekNumber int, subgroup model.Subgroup) *UpcomingLesson {
	loc := nowLocal.Location()
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)

	var best *UpcomingLesson
	for offset := 0; offset < 7; offset++ {
		targetDate := today.AddDate(0, 0, offset)
		weekday := isoWeekday(targetDate)

		for _, lesson := range lessons {
			if lesson.Weekday != weekday {
				continue
			}
			if !lesson.OccursInWeek(weekNumber) {
				continue
			}
			if !subgroup.Matches(lesson.Subgroup) {
				continue
			}

			startAt := lesson.Time.Start.At(targetDate, loc)
			if startAt.Before(nowLocal) {
				continue
			}
			if best == nil || startAt.Before(best.StartAt) {
				candidate := UpcomingLesson{Lesson: lesson, StartAt: startAt}
				best = &candidate
			}
		}
	}
	return best
}
