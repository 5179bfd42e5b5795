package schedule

import (
	"time"

	"github.com/hitoshi/schedbot/internal/model"
)

// FilterForDate は指定日に開講される授業を抽出する。
// 曜日・学年週・サブグループの3条件すべてに一致する授業のみ返す。
// サブグループはどちらかがワイルドカード（授業側nil、ユーザー側All）なら一致とみなす。
func FilterForDate(lessons []model.Lesson, targetDate time.Time, weekNumber int, subgroup model.Subgroup) []model.Lesson {
	weekday := isoWeekday(targetDate)

	var result []model.Lesson
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
		result = append(result, lesson)
	}
	return result
}
