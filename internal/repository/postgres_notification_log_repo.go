package repository

import (
	"context"
	"fmt"
	"time"
)

// PostgresNotificationLogRepo はPostgreSQLを使用した送信済みリマインダーログ。
// (user_id, lesson_id, lesson_date) の一意制約で授業1回あたり
// 最大1通の送信を保証する。
type PostgresNotificationLogRepo struct {
	db DBTX
}

// NewPostgresNotificationLogRepo はPostgresNotificationLogRepoを生成する。
func NewPostgresNotificationLogRepo(db DBTX) *PostgresNotificationLogRepo {
	return &PostgresNotificationLogRepo{db: db}
}

// WasSent は指定の (ユーザー, 授業, 日付) でリマインダー送信済みかを返す。
func (r *PostgresNotificationLogRepo) WasSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notification_log
		 WHERE user_id = $1 AND lesson_id = $2 AND lesson_date = $3`,
		userID, lessonID, dateOnly(lessonDate),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("送信済み判定に失敗しました: %w", err)
	}
	return count > 0, nil
}

// MarkSent は送信記録を追記する。
// 一意制約に衝突する重複記録はDO NOTHINGで無視する（呼び出し側のバグでも
// 状態は壊さない）。
func (r *PostgresNotificationLogRepo) MarkSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_log (user_id, lesson_id, lesson_date, sent_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT ON CONSTRAINT uq_notification_log_user_lesson_date DO NOTHING`,
		userID, lessonID, dateOnly(lessonDate), sentAt,
	)
	if err != nil {
		return fmt.Errorf("送信記録の追記に失敗しました: %w", err)
	}
	return nil
}

// dateOnly は時刻成分を落とした日付を返す。DATE列との比較を安定させる。
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// compile-time interface check
var _ NotificationLogRepository = (*PostgresNotificationLogRepo)(nil)
