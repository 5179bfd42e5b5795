package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/schedbot/internal/model"
)

// PostgresScheduleCacheRepo はPostgreSQLを使用した時間割キャッシュリポジトリ。
// 授業リストはJSONBの不透明なブロブとして保存する。
type PostgresScheduleCacheRepo struct {
	db DBTX
}

// NewPostgresScheduleCacheRepo はPostgresScheduleCacheRepoを生成する。
func NewPostgresScheduleCacheRepo(db DBTX) *PostgresScheduleCacheRepo {
	return &PostgresScheduleCacheRepo{db: db}
}

// Find は指定ユーザー・学年週のキャッシュを取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleCacheRepo) Find(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error) {
	cache := &model.ScheduleCache{}
	var lessonsJSON []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, week_number, fetched_at, lessons
		 FROM schedule_cache WHERE user_id = $1 AND week_number = $2`,
		userID, weekNumber,
	).Scan(&cache.UserID, &cache.WeekNumber, &cache.FetchedAt, &lessonsJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("時間割キャッシュの取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(lessonsJSON, &cache.Lessons); err != nil {
		return nil, fmt.Errorf("時間割キャッシュのデコードに失敗しました: %w", err)
	}

	return cache, nil
}

// Upsert はキャッシュ行を丸ごと置き換える。差分マージは行わない。
func (r *PostgresScheduleCacheRepo) Upsert(ctx context.Context, cache *model.ScheduleCache) error {
	lessonsJSON, err := json.Marshal(cache.Lessons)
	if err != nil {
		return fmt.Errorf("時間割キャッシュのエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO schedule_cache (user_id, week_number, fetched_at, lessons)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT ON CONSTRAINT uq_schedule_cache_user_week DO UPDATE SET
		    fetched_at = EXCLUDED.fetched_at,
		    lessons = EXCLUDED.lessons`,
		cache.UserID, cache.WeekNumber, cache.FetchedAt, lessonsJSON,
	)
	if err != nil {
		return fmt.Errorf("時間割キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ScheduleCacheRepository = (*PostgresScheduleCacheRepo)(nil)
