// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/schedbot/internal/model"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// リポジトリはこの抽象経由でクエリを発行し、UnitOfWorkが
// トランザクション境界を制御できるようにする。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByChatID は指定のTelegramチャットIDのユーザーを取得する。見つからない場合はnilを返す。
	FindByChatID(ctx context.Context, chatID int64) (*model.User, error)

	// Upsert はユーザーを作成または更新し、永続化後の状態を返す。
	// キーはTelegramチャットID。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// ListEnabled は通知が有効なユーザーを全件取得する。
	ListEnabled(ctx context.Context) ([]*model.User, error)
}

// ScheduleCacheRepository は時間割キャッシュの永続化インターフェース。
type ScheduleCacheRepository interface {
	// Find は指定ユーザー・学年週のキャッシュを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID int64, weekNumber int) (*model.ScheduleCache, error)

	// Upsert はキャッシュ行を丸ごと置き換える。(user_id, week_number) で一意。
	Upsert(ctx context.Context, cache *model.ScheduleCache) error
}

// NotificationLogRepository は送信済みリマインダーログの永続化インターフェース。
type NotificationLogRepository interface {
	// WasSent は指定の (ユーザー, 授業, 日付) でリマインダー送信済みかを返す。
	WasSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time) (bool, error)

	// MarkSent は送信記録を追記する。一意制約に衝突する重複記録は無視する。
	MarkSent(ctx context.Context, userID, lessonID int64, lessonDate time.Time, sentAt time.Time) error
}
