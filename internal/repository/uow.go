package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/schedbot/internal/security"
)

// UnitOfWork は単一トランザクションに束縛されたリポジトリの束。
// RunInTxのコールバック内でのみ有効。
type UnitOfWork struct {
	Users           UserRepository
	ScheduleCache   ScheduleCacheRepository
	NotificationLog NotificationLogRepository
}

// RunInTx はトランザクション内でfnを実行する。
// fnがnilを返した場合はコミットし、エラーを返した場合はロールバックする。
func RunInTx(ctx context.Context, db *sql.DB, cipher security.PasswordCipher, fn func(uow *UnitOfWork) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	uow := &UnitOfWork{
		Users:           NewPostgresUserRepo(tx, cipher),
		ScheduleCache:   NewPostgresScheduleCacheRepo(tx),
		NotificationLog: NewPostgresNotificationLogRepo(tx),
	}

	if err := fn(uow); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("ロールバックに失敗しました: %v (元のエラー: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
	return nil
}
