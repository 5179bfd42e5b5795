package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/security"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// ポータルパスワードはPasswordCipherで暗号化して保存する。
type PostgresUserRepo struct {
	db     DBTX
	cipher security.PasswordCipher
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX, cipher security.PasswordCipher) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, cipher: cipher}
}

const userColumns = `id, tg_chat_id, tg_display_name, notify_enabled,
	        portal_login, portal_password, portal_group_id, portal_group_name,
	        portal_year_id, portal_subgroup, portal_user_type, academic_year_start`

// FindByChatID は指定のTelegramチャットIDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tg_chat_id = $1`,
		chatID,
	)

	user, err := scanUser(row, r.cipher)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// Upsert はユーザーを作成または更新し、永続化後の状態を返す。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	var login, password sql.NullString
	if user.Credentials != nil {
		encrypted, err := r.cipher.Encrypt(user.Credentials.Password)
		if err != nil {
			return nil, fmt.Errorf("パスワードの暗号化に失敗しました: %w", err)
		}
		login = sql.NullString{String: user.Credentials.Login, Valid: true}
		password = sql.NullString{String: encrypted, Valid: true}
	}

	var groupID, yearID sql.NullInt64
	var groupName sql.NullString
	var yearStart sql.NullTime
	subgroup := int(model.SubgroupAll)
	userType := "student"
	if user.Profile != nil {
		groupID = sql.NullInt64{Int64: user.Profile.GroupID, Valid: true}
		groupName = sql.NullString{String: user.Profile.GroupName, Valid: true}
		yearID = sql.NullInt64{Int64: user.Profile.YearID, Valid: true}
		yearStart = sql.NullTime{Time: user.Profile.AcademicYearStart, Valid: true}
		subgroup = int(user.Profile.Subgroup)
		userType = user.Profile.UserType
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (tg_chat_id, tg_display_name, notify_enabled,
		                    portal_login, portal_password, portal_group_id, portal_group_name,
		                    portal_year_id, portal_subgroup, portal_user_type, academic_year_start)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (tg_chat_id) DO UPDATE SET
		    tg_display_name = EXCLUDED.tg_display_name,
		    notify_enabled = EXCLUDED.notify_enabled,
		    portal_login = EXCLUDED.portal_login,
		    portal_password = EXCLUDED.portal_password,
		    portal_group_id = EXCLUDED.portal_group_id,
		    portal_group_name = EXCLUDED.portal_group_name,
		    portal_year_id = EXCLUDED.portal_year_id,
		    portal_subgroup = EXCLUDED.portal_subgroup,
		    portal_user_type = EXCLUDED.portal_user_type,
		    academic_year_start = EXCLUDED.academic_year_start,
		    updated_at = now()
		 RETURNING `+userColumns,
		user.Telegram.ChatID, user.Telegram.DisplayName, user.Telegram.NotifyEnabled,
		login, password, groupID, groupName,
		yearID, subgroup, userType, yearStart,
	)

	saved, err := scanUser(row, r.cipher)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}
	return saved, nil
}

// ListEnabled は通知が有効なユーザーを全件取得する。
func (r *PostgresUserRepo) ListEnabled(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE notify_enabled = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("通知有効ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows, r.cipher)
		if err != nil {
			return nil, fmt.Errorf("通知有効ユーザーの読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知有効ユーザーの走査に失敗しました: %w", err)
	}

	return users, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行をUser集約に変換する。
// 資格情報は両カラムが揃っている場合のみ、プロフィールは
// グループ・学年・開始日が揃っている場合のみ復元する。
func scanUser(row rowScanner, cipher security.PasswordCipher) (*model.User, error) {
	user := &model.User{}
	var login, password, groupName, userType sql.NullString
	var groupID, yearID sql.NullInt64
	var subgroup int
	var yearStart sql.NullTime

	if err := row.Scan(
		&user.ID, &user.Telegram.ChatID, &user.Telegram.DisplayName, &user.Telegram.NotifyEnabled,
		&login, &password, &groupID, &groupName,
		&yearID, &subgroup, &userType, &yearStart,
	); err != nil {
		return nil, err
	}

	if login.Valid && password.Valid {
		user.Credentials = &model.PortalCredentials{
			Login:    login.String,
			Password: cipher.Decrypt(password.String),
		}
	}

	if groupID.Valid && yearID.Valid && yearStart.Valid && groupName.Valid {
		sg, err := model.ParseSubgroup(subgroup)
		if err != nil {
			return nil, err
		}
		user.Profile = &model.PortalProfile{
			GroupID:           groupID.Int64,
			GroupName:         groupName.String,
			YearID:            yearID.Int64,
			AcademicYearStart: yearStart.Time.UTC().Truncate(24 * time.Hour),
			Subgroup:          sg,
			UserType:          userType.String,
		}
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
