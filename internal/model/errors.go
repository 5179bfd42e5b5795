// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// AppError は統一エラーフォーマットを表す。
// オペレーターが「サイトが変わった」と「サイトが落ちている」を
// 区別できるよう、原因カテゴリを含む。
type AppError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, scrape, auth, transient, timezone, system
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProfileRequired     = "PROFILE_REQUIRED"
	ErrCodeCredentialsRequired = "CREDENTIALS_REQUIRED"
	ErrCodeUserNotRegistered   = "USER_NOT_REGISTERED"
	ErrCodeLoginFailed         = "LOGIN_FAILED"
	ErrCodeScrapeFailed        = "SCRAPE_FAILED"
	ErrCodePortalStatus        = "PORTAL_STATUS"
	ErrCodeInvalidTimezone     = "INVALID_TIMEZONE"
	ErrCodeEmptyProfile        = "EMPTY_PROFILE"
)

// NewProfileRequiredError はプロフィール未同期エラーを生成する。
// この操作にはプロフィールが必要で、リトライしても解決しない。
func NewProfileRequiredError() *AppError {
	return &AppError{
		Code:     ErrCodeProfileRequired,
		Message:  "ユーザーのプロフィール（グループ・学年）が未同期です。",
		Category: "validation",
	}
}

// NewCredentialsRequiredError は資格情報未登録エラーを生成する。
func NewCredentialsRequiredError() *AppError {
	return &AppError{
		Code:     ErrCodeCredentialsRequired,
		Message:  "ポータルのログイン・パスワードが未登録です。",
		Category: "validation",
	}
}

// NewUserNotRegisteredError は未登録ユーザーエラーを生成する。
func NewUserNotRegisteredError(chatID int64) *AppError {
	return &AppError{
		Code:     ErrCodeUserNotRegistered,
		Message:  fmt.Sprintf("ユーザーが登録されていません: chat_id=%d", chatID),
		Category: "validation",
	}
}

// NewLoginFailedError はポータルログイン失敗エラーを生成する。
// 認証クッキーが返らなかった場合の致命的エラーで、リトライ対象外。
func NewLoginFailedError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeLoginFailed,
		Message:  fmt.Sprintf("ポータルへのログインに失敗しました: %s", reason),
		Category: "auth",
	}
}

// NewScrapeFailedError はログインページの解析失敗エラーを生成する。
// サイト側の生成マークアップが変わった場合に発生する。リトライ対象外。
func NewScrapeFailedError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeScrapeFailed,
		Message:  fmt.Sprintf("ログインページの解析に失敗しました: %s", reason),
		Category: "scrape",
	}
}

// NewPortalStatusError はポータルの非リトライ対象HTTPステータスエラーを生成する。
func NewPortalStatusError(status int) *AppError {
	return &AppError{
		Code:     ErrCodePortalStatus,
		Message:  fmt.Sprintf("ポータルがステータス %d を返しました", status),
		Category: "transient",
	}
}

// NewInvalidTimezoneError は不正なタイムゾーン識別子エラーを生成する。
// 設定ミスのため、利用者には管理者への連絡を促す。
func NewInvalidTimezoneError(zone string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("不正なタイムゾーンです: %s", zone),
		Category: "timezone",
	}
}

// NewEmptyProfileError はポータルのプロフィール情報が空だった場合のエラーを生成する。
func NewEmptyProfileError(what string) *AppError {
	return &AppError{
		Code:     ErrCodeEmptyProfile,
		Message:  fmt.Sprintf("ポータルのプロフィール情報が空です: %s", what),
		Category: "auth",
	}
}

// IsCategory はエラーが指定カテゴリのAppErrorかどうかを返す。
func IsCategory(err error, category string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}
