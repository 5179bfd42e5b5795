// Package model はドメインモデルを定義する。
package model

import "time"

// TelegramIdentity はユーザーのTelegram側の情報を表す。
type TelegramIdentity struct {
	ChatID        int64
	DisplayName   string
	NotifyEnabled bool
}

// PortalCredentials はポータルのログイン資格情報を表す。
// Password は復号済みの平文として保持し、永続化時のみ暗号化される。
type PortalCredentials struct {
	Login    string
	Password string
}

// PortalProfile はポータルから取得したユーザープロフィールを表す。
// プロフィール同期が成功するまでは存在しない。
type PortalProfile struct {
	GroupID           int64
	GroupName         string
	YearID            int64
	AcademicYearStart time.Time // 学年開始日（日付のみ有効）
	Subgroup          Subgroup
	UserType          string
}

// WithSubgroup はサブグループ選択のみ差し替えたコピーを返す。
func (p PortalProfile) WithSubgroup(subgroup Subgroup) PortalProfile {
	p.Subgroup = subgroup
	return p
}

// WithUserType はユーザー種別のみ差し替えたコピーを返す。
func (p PortalProfile) WithUserType(userType string) PortalProfile {
	p.UserType = userType
	return p
}

// User はBotの利用者を表す集約。
// 初回のBot操作時に作成され、/auth で資格情報が、プロフィール同期で
// Profile が設定される。削除は行わない。
type User struct {
	ID          int64
	Telegram    TelegramIdentity
	Credentials *PortalCredentials
	Profile     *PortalProfile
}

// HasCredentials はポータル資格情報が登録済みかどうかを返す。
func (u *User) HasCredentials() bool {
	return u.Credentials != nil
}

// HasProfile はプロフィール同期が完了しているかどうかを返す。
func (u *User) HasProfile() bool {
	return u.Profile != nil
}

// ScheduleCache は1ユーザー・1学年週分の時間割キャッシュを表す。
// (UserID, WeekNumber) で一意。同期のたびに全体が置き換えられる。
type ScheduleCache struct {
	UserID     int64
	WeekNumber int
	FetchedAt  time.Time
	Lessons    []Lesson
}

// NotificationLog は送信済みリマインダーの追記専用レコード。
// (UserID, LessonID, LessonDate) の一意制約により、授業1回あたり
// 最大1通の送信を保証する。
type NotificationLog struct {
	UserID     int64
	LessonID   int64
	LessonDate time.Time // 日付のみ有効
	SentAt     time.Time
}

// AuthSession はポータルの認証セッションを表す。
// セッションキャッシュのみが所有し、永続化されない。
type AuthSession struct {
	AuthCookie string
	ExpiresAt  time.Time
}
