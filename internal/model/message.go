// Package model はドメインモデルを定義する。
package model

import "time"

// Message はBotが送信するメッセージの閉じた集合を表す。
// レンダラーは全種別を網羅したtype switchで変換するため、
// 種別の追加はコンパイル時に検出できる変更になる。
type Message interface {
	isMessage()
}

// InfoMessage はタイトルと箇条書き本文を持つ情報メッセージ。
type InfoMessage struct {
	Title string
	Lines []string
}

func (InfoMessage) isMessage() {}

// ErrorMessage はタイトルと詳細を持つエラーメッセージ。
type ErrorMessage struct {
	Title   string
	Details []string
}

func (ErrorMessage) isMessage() {}

// ScheduleMessage は指定日の時間割メッセージ。
type ScheduleMessage struct {
	Title   string
	Date    time.Time
	Lessons []Lesson
}

func (ScheduleMessage) isMessage() {}

// NotificationMessage は授業開始前のリマインダーメッセージ。
type NotificationMessage struct {
	Title       string
	Lesson      Lesson
	LessonStart time.Time
}

func (NotificationMessage) isMessage() {}
