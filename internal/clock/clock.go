// Package clock は現在時刻の取得を抽象化する。
// サービス層はtime.Nowを直接呼ばず、このインターフェースを経由することで
// 時刻依存のロジックをテスト可能にする。
package clock

import "time"

// Clock は現在時刻を返すインターフェース。NowはUTCを返す。
type Clock interface {
	Now() time.Time
}

// SystemClock はシステム時刻を返すClock実装。
type SystemClock struct{}

// Now は現在のUTC時刻を返す。
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock は固定時刻を返すClock実装。テスト用。
type FixedClock struct {
	Time time.Time
}

// Now は固定時刻を返す。
func (c FixedClock) Now() time.Time {
	return c.Time
}
