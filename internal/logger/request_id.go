package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID はリクエスト相関IDをコンテキストに格納する。
// idが空の場合は新しいUUIDを採番する。
// ワーカーのユーザー単位処理とBotハンドラーの入口で付与し、
// 以降の呼び出し境界には明示的にコンテキストを引き回す。
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID はコンテキストからリクエスト相関IDを取り出す。
// 未設定の場合は空文字列を返す。
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
