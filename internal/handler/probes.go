// Package handler は運用用HTTPエンドポイント（ヘルスチェック・メトリクス）を提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/middleware"
)

// Pinger はデータベース接続の生存確認を抽象化する。
// *sql.DB がこれを満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// readyzTimeout はreadyzのDB確認に許容する時間。
const readyzTimeout = 2 * time.Second

// NewProbeRouter は /healthz, /readyz, /metrics を配線したルーターを返す。
// healthzはプロセスの生存のみ、readyzはDB接続まで確認する。
func NewProbeRouter(db Pinger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), readyzTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Warn("readyz: データベースに到達できません", slog.String("error", err.Error()))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return r
}
