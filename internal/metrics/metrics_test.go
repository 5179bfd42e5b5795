package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_RegistersMetrics は全メトリクスがレジストリに登録されることを検証する。
func TestNewCollector_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPortalRequest("/api/proxy/timetable/get-timetable", 200)
	c.RecordPortalLatency("/api/proxy/timetable/get-timetable", 120*time.Millisecond)
	c.RecordLoginAttempt(true)
	c.RecordTelegramSend(true)
	c.RecordSyncResult(false)
	c.RecordNotificationSent(true)
	c.RecordWorkerError("sync")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"schedbot_portal_requests_total",
		"schedbot_portal_request_seconds",
		"schedbot_portal_login_total",
		"schedbot_telegram_sends_total",
		"schedbot_schedule_sync_total",
		"schedbot_notifications_sent_total",
		"schedbot_worker_errors_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

// TestHandler_ServesMetrics は/metricsハンドラーが記録済みメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSyncResult(true)

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "schedbot_schedule_sync_total") {
		t.Error("response should contain schedbot_schedule_sync_total metric")
	}
}
