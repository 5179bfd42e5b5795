package ssau

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/model"
)

// retryableStatuses は再試行対象のHTTPステータスコード。
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client は認証付きのポータルAPIクライアント。
// セッションキャッシュから認証Cookieを取得してGETを発行し、
// 401/403を受けた場合は1回だけ再ログインしてリクエストを再送する。
type Client struct {
	baseURL   string
	http      *http.Client
	auth      *Authenticator
	cache     *AuthSessionCache
	policy    RetryPolicy
	collector metrics.MetricsCollector
	maxBody   int64
}

// NewClient はClientを生成する。
func NewClient(
	baseURL string,
	httpClient *http.Client,
	auth *Authenticator,
	cache *AuthSessionCache,
	policy RetryPolicy,
	collector metrics.MetricsCollector,
	maxBody int64,
) *Client {
	return &Client{
		baseURL:   baseURL,
		http:      httpClient,
		auth:      auth,
		cache:     cache,
		policy:    policy,
		collector: collector,
		maxBody:   maxBody,
	}
}

// Get は認証付きGETを発行し、レスポンス本文を返す。
func (c *Client) Get(ctx context.Context, login, password, path string, params url.Values) ([]byte, error) {
	cookie, err := c.cache.GetOrRefresh(ctx, login, password, c.login)
	if err != nil {
		return nil, err
	}

	body, status, err := c.sendWithRetry(ctx, path, params, cookie)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		// キャッシュ済みCookieの期限切れ。再ログインは1回だけ。
		slog.Info("認証の期限切れを検出しました。再ログインします",
			slog.String("path", path), slog.Int("status", status))
		c.cache.Invalidate(login)

		cookie, err = c.cache.GetOrRefresh(ctx, login, password, c.login)
		if err != nil {
			return nil, err
		}
		body, status, err = c.sendWithRetry(ctx, path, params, cookie)
		if err != nil {
			return nil, err
		}
	}

	if status >= 400 {
		return nil, model.NewPortalStatusError(status)
	}
	return body, nil
}

// login はAuthenticatorへの委譲と試行結果の記録を行う。
func (c *Client) login(ctx context.Context, login, password string) (string, error) {
	cookie, err := c.auth.Login(ctx, login, password)
	c.collector.RecordLoginAttempt(err == nil)
	return cookie, err
}

// sendWithRetry はGETを再試行付きで発行する。
// ネットワークエラーと再試行対象ステータスのみ再試行し、
// それ以外のステータスは本文とともにそのまま返す。
func (c *Client) sendWithRetry(ctx context.Context, path string, params url.Values, cookie string) ([]byte, int, error) {
	var body []byte
	var status int

	op := func() error {
		b, s, header, err := c.send(ctx, path, params, cookie)
		if err != nil {
			return &RetryableError{Err: err}
		}
		if retryableStatuses[s] {
			return &RetryableError{
				Err:        fmt.Errorf("ポータルが再試行対象ステータス %d を返しました", s),
				RetryAfter: parseRetryAfter(header),
			}
		}
		body, status = b, s
		return nil
	}

	onRetry := func(err error, delay time.Duration, attempt int) {
		slog.Warn("ポータルへのリクエストを再試行します",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}

	if err := Do(ctx, c.policy, op, IsRetryable, onRetry); err != nil {
		return nil, 0, err
	}
	return body, status, nil
}

// send はGETを1回発行し、本文・ステータス・ヘッダーを返す。
func (c *Client) send(ctx context.Context, path string, params url.Values, cookie string) ([]byte, int, http.Header, error) {
	rawURL := c.baseURL + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("リクエストの構築に失敗しました: %w", err)
	}
	setPortalHeaders(req, c.baseURL)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: cookie})

	start := time.Now()
	resp, err := c.http.Do(req)
	c.collector.RecordPortalLatency(path, time.Since(start))
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	c.collector.RecordPortalRequest(path, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("レスポンス本文の読み取りに失敗しました: %w", err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// parseRetryAfter はRetry-Afterヘッダーを秒数として解釈する。
// 数値以外（HTTP日付形式）は無視する。
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
