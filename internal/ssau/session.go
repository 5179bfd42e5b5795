package ssau

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/model"
)

// LoginFunc は認証Cookieを取得するログイン処理。
type LoginFunc func(ctx context.Context, login, password string) (string, error)

// AuthSessionCache は認証Cookieをログイン名ごとにキャッシュする。
// TTL内は再ログインせず、期限切れ時のみログイン処理を実行する。
// 同一ログインの並行リフレッシュは1回に集約され、ログイン実行間隔は
// レートリミッターで下限が保証される。異なるログイン同士は互いをブロックしない。
type AuthSessionCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu       sync.Mutex
	entries  map[string]model.AuthSession
	limiters map[string]*rate.Limiter
	locks    map[string]*sync.Mutex

	minLoginInterval time.Duration
}

// NewAuthSessionCache はAuthSessionCacheを生成する。
func NewAuthSessionCache(ttl, minLoginInterval time.Duration, clk clock.Clock) *AuthSessionCache {
	return &AuthSessionCache{
		ttl:              ttl,
		clock:            clk,
		entries:          make(map[string]model.AuthSession),
		limiters:         make(map[string]*rate.Limiter),
		locks:            make(map[string]*sync.Mutex),
		minLoginInterval: minLoginInterval,
	}
}

// GetOrRefresh は有効なキャッシュがあればそのCookieを返し、
// なければloginFnで取得してキャッシュする。
func (c *AuthSessionCache) GetOrRefresh(ctx context.Context, login, password string, loginFn LoginFunc) (string, error) {
	if cookie, ok := c.lookup(login); ok {
		return cookie, nil
	}

	// ログイン間隔の下限を守る。burst=1なので初回は待機しない。
	if err := c.limiter(login).Wait(ctx); err != nil {
		return "", err
	}

	lock := c.loginLock(login)
	lock.Lock()
	defer lock.Unlock()

	// ロック待ちの間に別ゴルーチンがリフレッシュ済みの場合がある。
	if cookie, ok := c.lookup(login); ok {
		return cookie, nil
	}

	cookie, err := loginFn(ctx, login, password)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[login] = model.AuthSession{
		AuthCookie: cookie,
		ExpiresAt:  c.clock.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	slog.Info("認証セッションを更新しました", slog.Duration("ttl", c.ttl))
	return cookie, nil
}

// Invalidate は指定ログインのキャッシュを破棄する。
// ポータルが401/403を返した直後に呼ばれる。
func (c *AuthSessionCache) Invalidate(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, login)
}

// lookup は期限内のキャッシュエントリを探す。
func (c *AuthSessionCache) lookup(login string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[login]
	if !ok || !entry.ExpiresAt.After(c.clock.Now()) {
		return "", false
	}
	return entry.AuthCookie, true
}

// limiter はログイン名ごとのレートリミッターを返す。
func (c *AuthSessionCache) limiter(login string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[login]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.minLoginInterval), 1)
		c.limiters[login] = lim
	}
	return lim
}

// loginLock はログイン名ごとのミューテックスを返す。
func (c *AuthSessionCache) loginLock(login string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[login]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[login] = lock
	}
	return lock
}
