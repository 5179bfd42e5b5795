package ssau

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/hitoshi/schedbot/internal/model"
)

// loginPath はポータルのログインページのパス。
const loginPath = "/account/login"

// authCookieName はログイン成功時にポータルが設定するCookie名。
const authCookieName = "auth"

// Authenticator はNext.jsサーバーアクション経由のログインを実装する。
// ログインページとチャンクJSからルーター状態とアクションIDを抽出し、
// multipartフォームをPOSTして認証Cookieを取得する。
type Authenticator struct {
	baseURL string
	client  *http.Client
	scraper *LoginScraper
	maxBody int64
}

// NewAuthenticator はAuthenticatorを生成する。
// clientはリダイレクトを追跡しないこと。POSTのリダイレクト先へ進むと
// Set-Cookieを取りこぼす。
func NewAuthenticator(baseURL string, client *http.Client, scraper *LoginScraper, maxBody int64) *Authenticator {
	return &Authenticator{
		baseURL: baseURL,
		client:  client,
		scraper: scraper,
		maxBody: maxBody,
	}
}

// Login はポータルにログインし、認証Cookieの値を返す。
func (a *Authenticator) Login(ctx context.Context, login, password string) (string, error) {
	// ログインページのGETで設定されるCookieをPOSTへ引き継ぐため、
	// ログイン1回ごとに独立したCookie jarを使う。
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("cookie jarの生成に失敗しました: %w", err)
	}
	client := *a.client
	client.Jar = jar

	routerState, nextAction, err := a.fetchLoginMetadata(ctx, &client)
	if err != nil {
		return "", err
	}

	form, contentType, err := buildLoginForm(login, password)
	if err != nil {
		return "", fmt.Errorf("ログインフォームの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+loginPath, form)
	if err != nil {
		return "", fmt.Errorf("ログインリクエストの構築に失敗しました: %w", err)
	}
	setPortalHeaders(req, a.baseURL)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("next-action", nextAction)
	req.Header.Set("next-router-state-tree", routerState)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ログインPOSTに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, a.maxBody))

	if resp.StatusCode >= 400 {
		return "", model.NewLoginFailedError(fmt.Sprintf("ステータス %d", resp.StatusCode))
	}

	cookie := a.findAuthCookie(resp, jar)
	if cookie == "" {
		return "", model.NewLoginFailedError("認証Cookieが設定されていません")
	}

	slog.Info("ポータルへのログインに成功しました")
	return cookie, nil
}

// fetchLoginMetadata はログインページとチャンクJSを取得し、
// ルーター状態とサーバーアクションIDを抽出する。
func (a *Authenticator) fetchLoginMetadata(ctx context.Context, client *http.Client) (routerState, nextAction string, err error) {
	page, err := a.fetch(ctx, client, a.baseURL+loginPath, "text/html")
	if err != nil {
		return "", "", fmt.Errorf("ログインページの取得に失敗しました: %w", err)
	}

	routerState, err = a.scraper.ExtractRouterState(page, loginPath)
	if err != nil {
		return "", "", err
	}

	chunkURL, err := a.scraper.ExtractLoginChunkURL(page)
	if err != nil {
		return "", "", err
	}

	js, err := a.fetch(ctx, client, a.baseURL+chunkURL, "*/*")
	if err != nil {
		return "", "", fmt.Errorf("ログインチャンクの取得に失敗しました: %w", err)
	}

	nextAction, err = a.scraper.ExtractNextAction(js)
	if err != nil {
		return "", "", err
	}
	return routerState, nextAction, nil
}

// fetch はGETリクエストを発行して本文を返す。
func (a *Authenticator) fetch(ctx context.Context, client *http.Client, rawURL, accept string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	setPortalHeaders(req, a.baseURL)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// findAuthCookie はレスポンスとCookie jarから認証Cookieを探す。
func (a *Authenticator) findAuthCookie(resp *http.Response, jar *cookiejar.Jar) string {
	for _, c := range resp.Cookies() {
		if c.Name == authCookieName {
			return c.Value
		}
	}
	if base, err := url.Parse(a.baseURL); err == nil {
		for _, c := range jar.Cookies(base) {
			if c.Name == authCookieName {
				return c.Value
			}
		}
	}
	return ""
}

// buildLoginForm はサーバーアクションが期待するmultipartフォームを構築する。
// フィールド名と順序はログインページのフォーム実装に合わせる。
func buildLoginForm(login, password string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"1_returnUrl", "/"},
		{"1_login", login},
		{"1_password", password},
		{"0", ""},
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// setPortalHeaders はポータルが期待する共通ヘッダーを設定する。
func setPortalHeaders(req *http.Request, baseURL string) {
	req.Header.Set("Accept", "text/x-component")
	req.Header.Set("Origin", baseURL)
	req.Header.Set("Referer", baseURL+loginPath)
	req.Header.Set("User-Agent", "Mozilla/5.0")
}
