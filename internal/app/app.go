// Package app はアプリケーションの起動とDIワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/config"
	"github.com/hitoshi/schedbot/internal/database"
	"github.com/hitoshi/schedbot/internal/handler"
	"github.com/hitoshi/schedbot/internal/logger"
	"github.com/hitoshi/schedbot/internal/metrics"
	"github.com/hitoshi/schedbot/internal/notification"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/schedule"
	"github.com/hitoshi/schedbot/internal/security"
	"github.com/hitoshi/schedbot/internal/ssau"
	"github.com/hitoshi/schedbot/internal/telegram"
	"github.com/hitoshi/schedbot/internal/user"
	"github.com/hitoshi/schedbot/internal/worker"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("portal_base_url", cfg.PortalBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps はserve/worker両モードで共有する依存一式。
type deps struct {
	cfg       *config.Config
	location  *time.Location
	collector *metrics.Collector
	registry  *prometheus.Registry
	runTx     user.TxRunner
	users     *user.Service
	sync      *schedule.SyncService
	notifier  *telegram.Notifier
	bot       *tgbotapi.BotAPI
}

// buildDeps はDB接続を受け取り、ポータルクライアントからTelegram送信までの
// 依存関係をワイヤリングする。
func buildDeps(cfg *config.Config, db *sql.DB) (*deps, error) {
	location, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.DefaultTimezone, err)
	}

	cipher, err := newCipher(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// ポータルへの外向きHTTPはSSRFガード経由のみ許可する
	guard := security.NewOutboundGuard()
	if err := guard.ValidateBaseURL(cfg.PortalBaseURL); err != nil {
		return nil, fmt.Errorf("invalid PORTAL_BASE_URL: %w", err)
	}
	httpClient := guard.NewSafeClientNoRedirect(cfg.PortalTimeout)

	policy := ssau.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	}

	clk := clock.SystemClock{}

	scraper := ssau.NewLoginScraper()
	authenticator := ssau.NewAuthenticator(cfg.PortalBaseURL, httpClient, scraper, cfg.PortalMaxBody)
	sessions := ssau.NewAuthSessionCache(cfg.CookieTTL, cfg.MinLoginInterval, clk)
	portal := ssau.NewClient(cfg.PortalBaseURL, httpClient, authenticator, sessions, policy, collector, cfg.PortalMaxBody)

	runTx := user.TxRunner(func(ctx context.Context, fn func(uow *repository.UnitOfWork) error) error {
		return repository.RunInTx(ctx, db, cipher, fn)
	})

	users := user.NewService(runTx, ssau.NewProfileProvider(portal))
	syncSvc := schedule.NewSyncService(ssau.NewScheduleProvider(portal), clk)

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	notifier := telegram.NewNotifier(bot, telegram.NewRenderer(), policy, collector)

	return &deps{
		cfg:       cfg,
		location:  location,
		collector: collector,
		registry:  registry,
		runTx:     runTx,
		users:     users,
		sync:      syncSvc,
		notifier:  notifier,
		bot:       bot,
	}, nil
}

// newCipher は設定に応じたパスワード暗号化方式を返す。
// CIPHER_KEY未設定かつALLOW_PLAINTEXT=trueの場合のみ平文保存に切り替える。
func newCipher(cfg *config.Config) (security.PasswordCipher, error) {
	if cfg.CipherKey != "" {
		return security.NewSecretboxPasswordCipher(cfg.CipherKey)
	}
	if cfg.AllowPlaintext {
		slog.Warn("CIPHER_KEYが未設定のため、パスワードを平文で保存します（開発用）")
		return security.PlaintextPasswordCipher{}, nil
	}
	return nil, fmt.Errorf("CIPHER_KEY is required unless ALLOW_PLAINTEXT=true")
}

// runServe はBotサーバーモードで起動する。
// Telegramのロングポーリングで更新を受信してコマンドを処理し、
// 運用用HTTPサーバー（/healthz, /readyz, /metrics）を並行して提供する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := buildDeps(cfg, db)
	if err != nil {
		return err
	}

	router := telegram.NewRouter(
		d.notifier, d.users, d.sync, d.runTx,
		clock.SystemClock{}, d.location, cfg.SyncMaxAge,
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewProbeRouter(db, d.registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("運用用HTTPサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTPサーバーの起動に失敗しました", slog.String("error", err.Error()))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := d.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Botの更新受信を開始します", slog.String("bot", d.bot.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			slog.Info("シャットダウンします...")
			d.bot.StopReceivingUpdates()

			shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}

			slog.Info("正常に停止しました")
			return nil

		case upd := <-updates:
			// 更新ごとに相関IDを採番し、ハンドラー内のログに引き回す
			router.HandleUpdate(logger.WithRequestID(ctx, ""), upd)
		}
	}
}

// runWorker はワーカーモードで起動する。
// 時間割の定期同期と授業前リマインダー送信の2つのジョブを起動する。
// メトリクス公開用のHTTPサーバーも並行して提供する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := buildDeps(cfg, db)
	if err != nil {
		return err
	}

	planner := notification.NewPlanner(time.Duration(cfg.LeadMinutes)*time.Minute, d.location)
	notifySvc := notification.NewService(planner, d.notifier, clock.SystemClock{}, d.collector)

	var alerter *worker.AdminAlerter
	if cfg.AlertEnabled {
		alerter = worker.NewAdminAlerter(d.notifier, cfg.AdminChatID)
	}

	syncJob := worker.NewSyncJob(
		d.runTx, d.users, d.sync,
		clock.SystemClock{}, d.location, cfg.SyncMaxAge, d.collector, alerter,
	)
	notifyJob := worker.NewNotifyJob(d.runTx, notifySvc, d.collector, alerter)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewProbeRouter(db, d.registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("運用用HTTPサーバーを起動します（ワーカー）", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTPサーバーの起動に失敗しました", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("ワーカーをシャットダウンします...")
		cancel()

		shCtx, shCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shCancel()
		if err := server.Shutdown(shCtx); err != nil {
			slog.Warn("HTTPサーバーの停止に失敗しました", slog.String("error", err.Error()))
		}
	}()

	slog.Info("ワーカーを起動します",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Duration("notify_poll_interval", cfg.NotifyPollInterval),
	)

	// リマインダー送信ジョブをバックグラウンドで起動
	go notifyJob.Start(ctx, cfg.NotifyPollInterval)

	// 同期ジョブをメインgoroutineで実行（ブロッキング）
	syncJob.Start(ctx, cfg.SyncInterval)

	slog.Info("ワーカーが正常に停止しました")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("データベースマイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("データベースマイグレーションが完了しました")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("データベース接続を確立しました")
	return db, nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
