package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/schedbot/internal/clock"
	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/notification"
	"github.com/hitoshi/schedbot/internal/repository"
	"github.com/hitoshi/schedbot/internal/schedule"
	"github.com/hitoshi/schedbot/internal/user"
)

// Router はTelegramの更新をコマンドハンドラーへ振り分ける。
// 各コマンドは同期的に処理され、結果はNotifier経由で返信される。
type Router struct {
	notifier   notification.Notifier
	users      *user.Service
	sync       *schedule.SyncService
	runTx      user.TxRunner
	clock      clock.Clock
	location   *time.Location
	syncMaxAge time.Duration
}

// NewRouter はRouterを生成する。
func NewRouter(
	notifier notification.Notifier,
	users *user.Service,
	sync *schedule.SyncService,
	runTx user.TxRunner,
	clk clock.Clock,
	location *time.Location,
	syncMaxAge time.Duration,
) *Router {
	return &Router{
		notifier:   notifier,
		users:      users,
		sync:       sync,
		runTx:      runTx,
		clock:      clk,
		location:   location,
		syncMaxAge: syncMaxAge,
	}
}

// HandleUpdate は1件の更新を処理する。コマンド以外の更新は無視する。
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	cmd := fields[0]
	// グループチャットでは /command@botname 形式で届く。
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		r.handleStart(ctx, msg)
	case "/help":
		r.handleHelp(ctx, msg)
	case "/status":
		r.handleStatus(ctx, msg)
	case "/auth":
		r.handleAuth(ctx, msg, args)
	case "/subgroup":
		r.handleSubgroup(ctx, msg, args)
	case "/notify":
		r.handleNotify(ctx, msg, args)
	case "/notify_test":
		r.handleNotifyTest(ctx, msg)
	case "/schedule":
		r.handleSchedule(ctx, msg, 0, "Расписание на сегодня")
	case "/tomorrow":
		r.handleSchedule(ctx, msg, 1, "Расписание на завтра")
	case "/next":
		r.handleNext(ctx, msg)
	case "/sync":
		r.handleSync(ctx, msg)
	default:
		// 未知のコマンドは無視する
	}
}

// displayName はメッセージの送信者から表示名を組み立てる。
func displayName(msg *tgbotapi.Message) string {
	fallback := fmt.Sprintf("user_%d", msg.Chat.ID)
	if msg.From == nil {
		return fallback
	}
	name := strings.TrimSpace(strings.Join([]string{msg.From.FirstName, msg.From.LastName}, " "))
	if name == "" {
		name = msg.From.UserName
	}
	if name == "" {
		name = fallback
	}
	return name
}

// loadUser はユーザーを登録または取得する。毎コマンドで表示名を追従させる。
func (r *Router) loadUser(ctx context.Context, msg *tgbotapi.Message) (*model.User, error) {
	return r.users.Register(ctx, msg.Chat.ID, displayName(msg))
}

// ensureProfile はプロフィールが未同期またはforceの場合にポータルから取得する。
func (r *Router) ensureProfile(ctx context.Context, u *model.User, force bool) (*model.User, error) {
	if !u.HasCredentials() {
		return nil, model.NewCredentialsRequiredError()
	}
	if !force && u.HasProfile() {
		return u, nil
	}
	return r.users.SyncProfile(ctx, u)
}

// syncCache は対象日の時間割キャッシュを1トランザクション内で取得する。
func (r *Router) syncCache(ctx context.Context, u *model.User, targetDate time.Time, force bool) (*model.ScheduleCache, error) {
	var cache *model.ScheduleCache
	err := r.runTx(ctx, func(uow *repository.UnitOfWork) error {
		var syncErr error
		if force {
			cache, syncErr = r.sync.SyncForUser(ctx, uow, u, targetDate)
		} else {
			cache, syncErr = r.sync.SyncIfStale(ctx, uow, u, targetDate, r.syncMaxAge)
		}
		return syncErr
	})
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// nowLocal は現在時刻をBotの既定タイムゾーンで返す。
func (r *Router) nowLocal() time.Time {
	return r.clock.Now().In(r.location)
}

func (r *Router) send(ctx context.Context, chatID int64, msg model.Message) {
	if err := r.notifier.Send(ctx, chatID, msg); err != nil {
		slog.Error("返信の送信に失敗しました",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
	}
}

func (r *Router) sendInfo(ctx context.Context, chatID int64, title string, lines ...string) {
	r.send(ctx, chatID, model.InfoMessage{Title: title, Lines: lines})
}

func (r *Router) sendError(ctx context.Context, chatID int64, title string, details ...string) {
	r.send(ctx, chatID, model.ErrorMessage{Title: title, Details: details})
}

// sendFailure はエラーのカテゴリに応じた利用者向けメッセージを返信する。
func (r *Router) sendFailure(ctx context.Context, chatID int64, err error) {
	slog.Error("コマンド処理に失敗しました",
		slog.Int64("chat_id", chatID),
		slog.String("error", err.Error()))

	switch {
	case model.IsCategory(err, "auth"):
		r.sendError(ctx, chatID, "Ошибка доступа к порталу",
			"Проверь логин/пароль: /auth ЛОГИН ПАРОЛЬ")
	case model.IsCategory(err, "scrape"):
		r.sendError(ctx, chatID, "Портал изменился",
			"Не удалось разобрать страницу входа. Сообщи администратору.")
	case model.IsCategory(err, "transient"):
		r.sendError(ctx, chatID, "Портал недоступен", "Попробуй позже.")
	case model.IsCategory(err, "timezone"):
		r.sendError(ctx, chatID, "Некорректная таймзона", "Сообщи администратору.")
	default:
		r.sendError(ctx, chatID, "Ошибка", "Попробуй позже.")
	}
}
