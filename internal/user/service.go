// Package user はユーザー登録・資格情報・設定の操作を提供する。
package user

import (
	"context"
	"log/slog"

	"github.com/hitoshi/schedbot/internal/model"
	"github.com/hitoshi/schedbot/internal/repository"
)

// ProfileFetcher はポータルからプロフィールを取得するインターフェース。
// テスト時にモックに差し替え可能。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, login, password string) (*model.PortalProfile, error)
}

// TxRunner はトランザクション境界の実行を抽象化する。
// 本番ではrepository.RunInTxを束縛し、テストではモックのUnitOfWorkを渡す。
type TxRunner func(ctx context.Context, fn func(uow *repository.UnitOfWork) error) error

// Service はユーザー集約に対する操作をまとめる。
// 各操作は1トランザクション内で完結する。
type Service struct {
	runTx   TxRunner
	fetcher ProfileFetcher
}

// NewService はServiceを生成する。
func NewService(runTx TxRunner, fetcher ProfileFetcher) *Service {
	return &Service{runTx: runTx, fetcher: fetcher}
}

// Register はユーザーを登録する。既存ユーザーの場合は表示名のみ更新する。
// 登録済みかどうかに関わらず冪等に呼び出せる。
func (s *Service) Register(ctx context.Context, chatID int64, displayName string) (*model.User, error) {
	var result *model.User
	err := s.runTx(ctx, func(uow *repository.UnitOfWork) error {
		existing, err := uow.Users.FindByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Telegram.DisplayName == displayName {
				result = existing
				return nil
			}
			existing.Telegram.DisplayName = displayName
			result, err = uow.Users.Upsert(ctx, existing)
			return err
		}

		result, err = uow.Users.Upsert(ctx, &model.User{
			Telegram: model.TelegramIdentity{
				ChatID:        chatID,
				DisplayName:   displayName,
				NotifyEnabled: true,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCredentials はポータル資格情報を差し替える。
// 資格情報が変わるとグループも変わりうるため、プロフィールは破棄して
// 次回の同期で取り直す。
func (s *Service) UpdateCredentials(ctx context.Context, chatID int64, login, password string) (*model.User, error) {
	var result *model.User
	err := s.runTx(ctx, func(uow *repository.UnitOfWork) error {
		user, err := uow.Users.FindByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		if user == nil {
			return model.NewUserNotRegisteredError(chatID)
		}

		user.Credentials = &model.PortalCredentials{Login: login, Password: password}
		user.Profile = nil
		result, err = uow.Users.Upsert(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SyncProfile はポータルからプロフィールを取得してユーザーに反映する。
// ユーザーが選択済みのサブグループとユーザー種別は上書きしない。
func (s *Service) SyncProfile(ctx context.Context, user *model.User) (*model.User, error) {
	if !user.HasCredentials() {
		return nil, model.NewCredentialsRequiredError()
	}

	profile, err := s.fetcher.FetchProfile(ctx, user.Credentials.Login, user.Credentials.Password)
	if err != nil {
		return nil, err
	}

	if user.Profile != nil {
		merged := profile.WithSubgroup(user.Profile.Subgroup).WithUserType(user.Profile.UserType)
		profile = &merged
	}
	user.Profile = profile

	slog.Info("プロフィールを更新しました",
		slog.Int64("chat_id", user.Telegram.ChatID),
		slog.String("group", profile.GroupName),
		slog.Int64("group_id", profile.GroupID),
		slog.Int64("year_id", profile.YearID))

	var result *model.User
	err = s.runTx(ctx, func(uow *repository.UnitOfWork) error {
		var upsertErr error
		result, upsertErr = uow.Users.Upsert(ctx, user)
		return upsertErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SettingsUpdate は更新対象の設定項目。nilの項目は変更しない。
type SettingsUpdate struct {
	Subgroup      *model.Subgroup
	UserType      *string
	NotifyEnabled *bool
}

// UpdateSettings はユーザー設定を部分更新する。
// サブグループとユーザー種別の変更にはプロフィール同期済みであることが必要。
func (s *Service) UpdateSettings(ctx context.Context, chatID int64, update SettingsUpdate) (*model.User, error) {
	var result *model.User
	err := s.runTx(ctx, func(uow *repository.UnitOfWork) error {
		user, err := uow.Users.FindByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		if user == nil {
			return model.NewUserNotRegisteredError(chatID)
		}

		if update.Subgroup != nil || update.UserType != nil {
			if !user.HasProfile() {
				return model.NewProfileRequiredError()
			}
			profile := *user.Profile
			if update.Subgroup != nil {
				profile = profile.WithSubgroup(*update.Subgroup)
			}
			if update.UserType != nil {
				profile = profile.WithUserType(*update.UserType)
			}
			user.Profile = &profile
		}
		if update.NotifyEnabled != nil {
			user.Telegram.NotifyEnabled = *update.NotifyEnabled
		}

		result, err = uow.Users.Upsert(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
