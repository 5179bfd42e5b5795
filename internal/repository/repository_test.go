package repository

import (
	"testing"

	"github.com/hitoshi/schedbot/internal/security"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresScheduleCacheRepoはScheduleCacheRepositoryインターフェースを満たすことを検証
func TestPostgresScheduleCacheRepo_ImplementsInterface(t *testing.T) {
	var _ ScheduleCacheRepository = (*PostgresScheduleCacheRepo)(nil)
}

// PostgresNotificationLogRepoはNotificationLogRepositoryインターフェースを満たすことを検証
func TestPostgresNotificationLogRepo_ImplementsInterface(t *testing.T) {
	var _ NotificationLogRepository = (*PostgresNotificationLogRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil, security.PlaintextPasswordCipher{})
	if repo == nil {
		t.Fatal("repoがnilであってはならない")
	}
}

// NewPostgresScheduleCacheRepoが正しく初期化されることを検証
func TestNewPostgresScheduleCacheRepo_Initializes(t *testing.T) {
	repo := NewPostgresScheduleCacheRepo(nil)
	if repo == nil {
		t.Fatal("repoがnilであってはならない")
	}
}

// NewPostgresNotificationLogRepoが正しく初期化されることを検証
func TestNewPostgresNotificationLogRepo_Initializes(t *testing.T) {
	repo := NewPostgresNotificationLogRepo(nil)
	if repo == nil {
		t.Fatal("repoがnilであってはならない")
	}
}
