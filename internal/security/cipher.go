// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/nacl/secretbox"
)

// encPrefix は暗号化済みの値に付与するプレフィックス。
// 平文で保存された過去データとの互換判定に使用する。
const encPrefix = "enc:"

// PasswordCipher はパスワードの可逆暗号化インターフェース。
// 永続化層がポータルパスワードの保存・読み出し時に使用する。
type PasswordCipher interface {
	// Encrypt は平文を暗号化してトークン文字列を返す。
	Encrypt(value string) (string, error)
	// Decrypt はトークン文字列を復号して平文を返す。
	// プレフィックスのない値（平文時代のデータ）はそのまま返す。
	Decrypt(value string) string
}

// SecretboxPasswordCipher はNaCl secretboxによるPasswordCipher実装。
// 鍵はbase64エンコードされた32バイト。nonceは値ごとにランダム生成し、
// 暗号文の先頭に連結して保存する。
type SecretboxPasswordCipher struct {
	key [32]byte
}

// NewSecretboxPasswordCipher は暗号化器を生成する。
// encodedKeyはbase64エンコードされた32バイト鍵。
func NewSecretboxPasswordCipher(encodedKey string) (*SecretboxPasswordCipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("暗号鍵のデコードに失敗しました: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("暗号鍵は32バイトでなければなりません: %dバイト", len(raw))
	}

	c := &SecretboxPasswordCipher{}
	copy(c.key[:], raw)
	return c, nil
}

// Encrypt は平文を暗号化して "enc:" プレフィックス付きトークンを返す。
func (c *SecretboxPasswordCipher) Encrypt(value string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonceの生成に失敗しました: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &c.key)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt はトークンを復号する。
// 復号に失敗した場合は警告ログを出して空文字列を返す（鍵のローテーション等で
// 復号不能になったデータは資格情報の再登録を促す扱いにする）。
func (c *SecretboxPasswordCipher) Decrypt(value string) string {
	if value == "" {
		return value
	}
	if len(value) <= len(encPrefix) || value[:len(encPrefix)] != encPrefix {
		return value
	}

	raw, err := base64.StdEncoding.DecodeString(value[len(encPrefix):])
	if err != nil || len(raw) < 24 {
		slog.Warn("パスワードの復号に失敗したため空の値を返します")
		return ""
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		slog.Warn("パスワードの復号に失敗したため空の値を返します")
		return ""
	}
	return string(plain)
}

// PlaintextPasswordCipher は暗号化を行わないPasswordCipher実装。
// ローカル開発専用。
type PlaintextPasswordCipher struct{}

// Encrypt は平文をそのまま返す。
func (PlaintextPasswordCipher) Encrypt(value string) (string, error) {
	return value, nil
}

// Decrypt は値をそのまま返す。
func (PlaintextPasswordCipher) Decrypt(value string) string {
	return value
}
