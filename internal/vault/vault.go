// Package vault はClickUpアクセストークンの暗号化保管を提供する。
// 平文トークンは決して永続化されない。暗号化はAES-256-GCMで行い、
// 呼び出しごとに新しいノンスを生成し、復号時に認証タグを検証する。
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/model"
)

const (
	// tokenKeyPrefix はトークンレコードのキープレフィックス。
	tokenKeyPrefix = "clickup_token:"
	// tokenTTL はトークンレコードの保持期間（30日 = 2592000秒）。
	tokenTTL = 30 * 24 * time.Hour
)

// ErrStorageUnavailable は耐久バックエンドが未構成の場合に返される。
// トークンは揮発性メモリのみに存在してはならないため、トークン操作は
// インプロセスストアへフォールバックしない。
var ErrStorageUnavailable = errors.New("durable storage is not available for token operations")

// EncryptedToken は暗号文とノンスの組。
type EncryptedToken struct {
	Ciphertext []byte
	Nonce      []byte
}

// Vault はアクセストークンの暗号化・復号と保管を担う。
type Vault struct {
	durable kvstore.Store // 耐久バックエンド。未構成の場合はnil
	aead    cipher.AEAD
	logger  *slog.Logger
}

// New はVaultを生成する。keyはAES-256用の32バイト鍵。
// durableには耐久バックエンドを渡す。未構成の場合はnilを渡してよく、
// その場合トークン操作はErrStorageUnavailableで失敗する。
func New(durable kvstore.Store, key []byte, logger *slog.Logger) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Vault{
		durable: durable,
		aead:    aead,
		logger:  logger,
	}, nil
}

// Encrypt は平文をAES-256-GCMで暗号化する。
// 呼び出しごとに新しいランダムノンスを生成するため、同一平文でも
// 出力は毎回異なる。
func (v *Vault) Encrypt(plaintext string) (*EncryptedToken, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return &EncryptedToken{
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}, nil
}

// Decrypt は暗号文を復号する。認証タグの検証に失敗した場合はエラーを返す。
func (v *Vault) Decrypt(enc *EncryptedToken) (string, error) {
	plaintext, err := v.aead.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plaintext), nil
}

// StoreToken はアクセストークンを暗号化してユーザー単位のキーに保存する。
// 再認証時は既存レコードを上書きする。
// 耐久バックエンドが未構成の場合はErrStorageUnavailableを返す。
func (v *Vault) StoreToken(ctx context.Context, userID string, data model.TokenData) error {
	if v.durable == nil {
		return ErrStorageUnavailable
	}

	enc, err := v.Encrypt(data.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	tokenType := data.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	record := model.TokenRecord{
		UserID:     userID,
		Ciphertext: base64.StdEncoding.EncodeToString(enc.Ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(enc.Nonce),
		TokenType:  tokenType,
		Scope:      data.Scope,
		CreatedAt:  time.Now(),
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	if err := v.durable.Put(ctx, tokenKeyPrefix+userID, value, tokenTTL); err != nil {
		return fmt.Errorf("failed to store token record: %w", err)
	}

	v.logger.Info("clickup token stored",
		slog.String("user_id", userID),
		slog.String("scope", data.Scope),
	)

	return nil
}

// GetToken はトークンレコードを読み出して復号し、平文トークンと
// メタデータを返す。存在しない・期限切れの場合は(nil, nil)を返す。
func (v *Vault) GetToken(ctx context.Context, userID string) (*model.TokenData, error) {
	if v.durable == nil {
		return nil, ErrStorageUnavailable
	}

	value, ok, err := v.durable.Get(ctx, tokenKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var record model.TokenRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(record.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(record.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	plaintext, err := v.Decrypt(&EncryptedToken{Ciphertext: ciphertext, Nonce: nonce})
	if err != nil {
		return nil, err
	}

	return &model.TokenData{
		AccessToken: plaintext,
		TokenType:   record.TokenType,
		Scope:       record.Scope,
	}, nil
}

// HasToken は有効なトークンレコードが存在するかを返す。復号は行わない。
func (v *Vault) HasToken(ctx context.Context, userID string) (bool, error) {
	if v.durable == nil {
		return false, nil
	}
	return v.durable.Exists(ctx, tokenKeyPrefix+userID)
}

// RemoveToken はトークンレコードを削除する。ベストエフォートであり、
// キーが存在しなくても成功扱いとする。
func (v *Vault) RemoveToken(ctx context.Context, userID string) error {
	if v.durable == nil {
		return nil
	}
	if err := v.durable.Delete(ctx, tokenKeyPrefix+userID); err != nil {
		return fmt.Errorf("failed to remove token record: %w", err)
	}
	return nil
}
