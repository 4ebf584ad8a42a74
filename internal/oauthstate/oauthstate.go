// Package oauthstate はOAuthコールバックのCSRF/リプレイ対策となる
// 使い捨てstateトークンの発行と検証を提供する。
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskflow/internal/kvstore"
)

const (
	// stateKeyPrefix はOAuth stateレコードのキープレフィックス。
	stateKeyPrefix = "oauth_state:"
	// stateTTL はstateの有効期間（10分 = 600秒）。
	stateTTL = 10 * time.Minute
)

// stateRecord はstateに付随して保存するメタデータ。
type stateRecord struct {
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id,omitempty"`
}

// Manager はOAuth stateのライフサイクルを管理する。
// stateは一度検証されると即座に削除され、二度目以降の検証は必ず失敗する。
type Manager struct {
	store  kvstore.Store
	logger *slog.Logger

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewManager はManagerを生成する。
// storeにはフォールバックセマンティクスを持つストアを渡す想定。
// 耐久ストレージが利用できない場合、stateはメモリ上にのみ存在してよい。
func NewManager(store kvstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Issue は暗号的に安全なランダムstate値を生成する。
func (m *Manager) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Store はstateを10分のTTL付きで保存する。
// userIDは認可フロー開始時点で判明している場合のみ設定する。
func (m *Manager) Store(ctx context.Context, state, userID string) error {
	record := stateRecord{
		CreatedAt: m.now(),
		UserID:    userID,
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	if err := m.store.Put(ctx, stateKeyPrefix+state, value, stateTTL); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}

	return nil
}

// Verify はstateを検証する。コールバック検証時に一度だけ呼ばれ、
// 読み出しと同時にレコードを削除することで再利用を不可能にする。
// 未知・使用済み・期限切れのstateに対してはfalseを返す。
func (m *Manager) Verify(ctx context.Context, state string) bool {
	key := stateKeyPrefix + state

	value, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Error("failed to read oauth state",
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		return false
	}

	// 読み出し直後に削除し、同じstateでの再検証を不可能にする
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Error("failed to delete oauth state",
			slog.String("error", err.Error()),
		)
		return false
	}

	var record stateRecord
	if err := json.Unmarshal(value, &record); err != nil {
		m.logger.Error("failed to unmarshal oauth state record",
			slog.String("error", err.Error()),
		)
		return false
	}

	// ストアのTTLに加えて発行からの経過時間でも検証する
	return m.now().Sub(record.CreatedAt) < stateTTL
}
