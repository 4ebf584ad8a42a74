// Package session は署名付きセッショントークンの発行・検証と
// セッションレコードの保管、認証状態の判定を提供する。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/model"
)

const (
	// sessionKeyPrefix はセッションレコードのキープレフィックス。
	sessionKeyPrefix = "session:"
	// sessionTTL はセッションの有効期間（24時間 = 86400秒）。
	sessionTTL = 24 * time.Hour
	// tokenIssuer はJWTのissuerクレーム。
	tokenIssuer = "TaskFlow"
)

// ErrInvalidToken は署名不正・期限切れ・形式不正のセッショントークンを表す。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンに埋め込まれるクレーム。
type Claims struct {
	UserID string            `json:"user_id"`
	User   model.UserProfile `json:"user"`
	jwt.RegisteredClaims
}

// TokenChecker はClickUpトークンレコードの存在確認インターフェース。
// vault.Vaultの部分集合として定義する。
type TokenChecker interface {
	HasToken(ctx context.Context, userID string) (bool, error)
}

// Manager はセッションのライフサイクルを管理する。
type Manager struct {
	store  kvstore.Store
	tokens TokenChecker
	secret []byte
	logger *slog.Logger

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewManager はManagerを生成する。
// storeにはフォールバックセマンティクスを持つストアを渡す想定。
func NewManager(store kvstore.Store, tokens TokenChecker, secret []byte, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		tokens: tokens,
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// IssueSessionToken はユーザーIDとプロフィールを束ねた署名付き
// セッショントークン（HS256、24時間有効）を発行する。
func (m *Manager) IssueSessionToken(userID string, profile model.UserProfile) (string, error) {
	now := m.now()

	claims := Claims{
		UserID: userID,
		User:   profile,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// VerifySessionToken はセッショントークンの署名と有効期限を検証し、
// クレームを返す。検証に失敗した場合はErrInvalidTokenを返す。
func (m *Manager) VerifySessionToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// StoreSession はセッションレコードを24時間のTTL付きで保存する。
func (m *Manager) StoreSession(ctx context.Context, userID string, profile model.UserProfile) (*model.Session, error) {
	now := m.now()
	session := &model.Session{
		UserID:    userID,
		User:      profile,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}

	value, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.store.Put(ctx, sessionKeyPrefix+userID, value, sessionTTL); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// GetSession はセッションレコードを取得する。存在しない・期限切れの
// 場合はnilを返す。ストアのTTLに加えてレコード自身のExpiresAtも
// 確認し、期限切れセッションが決して読み出せないことを保証する。
func (m *Manager) GetSession(ctx context.Context, userID string) (*model.Session, error) {
	value, ok, err := m.store.Get(ctx, sessionKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var session model.Session
	if err := json.Unmarshal(value, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if !m.now().Before(session.ExpiresAt) {
		// 遅延期限切れ: レコードを破棄して未存在として扱う
		if err := m.store.Delete(ctx, sessionKeyPrefix+userID); err != nil {
			m.logger.Warn("failed to delete expired session",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}

	return &session, nil
}

// RemoveSession はセッションレコードを削除する。
func (m *Manager) RemoveSession(ctx context.Context, userID string) error {
	if err := m.store.Delete(ctx, sessionKeyPrefix+userID); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// IsAuthenticated は有効なセッションと有効なトークンレコードの両方が
// 存在する場合にのみtrueを返す。ClickUp側の認可が取り消された
// （トークンが削除された）ユーザーは、セッションが残っていても
// 認証済みとは見なされない。
func (m *Manager) IsAuthenticated(ctx context.Context, userID string) (bool, error) {
	session, err := m.GetSession(ctx, userID)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	hasToken, err := m.tokens.HasToken(ctx, userID)
	if err != nil {
		return false, err
	}

	return hasToken, nil
}

// AuthStatus は認証状態の内訳。
type AuthStatus struct {
	Authenticated  bool       `json:"authenticated"`
	HasSession     bool       `json:"hasSession"`
	HasTokens      bool       `json:"hasTokens"`
	SessionCreated *time.Time `json:"sessionCreated,omitempty"`
}

// GetAuthStatus は認証状態の内訳を返す。ステータスエンドポイント用。
func (m *Manager) GetAuthStatus(ctx context.Context, userID string) (*AuthStatus, error) {
	session, err := m.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	hasToken, err := m.tokens.HasToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &AuthStatus{
		Authenticated: session != nil && hasToken,
		HasSession:    session != nil,
		HasTokens:     hasToken,
	}
	if session != nil {
		status.SessionCreated = &session.CreatedAt
	}

	return status, nil
}
