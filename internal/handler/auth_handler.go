// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/taskflow/internal/clickup"
	"github.com/hitoshi/taskflow/internal/middleware"
	"github.com/hitoshi/taskflow/internal/model"
	"github.com/hitoshi/taskflow/internal/session"
)

// デモログイン用の固定ユーザー。実際のClickUp認可を経ずにセッションを試せる。
const (
	demoUserID   = "demo_user_12345"
	demoUsername = "demo_user"
	demoEmail    = "demo@taskflow.com"
)

// OAuthStateService はOAuth stateの発行・保存・検証インターフェース。
type OAuthStateService interface {
	Issue() (string, error)
	Store(ctx context.Context, state, userID string) error
	Verify(ctx context.Context, state string) bool
}

// OAuthExchanger はClickUpのOAuthフロー操作のインターフェース。
// clickup.Clientの部分集合として定義する。
type OAuthExchanger interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*clickup.TokenResponse, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*clickup.User, error)
}

// TokenVaultService はトークンレコードの保管インターフェース。
type TokenVaultService interface {
	StoreToken(ctx context.Context, userID string, data model.TokenData) error
	RemoveToken(ctx context.Context, userID string) error
}

// SessionService はセッション操作のインターフェース。
// session.Managerの部分集合として定義する。
type SessionService interface {
	IssueSessionToken(userID string, profile model.UserProfile) (string, error)
	StoreSession(ctx context.Context, userID string, profile model.UserProfile) (*model.Session, error)
	RemoveSession(ctx context.Context, userID string) error
	GetAuthStatus(ctx context.Context, userID string) (*session.AuthStatus, error)
}

// AutoSyncService はユーザー単位の自動同期タイマーの操作インターフェース。
type AutoSyncService interface {
	Start(userID string, interval time.Duration)
	Stop(userID string)
	IsRunning(userID string) bool
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// AppURL はOAuth完了後のリダイレクト先（フロントエンド）。
	AppURL string
	// AutoSyncInterval は認証完了時に開始する自動同期の間隔。
	AutoSyncInterval time.Duration
}

// AuthHandler はClickUp OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	states   OAuthStateService
	exchange OAuthExchanger
	vault    TokenVaultService
	sessions SessionService
	syncer   SyncServiceInterface
	autoSync AutoSyncService
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	states OAuthStateService,
	exchange OAuthExchanger,
	vault TokenVaultService,
	sessions SessionService,
	syncer SyncServiceInterface,
	autoSync AutoSyncService,
	config AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	if config.AutoSyncInterval <= 0 {
		config.AutoSyncInterval = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		states:   states,
		exchange: exchange,
		vault:    vault,
		sessions: sessions,
		syncer:   syncer,
		autoSync: autoSync,
		config:   config,
		logger:   logger,
	}
}

// Authorize はClickUp OAuthフローを開始する。
// 単回使用のstateを発行・保存し、認可画面のURLを返す。
// GET /api/v1/auth/clickup/authorize
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue()
	if err != nil {
		h.logger.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.states.Store(r.Context(), state, ""); err != nil {
		h.logger.Error("failed to store oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": h.exchange.AuthorizationURL(state),
		"state":             state,
		"message":           "authorization_urlにリダイレクトしてClickUp認証を完了してください。",
	})
}

// Callback はOAuthコールバックを処理する。
//  1. stateの単回使用検証
//  2. 認可コードをアクセストークンに交換
//  3. ユーザープロフィールの取得
//  4. トークン保管・セッション作成・セッショントークン発行
//  5. 自動同期の開始とフロントエンドへのリダイレクト
//
// GET /api/v1/auth/clickup/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_CODE",
			Message:  "認可コードが指定されていません。",
			Category: "auth",
			Action:   "認証フローを最初からやり直してください。",
		})
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		if !h.states.Verify(r.Context(), state) {
			h.logger.Warn("oauth state verification failed")
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidOAuthStateError())
			return
		}
	}

	tokenResp, err := h.exchange.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange failed", slog.String("error", err.Error()))
		h.redirectError(w, r, "トークン交換に失敗しました")
		return
	}

	user, err := h.exchange.GetCurrentUser(r.Context(), tokenResp.AccessToken)
	if err != nil {
		h.logger.Error("failed to fetch user profile", slog.String("error", err.Error()))
		h.redirectError(w, r, "ユーザー情報の取得に失敗しました")
		return
	}

	profile := clickup.TransformUser(*user)

	if err := h.vault.StoreToken(r.Context(), profile.ID, model.TokenData{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		Scope:       tokenResp.Scope,
	}); err != nil {
		h.logger.Error("failed to store clickup token", slog.String("error", err.Error()))
		h.redirectError(w, r, "トークンの保存に失敗しました")
		return
	}

	if _, err := h.sessions.StoreSession(r.Context(), profile.ID, profile); err != nil {
		h.logger.Error("failed to store session", slog.String("error", err.Error()))
		h.redirectError(w, r, "セッションの作成に失敗しました")
		return
	}

	sessionToken, err := h.sessions.IssueSessionToken(profile.ID, profile)
	if err != nil {
		h.logger.Error("failed to issue session token", slog.String("error", err.Error()))
		h.redirectError(w, r, "セッショントークンの発行に失敗しました")
		return
	}

	h.autoSync.Start(profile.ID, h.config.AutoSyncInterval)

	h.logger.Info("OAuth認証が完了しました",
		slog.String("user_id", profile.ID),
		slog.String("username", profile.Username),
	)

	http.Redirect(w, r, h.config.AppURL+"?auth=success&token="+url.QueryEscape(sessionToken), http.StatusFound)
}

// Demo はClickUp認可を経ないデモログインを提供する。
// 固定のデモユーザーでセッションとプレースホルダートークンを作成して
// フロントエンドにリダイレクトする。プレースホルダートークンは認証
// ゲートを通すためのもので、実際のClickUp APIには使えない（同期は
// 上流エラーになる）。
// GET /api/v1/auth/demo
func (h *AuthHandler) Demo(w http.ResponseWriter, r *http.Request) {
	profile := model.UserProfile{
		ID:       demoUserID,
		Username: demoUsername,
		Email:    demoEmail,
	}

	if _, err := h.sessions.StoreSession(r.Context(), profile.ID, profile); err != nil {
		h.logger.Error("failed to store demo session", slog.String("error", err.Error()))
		h.redirectError(w, r, "デモログインに失敗しました")
		return
	}

	// 耐久ストレージが無い環境ではトークンを保存できないため、
	// ベストエフォートとして扱う
	if err := h.vault.StoreToken(r.Context(), profile.ID, model.TokenData{
		AccessToken: "demo_token",
		TokenType:   "Bearer",
	}); err != nil {
		h.logger.Warn("failed to store demo token", slog.String("error", err.Error()))
	}

	sessionToken, err := h.sessions.IssueSessionToken(profile.ID, profile)
	if err != nil {
		h.logger.Error("failed to issue demo session token", slog.String("error", err.Error()))
		h.redirectError(w, r, "デモログインに失敗しました")
		return
	}

	http.Redirect(w, r, h.config.AppURL+"?auth=success&token="+url.QueryEscape(sessionToken)+"&demo=true", http.StatusFound)
}

// Status は認証状態と最終同期の概要を返す。
// GET /api/v1/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	status, err := h.sessions.GetAuthStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get auth status", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	resp := map[string]interface{}{
		"authenticated": status.Authenticated,
		"user_id":       userID,
		"has_session":   status.HasSession,
		"has_tokens":    status.HasTokens,
		"sync_status":   "pending",
	}

	if result, err := h.syncer.GetSyncResult(r.Context(), userID); err == nil && result != nil {
		resp["last_sync"] = result.Timestamp
		resp["sync_status"] = "completed"
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout はセッションとトークンレコードを破棄し、自動同期を停止する。
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	if err := h.sessions.RemoveSession(r.Context(), userID); err != nil {
		h.logger.Error("failed to remove session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.vault.RemoveToken(r.Context(), userID); err != nil {
		h.logger.Error("failed to remove token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.autoSync.Stop(userID)

	h.logger.Info("ログアウトしました", slog.String("user_id", userID))

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "ログアウトしました。",
	})
}

// redirectError はエラーメッセージ付きでフロントエンドにリダイレクトする。
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, h.config.AppURL+"?auth=error&message="+url.QueryEscape(message), http.StatusFound)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
