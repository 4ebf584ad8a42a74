// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/taskflow/internal/model"
	"github.com/hitoshi/taskflow/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// claimsContextKey はリクエストコンテキストにセッションクレームを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// TokenVerifier はセッショントークンの検証インターフェース。
// session.Managerの部分集合として定義する。
type TokenVerifier interface {
	VerifySessionToken(tokenString string) (*session.Claims, error)
}

// Authenticator は認証状態の判定インターフェース。
// session.Managerの部分集合として定義する。
type Authenticator interface {
	IsAuthenticated(ctx context.Context, userID string) (bool, error)
}

// NewAuthMiddleware はAuthorization: Bearerヘッダーのセッショントークンを
// 検証するミドルウェアを返す。失敗は3種類に分類される。
//   - トークン未提示: 401 NO_TOKEN
//   - 署名不正・期限切れ・形式不正: 401 INVALID_TOKEN
//   - トークンは有効だがセッションまたはClickUpトークンが無い: 401 NOT_AUTHENTICATED
//
// 通過したリクエストのコンテキストにはユーザーIDとクレームが注入される。
func NewAuthMiddleware(verifier TokenVerifier, auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Bearerトークンの取り出し
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
				return
			}

			// 2. 署名と有効期限の検証
			claims, err := verifier.VerifySessionToken(token)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			// 3. セッションとClickUpトークンの存在確認
			authenticated, err := auth.IsAuthenticated(r.Context(), claims.UserID)
			if err != nil {
				WriteInternalServerError(w)
				return
			}
			if !authenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
				return
			}

			// 4. 認証済みユーザーIDとクレームをコンテキストに注入
			ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID)
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ClaimsFromContext はリクエストコンテキストからセッションクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*session.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*session.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("session claims not found in context")
	}
	return claims, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
