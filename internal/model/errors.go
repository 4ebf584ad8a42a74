// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, sync, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNoToken            = "NO_TOKEN"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeInvalidOAuthState  = "INVALID_OAUTH_STATE"
	ErrCodeUpstreamResource   = "UPSTREAM_RESOURCE_ERROR"
	ErrCodeNoSyncData         = "NO_SYNC_DATA"
	ErrCodeSyncFailed         = "SYNC_FAILED"
)

// NewNoTokenError は認可トークン未提示エラーを生成する。
func NewNoTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeNoToken,
		Message:  "認可トークンが指定されていません。",
		Category: "auth",
		Action:   "Authorization: Bearer ヘッダーにセッショントークンを指定してください。",
	}
}

// NewInvalidTokenError はセッショントークン不正エラーを生成する。
// 署名不正・期限切れ・形式不正のいずれの場合もこのエラーになる。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "セッショントークンが無効または期限切れです。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewNotAuthenticatedError はClickUp連携未認証エラーを生成する。
// セッショントークン自体は有効だが、ClickUp側の認可が存在しない状態。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ClickUpとの連携が完了していません。",
		Category: "auth",
		Action:   "ClickUpのOAuth認証フローを完了してください。",
	}
}

// NewStorageUnavailableError は耐久ストレージ未構成エラーを生成する。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "耐久ストレージが利用できないため、この操作を実行できません。",
		Category: "system",
		Action:   "DATABASE_URLを設定してサーバーを再起動してください。",
	}
}

// NewInvalidOAuthStateError はOAuth state検証失敗エラーを生成する。
// 未知・使用済み・期限切れのいずれの場合もこのエラーになる。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOAuthState,
		Message:  "OAuth stateの検証に失敗しました。",
		Category: "auth",
		Action:   "認証フローを最初からやり直してください。",
	}
}

// NewNoSyncDataError は同期データ未存在エラーを生成する。
func NewNoSyncDataError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSyncData,
		Message:  "同期データがありません。先に同期を実行してください。",
		Category: "sync",
		Action:   "POST /api/v1/sync を呼び出してから再度お試しください。",
	}
}

// NewSyncFailedError は同期処理の失敗エラーを生成する。
func NewSyncFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("データ同期に失敗しました: %s", reason),
		Category: "sync",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
