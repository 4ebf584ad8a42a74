// Package model はドメインモデルを定義する。
package model

import "time"

// UserProfile はセッションに紐づくユーザープロフィールのスナップショット。
type UserProfile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Color          string `json:"color,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Session はユーザーのログインセッションを表す。
// ExpiresAtを過ぎたセッションは読み出し不能として扱う。
type Session struct {
	UserID    string      `json:"user_id"`
	User      UserProfile `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// TokenData はClickUpのOAuthトークン交換レスポンス（平文）。
// 保存前に必ずTokenVaultで暗号化される。
type TokenData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// TokenRecord は暗号化済みアクセストークンと付随メタデータ。
// 平文トークンは決して永続化されない。鍵素材はプロセス設定であり、
// 暗号文と並べて保存されることはない。
type TokenRecord struct {
	UserID     string    `json:"user_id"`
	Ciphertext string    `json:"ciphertext"` // base64
	Nonce      string    `json:"nonce"`      // base64
	TokenType  string    `json:"token_type"`
	Scope      string    `json:"scope"`
	CreatedAt  time.Time `json:"created_at"`
}
