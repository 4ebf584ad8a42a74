// Package kvstore はTTL付きキーバリューストレージの抽象と実装を提供する。
// 耐久バックエンド（PostgreSQL）とインプロセスのフォールバックマップの
// 2実装が同一インターフェースで差し替え可能。
package kvstore

import (
	"context"
	"time"
)

// Store はTTL付きキーバリューストレージのインターフェース。
// 全ての永続化バイト列はこの抽象の背後に置かれ、上位エンティティは
// ここからの読み出しを型付きビューとして具現化する。
type Store interface {
	// Put はキーに値をTTL付きで書き込む。既存キーは上書きされる。
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get はキーの値を取得する。存在しない、または期限切れの場合はfalseを返す。
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete はキーを削除する。キーが存在しなくてもエラーにしない。
	Delete(ctx context.Context, key string) error
	// Exists はキーが存在し期限内であるかを返す。
	Exists(ctx context.Context, key string) (bool, error)
}
