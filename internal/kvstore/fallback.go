package kvstore

import (
	"context"
	"log/slog"
	"time"
)

// FallbackStore は耐久バックエンドとインプロセスストアを合成したStore。
// 起動時に1回構築してコンポーネントに注入する。各コンポーネントが
// バックエンドの可用性を個別に検知することはない。
//
// 耐久バックエンドへの操作が失敗した場合、エラーを上位へ伝播させず
// 透過的にインプロセスストアへフォールバックする。耐久ストレージを
// 必須とする呼び出し元（トークン保存）はDurable()を直接使用する。
type FallbackStore struct {
	durable Store // nilの場合はインメモリのみで動作する
	memory  *MemoryStore
	logger  *slog.Logger
}

// NewFallbackStore はFallbackStoreを生成する。
// durableがnilの場合、全操作はmemoryに対して行われる。
func NewFallbackStore(durable Store, memory *MemoryStore, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		durable: durable,
		memory:  memory,
		logger:  logger,
	}
}

// Durable は耐久バックエンドを返す。未構成の場合はnil。
// トークン保存のようにフォールバックを拒否する操作のためのアクセサ。
func (s *FallbackStore) Durable() Store {
	return s.durable
}

// Put はキーに値を書き込む。耐久バックエンドへの書き込みが失敗した
// 場合はインプロセスストアに書き込む。
func (s *FallbackStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.durable != nil {
		err := s.durable.Put(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		s.logger.Warn("durable store put failed, falling back to memory",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return s.memory.Put(ctx, key, value, ttl)
}

// Get はキーの値を取得する。耐久バックエンドで見つからない、または
// エラーの場合はインプロセスストアを確認する。
func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.durable != nil {
		value, ok, err := s.durable.Get(ctx, key)
		if err != nil {
			s.logger.Warn("durable store get failed, falling back to memory",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return value, true, nil
		}
	}
	return s.memory.Get(ctx, key)
}

// Delete は両ストアからキーを削除する。ベストエフォート。
func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	if s.durable != nil {
		if err := s.durable.Delete(ctx, key); err != nil {
			s.logger.Warn("durable store delete failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.memory.Delete(ctx, key)
}

// Exists はいずれかのストアにキーが存在し期限内であるかを返す。
func (s *FallbackStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.durable != nil {
		ok, err := s.durable.Exists(ctx, key)
		if err != nil {
			s.logger.Warn("durable store exists check failed, falling back to memory",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return true, nil
		}
	}
	return s.memory.Exists(ctx, key)
}

// compile-time interface check
var _ Store = (*FallbackStore)(nil)
