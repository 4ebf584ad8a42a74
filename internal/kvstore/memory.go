package kvstore

import (
	"context"
	"sync"
	"time"
)

// memoryEntry はインプロセスストアの1エントリ。
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore はインプロセスマップによるStore実装。
// 耐久バックエンドが利用できない環境でのフォールバック先。
// 期限切れチェックは読み出し時の遅延評価と、バックグラウンドの
// 定期掃除の両方で行う。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	stopCh   chan struct{}
	stopOnce sync.Once

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewMemoryStore はMemoryStoreを生成し、バックグラウンドで
// 期限切れエントリの掃除を開始する。
// sweepIntervalが0以下の場合はデフォルト値10分を使用する。
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}

	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go s.sweepLoop(sweepInterval)

	return s
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Put はキーに値をTTL付きで書き込む。
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// 呼び出し元のスライス再利用による破壊を防ぐ
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		value:     v,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Get はキーの値を取得する。期限切れのエントリはその場で削除し、
// 存在しないものとして扱う。
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		// 再確認: RLock解放後に上書きされた可能性がある
		if e, ok := s.entries[key]; ok && !s.now().Before(e.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Delete はキーを削除する。対象が存在しなくても成功扱い。
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Exists はキーが存在し期限内であるかを返す。
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Len は現在保持しているエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// sweepLoop はバックグラウンドで期限切れエントリを定期的に削除する。
func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep は期限切れの全エントリを削除する。
func (s *MemoryStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
