package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- モック定義 ---

type mockStore struct {
	putFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	getFn    func(ctx context.Context, key string) ([]byte, bool, error)
	deleteFn func(ctx context.Context, key string) error
	existsFn func(ctx context.Context, key string) (bool, error)
}

func (m *mockStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.putFn != nil {
		return m.putFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, false, nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

var _ Store = (*mockStore)(nil)

// --- テスト ---

func TestFallbackStore_PutFallsBackOnDurableError(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)

	durable := &mockStore{
		putFn: func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
			return errors.New("connection refused")
		},
	}

	s := NewFallbackStore(durable, memory, nil)

	if err := s.Put(ctx, "session:u1", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v, want nil (transparent fallback)", err)
	}

	// フォールバック先のインプロセスストアに書かれている
	value, ok, _ := memory.Get(ctx, "session:u1")
	if !ok || string(value) != "v" {
		t.Errorf("memory.Get() = (%q, %v), want (\"v\", true)", value, ok)
	}
}

func TestFallbackStore_GetPrefersDurable(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)
	memory.Put(ctx, "k", []byte("stale"), time.Minute)

	durable := &mockStore{
		getFn: func(ctx context.Context, key string) ([]byte, bool, error) {
			return []byte("fresh"), true, nil
		},
	}

	s := NewFallbackStore(durable, memory, nil)

	value, ok, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || string(value) != "fresh" {
		t.Errorf("Get() = (%q, %v), want (\"fresh\", true)", value, ok)
	}
}

func TestFallbackStore_GetChecksMemoryOnDurableMiss(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)
	memory.Put(ctx, "k", []byte("memory-only"), time.Minute)

	durable := &mockStore{} // 常にmiss

	s := NewFallbackStore(durable, memory, nil)

	value, ok, _ := s.Get(ctx, "k")
	if !ok || string(value) != "memory-only" {
		t.Errorf("Get() = (%q, %v), want (\"memory-only\", true)", value, ok)
	}
}

func TestFallbackStore_GetChecksMemoryOnDurableError(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)
	memory.Put(ctx, "k", []byte("v"), time.Minute)

	durable := &mockStore{
		getFn: func(ctx context.Context, key string) ([]byte, bool, error) {
			return nil, false, errors.New("connection refused")
		},
	}

	s := NewFallbackStore(durable, memory, nil)

	_, ok, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v, want nil (transparent fallback)", err)
	}
	if !ok {
		t.Error("Get() ok = false, want true from memory fallback")
	}
}

func TestFallbackStore_NilDurableUsesMemoryOnly(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)

	s := NewFallbackStore(nil, memory, nil)

	if s.Durable() != nil {
		t.Error("Durable() != nil, want nil")
	}

	if err := s.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Error("Exists() = false, want true")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("Exists() after delete = true, want false")
	}
}

func TestFallbackStore_DeleteRemovesFromBothStores(t *testing.T) {
	ctx := context.Background()
	memory := newTestMemoryStore(t)
	memory.Put(ctx, "k", []byte("v"), time.Minute)

	var durableDeleted bool
	durable := &mockStore{
		deleteFn: func(ctx context.Context, key string) error {
			durableDeleted = true
			return nil
		},
	}

	s := NewFallbackStore(durable, memory, nil)

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !durableDeleted {
		t.Error("durable delete was not called")
	}
	if ok, _ := memory.Exists(ctx, "k"); ok {
		t.Error("memory still holds key after Delete()")
	}
}
