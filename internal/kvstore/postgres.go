package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore はPostgreSQLを耐久バックエンドとするStore実装。
// 読み出しは expires_at > now() でフィルタする遅延期限切れ方式。
// 期限切れ行の物理削除はworker/cleanupの掃除ジョブが担う。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put はキーに値をTTL付きでUPSERTする。
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at)
		 VALUES ($1, $2, now() + $3 * interval '1 second')
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value,
		     expires_at = EXCLUDED.expires_at,
		     updated_at = now()`,
		key, value, ttl.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to put kv entry: %w", err)
	}
	return nil
}

// Get はキーの値を取得する。期限切れの行は存在しないものとして扱う。
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries
		 WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get kv entry: %w", err)
	}

	return value, true, nil
}

// Delete はキーを削除する。対象が存在しなくても成功扱い。
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// Exists はキーが存在し期限内であるかを返す。
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM kv_entries
		   WHERE key = $1 AND expires_at > now()
		 )`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check kv entry: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
