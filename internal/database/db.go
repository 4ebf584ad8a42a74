package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はkv_entriesテーブルを保持するPostgreSQLへの接続を開く。
// databaseURLが未設定の環境ではこの関数を呼ばず、インメモリストレージのみで
// 起動する（app.runServe参照）。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
