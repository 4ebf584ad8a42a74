package handler

import (
	"net/http"
	"time"
)

// ストレージモードのラベル。
const (
	StorageModePostgres = "postgres"
	StorageModeMemory   = "memory"
)

// HealthHandler は稼働確認エンドポイントを提供する。
// 認証不要で、ロードバランサーや監視からのポーリングを想定する。
type HealthHandler struct {
	service     string
	version     string
	storageMode string

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
// storageModeにはStorageModePostgresまたはStorageModeMemoryを指定する。
func NewHealthHandler(service, version, storageMode string) *HealthHandler {
	return &HealthHandler{
		service:     service,
		version:     version,
		storageMode: storageMode,
		now:         time.Now,
	}
}

// Health はサービスの稼働状態を返す。
// GET /health および GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"service":   h.service,
		"version":   h.version,
		"storage":   h.storageMode,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
