package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskflow/internal/middleware"
	"github.com/hitoshi/taskflow/internal/model"
	taskflowsync "github.com/hitoshi/taskflow/internal/sync"
)

// SyncServiceInterface は同期オーケストレーターのインターフェース。
type SyncServiceInterface interface {
	SyncUser(ctx context.Context, userID string) (*model.SyncResult, error)
	GetSyncResult(ctx context.Context, userID string) (*model.SyncResult, error)
}

// SyncHandler はデータ同期関連のHTTPハンドラー。
type SyncHandler struct {
	syncer   SyncServiceInterface
	autoSync AutoSyncService
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(syncer SyncServiceInterface, autoSync AutoSyncService, interval time.Duration, logger *slog.Logger) *SyncHandler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		syncer:   syncer,
		autoSync: autoSync,
		interval: interval,
		logger:   logger,
	}
}

// Sync は手動同期を実行する。
// チーム単位の部分失敗は結果のerrorsに現れ、HTTPとしては200を返す。
// POST /api/v1/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	result, err := h.syncer.SyncUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, taskflowsync.ErrNotAuthenticated) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
			return
		}
		h.logger.Error("同期に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewSyncFailedError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "同期が完了しました。",
		"result":  result,
	})
}

// SyncStatus は最後の同期の概要を返す。
// GET /api/v1/sync/status
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	result, err := h.syncer.GetSyncResult(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read sync result", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if result == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "no_sync",
			"message": "まだ同期が実行されていません。",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "completed",
		"last_sync":     result.Timestamp,
		"total_tasks":   result.TotalTasks,
		"total_members": result.TotalMembers,
		"teams":         len(result.Teams),
		"errors":        result.Errors,
	})
}

// StartAutoSync はユーザーの自動同期タイマーを開始する。
// 既に動作中のタイマーは新しいタイマーに置き換えられる。
// リクエストボディのinterval_minutesで間隔を上書きできる（省略時はデフォルト）。
// POST /api/v1/sync/auto/start
func (h *SyncHandler) StartAutoSync(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	interval := h.interval
	var body struct {
		IntervalMinutes int `json:"interval_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.IntervalMinutes > 0 {
		interval = time.Duration(body.IntervalMinutes) * time.Minute
	}

	h.autoSync.Start(userID, interval)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "自動同期を開始しました。",
		"interval_minutes": int(interval.Minutes()),
	})
}

// StopAutoSync はユーザーの自動同期タイマーを停止する。
// POST /api/v1/sync/auto/stop
func (h *SyncHandler) StopAutoSync(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return
	}

	h.autoSync.Stop(userID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "自動同期を停止しました。",
	})
}
