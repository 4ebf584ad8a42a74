package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskflow/internal/dashboard"
	"github.com/hitoshi/taskflow/internal/middleware"
	"github.com/hitoshi/taskflow/internal/model"
)

// DashboardServiceInterface はダッシュボード集約のインターフェース。
type DashboardServiceInterface interface {
	BuildDashboard(ctx context.Context, userID, teamID string) (*model.DashboardView, error)
}

// DashboardHandler はダッシュボード読み出し関連のHTTPハンドラー。
// すべて最後の同期で保存されたスナップショットから計算する。
// ClickUp APIは呼ばない。
type DashboardHandler struct {
	aggregator DashboardServiceInterface
	logger     *slog.Logger
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(aggregator DashboardServiceInterface, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		aggregator: aggregator,
		logger:     logger,
	}
}

// Dashboard はKPI・タスク・チーム・アクティビティを含む
// ダッシュボードビュー全体を返す。
// GET /api/v1/dashboard?team_id=xxx
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	view, ok := h.buildView(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Tasks は最後の同期で取得したタスク一覧を返す。
// GET /api/v1/tasks?team_id=xxx
func (h *DashboardHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	view, ok := h.buildView(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":     view.Tasks,
		"last_sync": view.LastSync,
	})
}

// Team は最後の同期で取得したチームメンバー一覧を返す。
// GET /api/v1/team?team_id=xxx
func (h *DashboardHandler) Team(w http.ResponseWriter, r *http.Request) {
	view, ok := h.buildView(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"team":      view.Team,
		"last_sync": view.LastSync,
	})
}

// buildView はダッシュボードビューを構築し、エラー時はレスポンスを
// 書き込んでfalseを返す。
func (h *DashboardHandler) buildView(w http.ResponseWriter, r *http.Request) (*model.DashboardView, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return nil, false
	}

	teamID := r.URL.Query().Get("team_id")

	view, err := h.aggregator.BuildDashboard(r.Context(), userID, teamID)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoSyncData) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNoSyncDataError())
			return nil, false
		}
		h.logger.Error("ダッシュボードの構築に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return nil, false
	}

	return view, true
}
