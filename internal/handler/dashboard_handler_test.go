package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/taskflow/internal/dashboard"
	"github.com/hitoshi/taskflow/internal/middleware"
	"github.com/hitoshi/taskflow/internal/model"
)

type mockDashboardService struct {
	buildDashboardFn func(ctx context.Context, userID, teamID string) (*model.DashboardView, error)
}

func (m *mockDashboardService) BuildDashboard(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
	if m.buildDashboardFn != nil {
		return m.buildDashboardFn(ctx, userID, teamID)
	}
	return &model.DashboardView{}, nil
}

var _ DashboardServiceInterface = (*mockDashboardService)(nil)

func sampleView() *model.DashboardView {
	return &model.DashboardView{
		KPIs: model.KPISet{
			TotalTasks:     3,
			CompletedTasks: 1,
		},
		Tasks: []model.Task{
			{ID: "t1", Title: "設計レビュー", Status: model.TaskStatusCompleted},
			{ID: "t2", Title: "実装", Status: model.TaskStatusInProgress},
			{ID: "t3", Title: "テスト", Status: model.TaskStatusPending},
		},
		Team: []model.Member{
			{ID: 1, Name: "taro", CurrentTasks: 2, MaxTasks: 8, WorkloadPercentage: 25},
		},
		Activities: []model.Activity{
			{ID: "t1", Type: "completed", User: "taro", Task: "設計レビュー", Time: "5分前"},
		},
		LastSync: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDashboard_ReturnsFullView(t *testing.T) {
	svc := &mockDashboardService{
		buildDashboardFn: func(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
			if userID != "user1" {
				t.Errorf("userID = %q, want user1", userID)
			}
			return sampleView(), nil
		},
	}
	h := NewDashboardHandler(svc, nil)

	req := requestWithUserID(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil), "user1")
	w := httptest.NewRecorder()

	h.Dashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var view model.DashboardView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if view.KPIs.TotalTasks != 3 {
		t.Errorf("kpis.totalTasks = %d, want 3", view.KPIs.TotalTasks)
	}
	if len(view.Tasks) != 3 {
		t.Errorf("len(tasks) = %d, want 3", len(view.Tasks))
	}
	if len(view.Team) != 1 {
		t.Errorf("len(team) = %d, want 1", len(view.Team))
	}
	if len(view.Activities) != 1 {
		t.Errorf("len(activities) = %d, want 1", len(view.Activities))
	}
}

func TestDashboard_NoSyncDataReturns404(t *testing.T) {
	svc := &mockDashboardService{
		buildDashboardFn: func(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
			return nil, dashboard.ErrNoSyncData
		},
	}
	h := NewDashboardHandler(svc, nil)

	req := requestWithUserID(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil), "user1")
	w := httptest.NewRecorder()

	h.Dashboard(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var errBody middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&errBody); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if errBody.Code != "NO_SYNC_DATA" {
		t.Errorf("code = %q, want NO_SYNC_DATA", errBody.Code)
	}
}

func TestDashboard_PassesTeamFilter(t *testing.T) {
	var gotTeamID string
	svc := &mockDashboardService{
		buildDashboardFn: func(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
			gotTeamID = teamID
			return sampleView(), nil
		},
	}
	h := NewDashboardHandler(svc, nil)

	req := requestWithUserID(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard?team_id=team42", nil), "user1")
	w := httptest.NewRecorder()

	h.Dashboard(w, req)

	if gotTeamID != "team42" {
		t.Errorf("teamID = %q, want team42", gotTeamID)
	}
}

func TestTasks_ReturnsTasksWithLastSync(t *testing.T) {
	svc := &mockDashboardService{
		buildDashboardFn: func(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
			return sampleView(), nil
		},
	}
	h := NewDashboardHandler(svc, nil)

	req := requestWithUserID(httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil), "user1")
	w := httptest.NewRecorder()

	h.Tasks(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeJSONBody(t, w)
	if tasks, ok := body["tasks"].([]interface{}); !ok || len(tasks) != 3 {
		t.Errorf("tasks = %v, want 3 entries", body["tasks"])
	}
	if body["last_sync"] == nil {
		t.Error("last_sync should be set")
	}
}

func TestTeam_ReturnsMembersWithLastSync(t *testing.T) {
	svc := &mockDashboardService{
		buildDashboardFn: func(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
			return sampleView(), nil
		},
	}
	h := NewDashboardHandler(svc, nil)

	req := requestWithUserID(httptest.NewRequest(http.MethodGet, "/api/v1/team", nil), "user1")
	w := httptest.NewRecorder()

	h.Team(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeJSONBody(t, w)
	if team, ok := body["team"].([]interface{}); !ok || len(team) != 1 {
		t.Errorf("team = %v, want 1 entry", body["team"])
	}
	if body["last_sync"] == nil {
		t.Error("last_sync should be set")
	}
}
