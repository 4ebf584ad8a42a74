package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/taskflow/internal/clickup"
	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/model"
	"github.com/hitoshi/taskflow/internal/security"
)

// --- モック定義 ---

type mockAPIClient struct {
	getAuthorizedTeamsFn func(ctx context.Context, accessToken string) ([]clickup.Team, error)
	getTeamMembersFn     func(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error)
	getTeamTasksFn       func(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error)
	getSpacesFn          func(ctx context.Context, accessToken, teamID string) ([]clickup.Space, error)
	getFoldersFn         func(ctx context.Context, accessToken, spaceID string) ([]clickup.Folder, error)
	getListsFn           func(ctx context.Context, accessToken, folderID string) ([]clickup.List, error)
	getListTasksFn       func(ctx context.Context, accessToken, listID string) ([]clickup.Task, error)
}

func (m *mockAPIClient) GetAuthorizedTeams(ctx context.Context, accessToken string) ([]clickup.Team, error) {
	if m.getAuthorizedTeamsFn != nil {
		return m.getAuthorizedTeamsFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockAPIClient) GetTeamMembers(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error) {
	if m.getTeamMembersFn != nil {
		return m.getTeamMembersFn(ctx, accessToken, teamID)
	}
	return nil, nil
}

func (m *mockAPIClient) GetTeamTasks(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error) {
	if m.getTeamTasksFn != nil {
		return m.getTeamTasksFn(ctx, accessToken, teamID)
	}
	return nil, nil
}

func (m *mockAPIClient) GetSpaces(ctx context.Context, accessToken, teamID string) ([]clickup.Space, error) {
	if m.getSpacesFn != nil {
		return m.getSpacesFn(ctx, accessToken, teamID)
	}
	return nil, nil
}

func (m *mockAPIClient) GetFolders(ctx context.Context, accessToken, spaceID string) ([]clickup.Folder, error) {
	if m.getFoldersFn != nil {
		return m.getFoldersFn(ctx, accessToken, spaceID)
	}
	return nil, nil
}

func (m *mockAPIClient) GetLists(ctx context.Context, accessToken, folderID string) ([]clickup.List, error) {
	if m.getListsFn != nil {
		return m.getListsFn(ctx, accessToken, folderID)
	}
	return nil, nil
}

func (m *mockAPIClient) GetListTasks(ctx context.Context, accessToken, listID string) ([]clickup.Task, error) {
	if m.getListTasksFn != nil {
		return m.getListTasksFn(ctx, accessToken, listID)
	}
	return nil, nil
}

var _ APIClient = (*mockAPIClient)(nil)

type mockTokenSource struct {
	getTokenFn func(ctx context.Context, userID string) (*model.TokenData, error)
}

func (m *mockTokenSource) GetToken(ctx context.Context, userID string) (*model.TokenData, error) {
	if m.getTokenFn != nil {
		return m.getTokenFn(ctx, userID)
	}
	return nil, nil
}

var _ TokenSource = (*mockTokenSource)(nil)

// --- ヘルパー ---

func authenticatedTokens() *mockTokenSource {
	return &mockTokenSource{
		getTokenFn: func(ctx context.Context, userID string) (*model.TokenData, error) {
			return &model.TokenData{AccessToken: "tok_test", TokenType: "Bearer"}, nil
		},
	}
}

func newTestOrchestrator(t *testing.T, client APIClient, tokens TokenSource) (*Orchestrator, *kvstore.MemoryStore) {
	t.Helper()
	store := kvstore.NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)

	normalizer := clickup.NewNormalizer(security.NewContentSanitizer())
	o := NewOrchestrator(client, tokens, store, normalizer, nil, nil, 2, false)
	return o, store
}

func testTeams(n int) []clickup.Team {
	teams := make([]clickup.Team, 0, n)
	for i := 1; i <= n; i++ {
		teams = append(teams, clickup.Team{
			ID:   fmt.Sprintf("team%d", i),
			Name: fmt.Sprintf("チーム%d", i),
		})
	}
	return teams
}

// --- テスト ---

func TestSyncUser_RequiresToken(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, &mockAPIClient{}, &mockTokenSource{})

	_, err := o.SyncUser(ctx, "user1")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("SyncUser() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestSyncUser_TeamListFailureFailsWholeSync(t *testing.T) {
	ctx := context.Background()
	client := &mockAPIClient{
		getAuthorizedTeamsFn: func(ctx context.Context, accessToken string) ([]clickup.Team, error) {
			return nil, errors.New("upstream down")
		},
	}
	o, store := newTestOrchestrator(t, client, authenticatedTokens())

	if _, err := o.SyncUser(ctx, "user1"); err == nil {
		t.Fatal("SyncUser() error = nil, want error")
	}

	// チーム一覧の失敗では同期結果は保存されない
	if ok, _ := store.Exists(ctx, "sync_result:user1"); ok {
		t.Error("sync result stored despite team list failure")
	}
}

func TestSyncUser_HappyPath(t *testing.T) {
	ctx := context.Background()

	client := &mockAPIClient{
		getAuthorizedTeamsFn: func(ctx context.Context, accessToken string) ([]clickup.Team, error) {
			if accessToken != "tok_test" {
				t.Errorf("accessToken = %q, want tok_test", accessToken)
			}
			return testTeams(1), nil
		},
		getTeamTasksFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error) {
			return []clickup.Task{
				{ID: "t1", Name: "設計", Status: clickup.TaskStatus{Status: "in progress"},
					Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
				{ID: "t2", Name: "実装", Status: clickup.TaskStatus{Status: "to do"},
					Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
				{ID: "t3", Name: "リリース準備", Status: clickup.TaskStatus{Status: "complete"},
					Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
			}, nil
		},
		getTeamMembersFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error) {
			return []clickup.Member{{User: clickup.User{ID: 10, Username: "taro"}}}, nil
		},
	}

	o, store := newTestOrchestrator(t, client, authenticatedTokens())

	result, err := o.SyncUser(ctx, "user1")
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	if result.TotalTasks != 3 || result.TotalMembers != 1 {
		t.Errorf("totals = %d tasks / %d members, want 3 / 1", result.TotalTasks, result.TotalMembers)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", result.Errors)
	}
	if len(result.Teams) != 1 || result.Teams[0].TeamID != "team1" {
		t.Errorf("Teams = %+v, want single team1 summary", result.Teams)
	}

	// スナップショットと同期結果の両方が保存される
	if ok, _ := store.Exists(ctx, "team_data:user1:team1"); !ok {
		t.Error("team snapshot not stored")
	}
	if ok, _ := store.Exists(ctx, "sync_result:user1"); !ok {
		t.Error("sync result not stored")
	}

	// 未完了タスク数から稼働率が算出される
	got, err := o.GetSyncResult(ctx, "user1")
	if err != nil || got == nil {
		t.Fatalf("GetSyncResult() = %v, %v", got, err)
	}
}

func TestSyncUser_IsolatesTeamFailure(t *testing.T) {
	ctx := context.Background()

	client := &mockAPIClient{
		getAuthorizedTeamsFn: func(ctx context.Context, accessToken string) ([]clickup.Team, error) {
			return testTeams(3), nil
		},
		getTeamTasksFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error) {
			if teamID == "team2" {
				return nil, errors.New("rate limited")
			}
			return []clickup.Task{{ID: "task-" + teamID, Name: "作業"}}, nil
		},
		getTeamMembersFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error) {
			return []clickup.Member{{User: clickup.User{ID: 1, Username: "taro"}}}, nil
		},
	}

	o, store := newTestOrchestrator(t, client, authenticatedTokens())

	result, err := o.SyncUser(ctx, "user1")
	if err != nil {
		t.Fatalf("SyncUser() error = %v, want success with isolated failure", err)
	}

	// 失敗チームはエラーエントリとして隔離される
	if len(result.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].ResourceID != "team2" {
		t.Errorf("Errors[0].ResourceID = %q, want team2", result.Errors[0].ResourceID)
	}

	// 集計は成功チームのみを含む
	if len(result.Teams) != 2 {
		t.Errorf("len(Teams) = %d, want 2", len(result.Teams))
	}
	if result.TotalTasks != 2 || result.TotalMembers != 2 {
		t.Errorf("totals = %d tasks / %d members, want 2 / 2", result.TotalTasks, result.TotalMembers)
	}

	// スナップショットは成功チームのみ
	for _, teamID := range []string{"team1", "team3"} {
		if ok, _ := store.Exists(ctx, "team_data:user1:"+teamID); !ok {
			t.Errorf("snapshot for %s not stored", teamID)
		}
	}
	if ok, _ := store.Exists(ctx, "team_data:user1:team2"); ok {
		t.Error("snapshot for failed team2 should not be stored")
	}

	// 部分失敗でも同期結果は保存される
	if ok, _ := store.Exists(ctx, "sync_result:user1"); !ok {
		t.Error("sync result not stored despite partial failure")
	}
}

func TestSyncUser_CountsOpenTasksPerMember(t *testing.T) {
	ctx := context.Background()

	client := &mockAPIClient{
		getAuthorizedTeamsFn: func(ctx context.Context, accessToken string) ([]clickup.Team, error) {
			return testTeams(1), nil
		},
		getTeamTasksFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error) {
			return []clickup.Task{
				{ID: "t1", Status: clickup.TaskStatus{Status: "to do"}, Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
				{ID: "t2", Status: clickup.TaskStatus{Status: "doing"}, Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
				{ID: "t3", Status: clickup.TaskStatus{Status: "done"}, Assignees: []clickup.User{{ID: 10, Username: "taro"}}},
				{ID: "t4", Status: clickup.TaskStatus{Status: "to do"}, Assignees: []clickup.User{{ID: 20, Username: "hanako"}}},
				{ID: "t5", Status: clickup.TaskStatus{Status: "to do"}}, // 未割り当て
			}, nil
		},
		getTeamMembersFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error) {
			return []clickup.Member{
				{User: clickup.User{ID: 10, Username: "taro"}},
				{User: clickup.User{ID: 20, Username: "hanako"}},
			}, nil
		},
	}

	o, store := newTestOrchestrator(t, client, authenticatedTokens())

	if _, err := o.SyncUser(ctx, "user1"); err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	value, ok, err := store.Get(ctx, "team_data:user1:team1")
	if err != nil || !ok {
		t.Fatalf("snapshot not found: ok=%v err=%v", ok, err)
	}

	snapshot := decodeSnapshot(t, value)
	byID := make(map[int]model.Member)
	for _, m := range snapshot.Members {
		byID[m.ID] = m
	}

	// taroは未完了2件（doneは除外）、hanakoは1件
	if got := byID[10].CurrentTasks; got != 2 {
		t.Errorf("taro CurrentTasks = %d, want 2", got)
	}
	if got := byID[20].CurrentTasks; got != 1 {
		t.Errorf("hanako CurrentTasks = %d, want 1", got)
	}
	// round(2 * 100 / 8) = 25
	if got := byID[10].WorkloadPercentage; got != 25 {
		t.Errorf("taro WorkloadPercentage = %d, want 25", got)
	}
}

func TestSyncUser_DeepTraversalMergesHierarchyTasks(t *testing.T) {
	ctx := context.Background()

	client := &mockAPIClient{
		getAuthorizedTeamsFn: func(ctx context.Context, accessToken string) ([]clickup.Team, error) {
			return testTeams(1), nil
		},
		getTeamTasksFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error) {
			return []clickup.Task{{ID: "t1", Name: "既知タスク"}}, nil
		},
		getTeamMembersFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error) {
			return nil, nil
		},
		getSpacesFn: func(ctx context.Context, accessToken, teamID string) ([]clickup.Space, error) {
			return []clickup.Space{{ID: "s1"}}, nil
		},
		getFoldersFn: func(ctx context.Context, accessToken, spaceID string) ([]clickup.Folder, error) {
			return []clickup.Folder{{ID: "f1"}}, nil
		},
		getListsFn: func(ctx context.Context, accessToken, folderID string) ([]clickup.List, error) {
			return []clickup.List{{ID: "l1"}}, nil
		},
		getListTasksFn: func(ctx context.Context, accessToken, listID string) ([]clickup.Task, error) {
			// t1は既知なので重複排除され、t9のみ追加される
			return []clickup.Task{{ID: "t1", Name: "既知タスク"}, {ID: "t9", Name: "リスト固有タスク"}}, nil
		},
	}

	store := kvstore.NewMemoryStore(time.Hour)
	t.Cleanup(store.Stop)
	normalizer := clickup.NewNormalizer(security.NewContentSanitizer())
	o := NewOrchestrator(client, authenticatedTokens(), store, normalizer, nil, nil, 2, true)

	result, err := o.SyncUser(ctx, "user1")
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}
	if result.TotalTasks != 2 {
		t.Errorf("TotalTasks = %d, want 2 (deduplicated)", result.TotalTasks)
	}
}

func TestGetSyncResult_AbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t, &mockAPIClient{}, &mockTokenSource{})

	result, err := o.GetSyncResult(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetSyncResult() error = %v", err)
	}
	if result != nil {
		t.Errorf("GetSyncResult() = %+v, want nil", result)
	}
}

func decodeSnapshot(t *testing.T, value []byte) model.TeamSnapshot {
	t.Helper()
	var snapshot model.TeamSnapshot
	if err := json.Unmarshal(value, &snapshot); err != nil {
		t.Fatalf("failed to unmarshal snapshot: %v", err)
	}
	return snapshot
}
