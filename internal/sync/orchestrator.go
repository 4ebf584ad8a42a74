// Package sync はClickUpからのデータ同期のオーケストレーションを提供する。
// ユーザー単位の同期を起点に、認可済みチームごとのタスク・メンバー取得を
// 並列実行し、チーム単位の失敗を隔離しながらスナップショットを保存する。
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/taskflow/internal/clickup"
	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/metrics"
	"github.com/hitoshi/taskflow/internal/model"
)

const (
	// teamDataKeyFormat はチームスナップショットのキー形式。
	teamDataKeyFormat = "team_data:%s:%s"
	// syncResultKeyFormat は同期結果のキー形式。
	syncResultKeyFormat = "sync_result:%s"

	// teamDataTTL はチームスナップショットの有効期間（1時間 = 3600秒）。
	teamDataTTL = time.Hour
	// syncResultTTL は同期結果の有効期間（24時間 = 86400秒）。
	syncResultTTL = 24 * time.Hour

	// defaultMaxConcurrent はチーム同期の並列数のデフォルト値。
	defaultMaxConcurrent = 4
)

// ErrNotAuthenticated はトークンレコードが存在しないユーザーの同期要求を表す。
var ErrNotAuthenticated = errors.New("user is not authenticated")

// APIClient はオーケストレーターが使用するClickUp API操作のインターフェース。
// clickup.Clientの部分集合として定義する。
type APIClient interface {
	GetAuthorizedTeams(ctx context.Context, accessToken string) ([]clickup.Team, error)
	GetTeamMembers(ctx context.Context, accessToken, teamID string) ([]clickup.Member, error)
	GetTeamTasks(ctx context.Context, accessToken, teamID string) ([]clickup.Task, error)
	GetSpaces(ctx context.Context, accessToken, teamID string) ([]clickup.Space, error)
	GetFolders(ctx context.Context, accessToken, spaceID string) ([]clickup.Folder, error)
	GetLists(ctx context.Context, accessToken, folderID string) ([]clickup.List, error)
	GetListTasks(ctx context.Context, accessToken, listID string) ([]clickup.Task, error)
}

// TokenSource は復号済みトークンの取得インターフェース。
// vault.Vaultの部分集合として定義する。
type TokenSource interface {
	GetToken(ctx context.Context, userID string) (*model.TokenData, error)
}

// Orchestrator はユーザー単位の同期処理を統括する。
type Orchestrator struct {
	client     APIClient
	tokens     TokenSource
	store      kvstore.Store
	normalizer *clickup.Normalizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	// maxConcurrent はチーム同期の並列数の上限。
	maxConcurrent int
	// deepTraversal が有効な場合、チーム横断タスク取得に加えて
	// スペース→フォルダ→リストの階層も走査する。
	deepTraversal bool

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(
	client APIClient,
	tokens TokenSource,
	store kvstore.Store,
	normalizer *clickup.Normalizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrent int,
	deepTraversal bool,
) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:        client,
		tokens:        tokens,
		store:         store,
		normalizer:    normalizer,
		metrics:       collector,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		deepTraversal: deepTraversal,
		now:           time.Now,
	}
}

// teamOutcome は1チーム分の同期結果。
type teamOutcome struct {
	team     clickup.Team
	snapshot *model.TeamSnapshot
	errs     []model.SyncError
}

// SyncUser はユーザーの全チームを同期し、結果を保存して返す。
//   - トークンレコードが無い場合はErrNotAuthenticatedを返す
//   - チーム一覧の取得失敗は同期全体の失敗として扱う
//   - 個別チームの失敗は隔離され、結果のErrorsに記録される
//   - 同期結果は成否に関わらず24時間のTTLで保存される
func (o *Orchestrator) SyncUser(ctx context.Context, userID string) (*model.SyncResult, error) {
	start := o.now()

	// 1. トークン取得
	token, err := o.tokens.GetToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return nil, ErrNotAuthenticated
	}

	o.logger.Info("同期を開始します", slog.String("user_id", userID))

	// 2. 認可済みチーム一覧の取得
	teams, err := o.client.GetAuthorizedTeams(ctx, token.AccessToken)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordSyncFailure(userID)
		}
		o.logger.Error("チーム一覧の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list authorized teams: %w", err)
	}

	// 3. チーム単位の並列同期（セマフォで並列数を制限）
	outcomes := make([]teamOutcome, len(teams))
	sem := make(chan struct{}, o.maxConcurrent)
	var wg sync.WaitGroup

	for i, team := range teams {
		wg.Add(1)
		go func(i int, team clickup.Team) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = o.syncTeam(ctx, token.AccessToken, team)
		}(i, team)
	}
	wg.Wait()

	// 4. 結果の集約とスナップショットの保存
	result := &model.SyncResult{
		UserID:    userID,
		Timestamp: o.now(),
		Teams:     make([]model.TeamSyncSummary, 0, len(teams)),
		Errors:    make([]model.SyncError, 0),
	}

	for _, outcome := range outcomes {
		result.Errors = append(result.Errors, outcome.errs...)
		if outcome.snapshot == nil {
			continue
		}

		if err := o.storeSnapshot(ctx, userID, outcome.snapshot); err != nil {
			o.logger.Error("スナップショットの保存に失敗しました",
				slog.String("user_id", userID),
				slog.String("team_id", outcome.team.ID),
				slog.String("error", err.Error()),
			)
			result.Errors = append(result.Errors, model.SyncError{
				ResourceID: outcome.team.ID,
				Message:    err.Error(),
			})
			continue
		}

		result.Teams = append(result.Teams, model.TeamSyncSummary{
			TeamID:      outcome.team.ID,
			TeamName:    outcome.team.Name,
			TaskCount:   len(outcome.snapshot.Tasks),
			MemberCount: len(outcome.snapshot.Members),
		})
		result.TotalTasks += len(outcome.snapshot.Tasks)
		result.TotalMembers += len(outcome.snapshot.Members)
	}

	// 5. 同期結果の保存（部分失敗・全失敗でも保存する）
	if err := o.storeResult(ctx, result); err != nil {
		o.logger.Error("同期結果の保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	o.recordMetrics(userID, result, o.now().Sub(start))

	o.logger.Info("同期が完了しました",
		slog.String("user_id", userID),
		slog.Int("team_count", len(result.Teams)),
		slog.Int("total_tasks", result.TotalTasks),
		slog.Int("total_members", result.TotalMembers),
		slog.Int("error_count", len(result.Errors)),
	)

	return result, nil
}

// syncTeam は1チーム分のタスクとメンバーを取得してスナップショットを作る。
// タスクまたはメンバーの取得失敗はチーム全体の失敗として扱い、
// スナップショットなしのエラーエントリを返す。
func (o *Orchestrator) syncTeam(ctx context.Context, accessToken string, team clickup.Team) teamOutcome {
	outcome := teamOutcome{team: team}

	rawTasks, err := o.client.GetTeamTasks(ctx, accessToken, team.ID)
	if err != nil {
		o.logger.Warn("チームのタスク取得に失敗しました",
			slog.String("team_id", team.ID),
			slog.String("error", err.Error()),
		)
		outcome.errs = append(outcome.errs, model.SyncError{
			ResourceID: team.ID,
			Message:    err.Error(),
		})
		return outcome
	}

	rawMembers, err := o.client.GetTeamMembers(ctx, accessToken, team.ID)
	if err != nil {
		o.logger.Warn("チームのメンバー取得に失敗しました",
			slog.String("team_id", team.ID),
			slog.String("error", err.Error()),
		)
		outcome.errs = append(outcome.errs, model.SyncError{
			ResourceID: team.ID,
			Message:    err.Error(),
		})
		return outcome
	}

	tasks := o.normalizer.TransformTasks(rawTasks, team.ID)

	// 深い走査: 階層を辿って未取得のタスクを補完する。
	// 下位リソースの取得失敗はエラーエントリとして記録し、
	// スナップショット自体は保存する。
	if o.deepTraversal {
		extra, errs := o.traverseHierarchy(ctx, accessToken, team.ID, tasks)
		tasks = append(tasks, extra...)
		outcome.errs = append(outcome.errs, errs...)
	}

	// ステータスがcompleted以外のタスクを担当者ごとに数える
	openByAssignee := make(map[int]int)
	for _, task := range tasks {
		if task.Status != model.TaskStatusCompleted && task.AssigneeID != 0 {
			openByAssignee[task.AssigneeID]++
		}
	}

	members := make([]model.Member, 0, len(rawMembers))
	for _, raw := range rawMembers {
		members = append(members, o.normalizer.TransformMember(raw, openByAssignee[raw.User.ID]))
	}

	outcome.snapshot = &model.TeamSnapshot{
		Team: model.Team{
			ID:     team.ID,
			Name:   team.Name,
			Color:  team.Color,
			Avatar: team.Avatar,
		},
		Tasks:    tasks,
		Members:  members,
		LastSync: o.now(),
	}
	return outcome
}

// traverseHierarchy はスペース→フォルダ→リストの階層を走査し、
// チーム横断取得に含まれなかったタスクを収集する。
func (o *Orchestrator) traverseHierarchy(ctx context.Context, accessToken, teamID string, known []model.Task) ([]model.Task, []model.SyncError) {
	seen := make(map[string]struct{}, len(known))
	for _, t := range known {
		seen[t.ID] = struct{}{}
	}

	var extra []model.Task
	var errs []model.SyncError

	spaces, err := o.client.GetSpaces(ctx, accessToken, teamID)
	if err != nil {
		return nil, []model.SyncError{{ResourceID: teamID, Message: err.Error()}}
	}

	for _, space := range spaces {
		folders, err := o.client.GetFolders(ctx, accessToken, space.ID)
		if err != nil {
			errs = append(errs, model.SyncError{ResourceID: space.ID, Message: err.Error()})
			continue
		}

		for _, folder := range folders {
			lists, err := o.client.GetLists(ctx, accessToken, folder.ID)
			if err != nil {
				errs = append(errs, model.SyncError{ResourceID: folder.ID, Message: err.Error()})
				continue
			}

			for _, list := range lists {
				rawTasks, err := o.client.GetListTasks(ctx, accessToken, list.ID)
				if err != nil {
					errs = append(errs, model.SyncError{ResourceID: list.ID, Message: err.Error()})
					continue
				}
				for _, task := range o.normalizer.TransformTasks(rawTasks, teamID) {
					if _, ok := seen[task.ID]; ok {
						continue
					}
					seen[task.ID] = struct{}{}
					extra = append(extra, task)
				}
			}
		}
	}

	return extra, errs
}

// storeSnapshot はチームスナップショットを1時間のTTL付きで保存する。
func (o *Orchestrator) storeSnapshot(ctx context.Context, userID string, snapshot *model.TeamSnapshot) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal team snapshot: %w", err)
	}

	key := fmt.Sprintf(teamDataKeyFormat, userID, snapshot.Team.ID)
	if err := o.store.Put(ctx, key, value, teamDataTTL); err != nil {
		return fmt.Errorf("failed to store team snapshot: %w", err)
	}
	return nil
}

// storeResult は同期結果を24時間のTTL付きで保存する。
func (o *Orchestrator) storeResult(ctx context.Context, result *model.SyncResult) error {
	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal sync result: %w", err)
	}

	key := fmt.Sprintf(syncResultKeyFormat, result.UserID)
	if err := o.store.Put(ctx, key, value, syncResultTTL); err != nil {
		return fmt.Errorf("failed to store sync result: %w", err)
	}
	return nil
}

// GetSyncResult は最新の同期結果を取得する。存在しない場合はnilを返す。
func (o *Orchestrator) GetSyncResult(ctx context.Context, userID string) (*model.SyncResult, error) {
	value, ok, err := o.store.Get(ctx, fmt.Sprintf(syncResultKeyFormat, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read sync result: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var result model.SyncResult
	if err := json.Unmarshal(value, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync result: %w", err)
	}
	return &result, nil
}

// recordMetrics は同期結果をメトリクスに記録する。
// 全チームが失敗した同期は失敗として数える。
func (o *Orchestrator) recordMetrics(userID string, result *model.SyncResult, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}

	if len(result.Teams) == 0 && len(result.Errors) > 0 {
		o.metrics.RecordSyncFailure(userID)
	} else {
		o.metrics.RecordSyncSuccess(userID)
	}
	o.metrics.RecordSyncLatency(elapsed)
	o.metrics.RecordTasksSynced(result.TotalTasks)
	o.metrics.RecordMembersSynced(result.TotalMembers)
}

// compile-time interface checks
var _ APIClient = (*clickup.Client)(nil)
