// Package dashboard はキャッシュ済みスナップショットからダッシュボード
// ビューを構築する。ビューは読み出しのたびに計算され、永続化されない。
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/model"
)

const (
	// teamDataKeyFormat はチームスナップショットのキー形式。
	teamDataKeyFormat = "team_data:%s:%s"
	// syncResultKeyFormat は同期結果のキー形式。
	syncResultKeyFormat = "sync_result:%s"

	// activityFeedSize はアクティビティフィードの最大件数。
	activityFeedSize = 10
)

// ErrNoSyncData は同期結果が存在しないユーザーのダッシュボード要求を表す。
var ErrNoSyncData = errors.New("no sync data available")

// Aggregator はスナップショットを集約してダッシュボードビューを構築する。
type Aggregator struct {
	store  kvstore.Store
	logger *slog.Logger

	// テスト用に差し替え可能な現在時刻関数
	now func() time.Time
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(store kvstore.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// BuildDashboard はユーザーのダッシュボードビューを構築する。
//   - 同期結果が無い場合はErrNoSyncDataを返す
//   - teamIDを指定すると該当チームのみに絞り込む（空文字列で全チーム）
//   - 期限切れ・欠落したスナップショットは黙って除外される
//     （スナップショットのTTLは同期結果より短いため、同期結果だけが
//     残っている状態は正常系として扱う）
func (a *Aggregator) BuildDashboard(ctx context.Context, userID, teamID string) (*model.DashboardView, error) {
	result, err := a.getSyncResult(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoSyncData
	}

	var tasks []model.Task
	memberIndex := make(map[int]*model.Member)
	var memberOrder []int

	for _, summary := range result.Teams {
		if teamID != "" && summary.TeamID != teamID {
			continue
		}

		snapshot, err := a.getSnapshot(ctx, userID, summary.TeamID)
		if err != nil {
			a.logger.Warn("スナップショットの読み出しに失敗しました",
				slog.String("user_id", userID),
				slog.String("team_id", summary.TeamID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if snapshot == nil {
			continue
		}

		tasks = append(tasks, snapshot.Tasks...)

		// 複数チームに所属するメンバーは1件に統合する。担当タスク数と
		// 容量を所属チーム分合算するため、稼働率はチームごとの行を
		// 並べた場合と同じ値になる
		for _, m := range snapshot.Members {
			if existing, ok := memberIndex[m.ID]; ok {
				existing.CurrentTasks += m.CurrentTasks
				existing.MaxTasks += m.MaxTasks
				existing.WorkloadPercentage = workloadPercentage(existing.CurrentTasks, existing.MaxTasks)
				continue
			}
			member := m
			memberIndex[m.ID] = &member
			memberOrder = append(memberOrder, m.ID)
		}
	}

	members := make([]model.Member, 0, len(memberOrder))
	for _, id := range memberOrder {
		members = append(members, *memberIndex[id])
	}

	view := &model.DashboardView{
		KPIs:       a.computeKPIs(tasks, members),
		Tasks:      tasks,
		Team:       members,
		Activities: a.buildActivityFeed(tasks),
		LastSync:   result.Timestamp,
		SyncErrors: result.Errors,
	}
	return view, nil
}

// computeKPIs はタスクとメンバーから集計指標を計算する。
func (a *Aggregator) computeKPIs(tasks []model.Task, members []model.Member) model.KPISet {
	kpis := model.KPISet{
		TotalTasks: len(tasks),
	}

	now := a.now()
	for _, task := range tasks {
		switch task.Status {
		case model.TaskStatusCompleted:
			kpis.CompletedTasks++
		case model.TaskStatusInProgress:
			kpis.InProgressTasks++
		}
		// 期限切れ: 期限が設定済みかつ過去で、未完了のタスク
		if task.DueDate != nil && task.DueDate.Before(now) && task.Status != model.TaskStatusCompleted {
			kpis.OverdueTasks++
		}
	}

	var totalCurrent, totalMax int
	for _, m := range members {
		totalCurrent += m.CurrentTasks
		totalMax += m.MaxTasks
	}
	kpis.AvgUtilization = workloadPercentage(totalCurrent, totalMax)

	return kpis
}

// buildActivityFeed は更新日時の新しい順に最大10件のアクティビティを作る。
func (a *Aggregator) buildActivityFeed(tasks []model.Task) []model.Activity {
	sorted := make([]model.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	if len(sorted) > activityFeedSize {
		sorted = sorted[:activityFeedSize]
	}

	now := a.now()
	activities := make([]model.Activity, 0, len(sorted))
	for _, task := range sorted {
		activityType := "assigned"
		if task.Status == model.TaskStatusCompleted {
			activityType = "completed"
		}

		user := task.Assignee
		if user == "" {
			user = "未割り当て"
		}

		activities = append(activities, model.Activity{
			ID:   task.ID,
			Type: activityType,
			User: user,
			Task: task.Title,
			Time: relativeTimeLabel(now.Sub(task.UpdatedAt)),
		})
	}
	return activities
}

// getSyncResult は同期結果を取得する。存在しない場合はnilを返す。
func (a *Aggregator) getSyncResult(ctx context.Context, userID string) (*model.SyncResult, error) {
	value, ok, err := a.store.Get(ctx, fmt.Sprintf(syncResultKeyFormat, userID))
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

// getSnapshot はチームスナップショットを取得する。存在しない場合はnilを返す。
func (a *Aggregator) getSnapshot(ctx context.Context, userID, teamID string) (*model.TeamSnapshot, error) {
	value, ok, err := a.store.Get(ctx, fmt.Sprintf(teamDataKeyFormat, userID, teamID))
	if err != nil {
		return nil, fmt.Errorf("failed to read team snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var snapshot model.TeamSnapshot
	if err := json.Unmarshal(value, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal team snapshot: %w", err)
	}
	return &snapshot, nil
}

// workloadPercentage は担当タスク数と容量から稼働率（百分率、四捨五入）を
// 計算する。容量0の場合は0を返す。
func workloadPercentage(current, max int) int {
	if max == 0 {
		return 0
	}
	return int(math.Round(float64(current) * 100 / float64(max)))
}

// relativeTimeLabel は経過時間を日本語の相対時刻ラベルに変換する。
func relativeTimeLabel(elapsed time.Duration) string {
	switch {
	case elapsed < time.Minute:
		return "たった今"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d分前", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%d時間前", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%d日前", int(elapsed.Hours()/24))
	}
}
