// Package model はドメインモデルを定義する。
package model

import "time"

// TaskStatus は正規化されたタスクステータス。
type TaskStatus string

const (
	// TaskStatusCompleted は完了状態。
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusInProgress は進行中状態。
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReview はレビュー中状態。
	TaskStatusReview TaskStatus = "review"
	// TaskStatusPending は未着手状態。マッピング不能なステータスのデフォルト。
	TaskStatusPending TaskStatus = "pending"
)

// TaskPriority は正規化されたタスク優先度。
type TaskPriority string

const (
	// TaskPriorityCritical は最高優先度。
	TaskPriorityCritical TaskPriority = "critical"
	// TaskPriorityHigh は高優先度。
	TaskPriorityHigh TaskPriority = "high"
	// TaskPriorityMedium は中優先度。未設定・不明値のデフォルト。
	TaskPriorityMedium TaskPriority = "medium"
	// TaskPriorityLow は低優先度。
	TaskPriorityLow TaskPriority = "low"
)

// Task はClickUpのタスクを正規化したイミュータブルなスナップショット。
// 元のペイロードへの参照は持たず、派生フィールドのみを保持する。
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Priority     TaskPriority `json:"priority"`
	Status       TaskStatus   `json:"status"`
	Assignee     string       `json:"assignee"`
	AssigneeID   int          `json:"assignee_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	TimeEstimate int64        `json:"time_estimate,omitempty"`
	TimeSpent    int64        `json:"time_spent,omitempty"`
	URL          string       `json:"url,omitempty"`
	ListID       string       `json:"list_id,omitempty"`
	FolderID     string       `json:"folder_id,omitempty"`
	SpaceID      string       `json:"space_id,omitempty"`
	TeamID       string       `json:"team_id,omitempty"`
}

// MemberMaxTasks はメンバー1人あたりのタスク容量の固定値。
// 稼働率の分母として使用する。
const MemberMaxTasks = 8

// Member はClickUpのチームメンバーを正規化したイミュータブルなスナップショット。
// CurrentTasksは同期時点の未完了タスク数の算出値。
type Member struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	Avatar             string `json:"avatar"`
	Status             string `json:"status"`
	CurrentTasks       int    `json:"current_tasks"`
	MaxTasks           int    `json:"max_tasks"`
	WorkloadPercentage int    `json:"workload_percentage"`
	ProfilePicture     string `json:"profile_picture,omitempty"`
	Color              string `json:"color,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
}
