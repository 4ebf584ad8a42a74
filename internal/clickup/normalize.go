package clickup

import (
	"fmt"
	"math"
	"strings"

	"github.com/hitoshi/taskflow/internal/model"
	"github.com/hitoshi/taskflow/internal/security"
)

// statusMapping はClickUpの自由記述ステータスから正規化ステータスへの
// マッピング。上から順に評価され、最初に一致した行が採用される。
var statusMapping = []struct {
	keywords []string
	status   model.TaskStatus
}{
	{[]string{"complete", "done", "closed"}, model.TaskStatusCompleted},
	{[]string{"progress", "doing", "active"}, model.TaskStatusInProgress},
	{[]string{"review", "testing"}, model.TaskStatusReview},
}

// MapStatus はClickUpの自由記述ステータスを4値の正規化ステータスに
// 変換する。大文字小文字を区別しない部分一致で判定し、どのキーワードにも
// 一致しない場合はpendingを返す。
func MapStatus(raw string) model.TaskStatus {
	lower := strings.ToLower(raw)
	for _, m := range statusMapping {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m.status
			}
		}
	}
	return model.TaskStatusPending
}

// priorityMapping はClickUpの優先度ID（"1"が最高）から正規化優先度への
// マッピング。
var priorityMapping = map[string]model.TaskPriority{
	"1": model.TaskPriorityCritical,
	"2": model.TaskPriorityHigh,
	"3": model.TaskPriorityMedium,
	"4": model.TaskPriorityLow,
}

// MapPriority はClickUpの優先度ペイロードを正規化優先度に変換する。
// 優先度未設定や未知のIDはmediumを返す。
func MapPriority(raw *TaskPriority) model.TaskPriority {
	if raw == nil {
		return model.TaskPriorityMedium
	}
	if p, ok := priorityMapping[raw.ID]; ok {
		return p
	}
	return model.TaskPriorityMedium
}

// Normalizer はClickUp APIのペイロードをダッシュボードのデータモデルに
// 変換する。説明文はサニタイズしてから保存される。
type Normalizer struct {
	sanitizer security.ContentSanitizerService
}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer(sanitizer security.ContentSanitizerService) *Normalizer {
	return &Normalizer{
		sanitizer: sanitizer,
	}
}

// TransformTask はClickUpのタスクペイロードを正規化タスクに変換する。
//   - ステータス・優先度は4値にマッピング
//   - 担当者は先頭のassigneeを採用（未割り当ては空）
//   - 日時はエポックミリ秒文字列からtime.Timeに変換
//   - 説明文はサニタイズ済みの値を保持
func (n *Normalizer) TransformTask(raw Task, teamID string) model.Task {
	task := model.Task{
		ID:           raw.ID,
		Title:        raw.Name,
		Description:  n.sanitizer.Sanitize(description(raw)),
		Priority:     MapPriority(raw.Priority),
		Status:       MapStatus(raw.Status.Status),
		TimeEstimate: raw.TimeEstimate,
		TimeSpent:    raw.TimeSpent,
		URL:          raw.URL,
		ListID:       raw.List.ID,
		FolderID:     raw.Folder.ID,
		SpaceID:      raw.Space.ID,
		TeamID:       teamID,
	}

	if len(raw.Assignees) > 0 {
		task.Assignee = raw.Assignees[0].Username
		task.AssigneeID = raw.Assignees[0].ID
	}

	if t := parseEpochMillis(raw.DateCreated); t != nil {
		task.CreatedAt = *t
	}
	if t := parseEpochMillis(raw.DateUpdated); t != nil {
		task.UpdatedAt = *t
	}
	task.DueDate = parseEpochMillis(raw.DueDate)

	return task
}

// TransformTasks は複数のタスクペイロードをまとめて変換する。
func (n *Normalizer) TransformTasks(raws []Task, teamID string) []model.Task {
	tasks := make([]model.Task, 0, len(raws))
	for _, raw := range raws {
		tasks = append(tasks, n.TransformTask(raw, teamID))
	}
	return tasks
}

// TransformMember はClickUpのメンバーペイロードを正規化メンバーに変換する。
// openTasksにはステータスがcompleted以外のタスク数を渡す。
//   - 最大タスク数は8固定
//   - 稼働率は現在タスク数/最大タスク数の百分率（四捨五入）
//   - アバターはイニシャル（ペイロードに無ければユーザー名から生成）
func (n *Normalizer) TransformMember(raw Member, openTasks int) model.Member {
	u := raw.User

	avatar := u.Initials
	if avatar == "" {
		avatar = initialsFromName(u.Username)
	}

	return model.Member{
		ID:                 u.ID,
		Name:               u.Username,
		Email:              u.Email,
		Role:               "member",
		Avatar:             avatar,
		Status:             "available",
		CurrentTasks:       openTasks,
		MaxTasks:           model.MemberMaxTasks,
		WorkloadPercentage: int(math.Round(float64(openTasks) * 100 / model.MemberMaxTasks)),
		ProfilePicture:     u.ProfilePicture,
		Color:              u.Color,
	}
}

// TransformUser はClickUpのユーザーペイロードをプロフィールに変換する。
func TransformUser(raw User) model.UserProfile {
	return model.UserProfile{
		ID:             fmt.Sprintf("%d", raw.ID),
		Username:       raw.Username,
		Email:          raw.Email,
		Color:          raw.Color,
		ProfilePicture: raw.ProfilePicture,
	}
}

// description はタスク説明文を選択する。text_contentを優先し、
// 無ければdescriptionを使用する。
func description(raw Task) string {
	if raw.TextContent != "" {
		return raw.TextContent
	}
	return raw.Description
}

// initialsFromName はユーザー名からイニシャル（最大2文字、大文字）を生成する。
func initialsFromName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	for i, f := range fields {
		if i >= 2 {
			break
		}
		r := []rune(f)
		b.WriteString(strings.ToUpper(string(r[0])))
	}
	return b.String()
}
