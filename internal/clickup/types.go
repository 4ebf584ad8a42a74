package clickup

import (
	"strconv"
	"time"
)

// User はClickUp APIのユーザーペイロード。
type User struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Color          string `json:"color"`
	ProfilePicture string `json:"profilePicture"`
	Initials       string `json:"initials"`
}

// Team はClickUp APIのチーム（ワークスペース）ペイロード。
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Color   string   `json:"color"`
	Avatar  string   `json:"avatar"`
	Members []Member `json:"members"`
}

// Member はチームメンバーのペイロード。ユーザー情報はuserフィールドに
// ネストされている。
type Member struct {
	User User `json:"user"`
}

// TaskStatus はタスクのステータスペイロード。
type TaskStatus struct {
	Status string `json:"status"`
	Color  string `json:"color"`
	Type   string `json:"type"`
}

// TaskPriority はタスクの優先度ペイロード。IDは"1"（最高）から"4"（最低）の
// 文字列で返される。
type TaskPriority struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
	Color    string `json:"color"`
}

// Reference はid参照のみを持つネストオブジェクト（list, folder, space）。
type Reference struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Task はClickUp APIのタスクペイロード。日時フィールドはエポックミリ秒の
// 文字列で返される。
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	TextContent  string        `json:"text_content"`
	Description  string        `json:"description"`
	Status       TaskStatus    `json:"status"`
	Priority     *TaskPriority `json:"priority"`
	Assignees    []User        `json:"assignees"`
	DateCreated  string        `json:"date_created"`
	DateUpdated  string        `json:"date_updated"`
	DueDate      string        `json:"due_date"`
	TimeEstimate int64         `json:"time_estimate"`
	TimeSpent    int64         `json:"time_spent"`
	URL          string        `json:"url"`
	List         Reference     `json:"list"`
	Folder       Reference     `json:"folder"`
	Space        Reference     `json:"space"`
	TeamID       string        `json:"team_id"`
}

// Space はClickUp APIのスペースペイロード。
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Folder はClickUp APIのフォルダペイロード。
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List はClickUp APIのリストペイロード。
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenResponse はトークンエンドポイントのレスポンス。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// parseEpochMillis はエポックミリ秒の文字列をtime.Timeに変換する。
// 空文字列やパース不能な値はnilを返す。
func parseEpochMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
