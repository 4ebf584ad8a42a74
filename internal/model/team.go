// Package model はドメインモデルを定義する。
package model

import "time"

// Team はユーザーが認可したClickUpチーム（ワークスペース）の記述子。
type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// TeamSnapshot は(ユーザー, チーム)ごとにキャッシュされる正規化済みデータ。
// TTL付きで保存され、SyncResultとは独立に期限切れになる。
type TeamSnapshot struct {
	Team     Team      `json:"team"`
	Tasks    []Task    `json:"tasks"`
	Members  []Member  `json:"members"`
	LastSync time.Time `json:"last_sync"`
}

// TeamSyncSummary は1チームの同期成功時のサマリ。
type TeamSyncSummary struct {
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	TaskCount   int    `json:"task_count"`
	MemberCount int    `json:"member_count"`
}

// SyncError は特定のリソースに帰属する同期エラー。
// ResourceIDにはチーム・スペース・フォルダ・リストのいずれかのIDが入る。
type SyncError struct {
	ResourceID string `json:"resource_id"`
	Message    string `json:"error"`
}

// SyncResult は1ユーザーの同期1サイクルの結果。
// 成功した同期は前回の結果を上書きする（履歴は保持しない）。
// TotalTasks/TotalMembersは成功したチームのサマリの合計に一致する。
// 失敗したチームはErrorsにのみ現れる。
type SyncResult struct {
	UserID       string            `json:"user_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Teams        []TeamSyncSummary `json:"teams"`
	TotalTasks   int               `json:"total_tasks"`
	TotalMembers int               `json:"total_members"`
	Errors       []SyncError       `json:"errors"`
}
