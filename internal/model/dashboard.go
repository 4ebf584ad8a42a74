// Package model はドメインモデルを定義する。
package model

import "time"

// KPISet はダッシュボードの集計指標。
type KPISet struct {
	TotalTasks      int `json:"totalTasks"`
	CompletedTasks  int `json:"completedTasks"`
	InProgressTasks int `json:"inProgressTasks"`
	OverdueTasks    int `json:"overdueTasks"`
	AvgUtilization  int `json:"avgUtilization"`
}

// Activity はアクティビティフィードの1エントリ。
type Activity struct {
	ID   string `json:"id"`
	Type string `json:"type"` // completed または assigned
	User string `json:"user"`
	Task string `json:"task"`
	Time string `json:"time"` // 相対時刻ラベル
}

// DashboardView は読み出し時に最新のスナップショットから計算される
// エフェメラルなビュー。永続化されない。
type DashboardView struct {
	KPIs       KPISet      `json:"kpis"`
	Tasks      []Task      `json:"tasks"`
	Team       []Member    `json:"team"`
	Activities []Activity  `json:"activities"`
	LastSync   time.Time   `json:"lastSync"`
	SyncErrors []SyncError `json:"syncErrors"`
}
