// Package scheduler はユーザー単位の自動同期タイマーを提供する。
// ユーザーごとに独立した間隔で同期を再実行し、停止・再登録・
// 一括シャットダウンをサポートする。
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler はユーザーごとの自動同期タイマーを管理する。
// 同一ユーザーに対するタイマーは常に最大1本で、再登録は既存タイマーを
// 置き換える。
type Scheduler struct {
	run    func(ctx context.Context, userID string) error
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New はSchedulerを生成する。runには1ユーザー分の同期処理を渡す。
func New(run func(ctx context.Context, userID string) error, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		run:     run,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start はユーザーの自動同期タイマーを登録する。
// 既に登録済みの場合は古いタイマーを停止してから新しい間隔で登録し直す。
func (s *Scheduler) Start(ctx context.Context, userID string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancels[userID]; ok {
		cancel()
	}

	timerCtx, cancel := context.WithCancel(ctx)
	s.cancels[userID] = cancel

	s.wg.Add(1)
	go s.loop(timerCtx, userID, interval)

	s.logger.Info("自動同期を開始しました",
		slog.String("user_id", userID),
		slog.Duration("interval", interval),
	)
}

// Stop はユーザーの自動同期タイマーを停止する。
// 登録されていない場合は何もしない（冪等）。
func (s *Scheduler) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.cancels[userID]
	if !ok {
		return
	}

	cancel()
	delete(s.cancels, userID)

	s.logger.Info("自動同期を停止しました", slog.String("user_id", userID))
}

// IsRunning はユーザーの自動同期タイマーが登録済みかを返す。
func (s *Scheduler) IsRunning(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[userID]
	return ok
}

// Shutdown は全ユーザーのタイマーを停止し、実行中のループの終了を待つ。
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for userID, cancel := range s.cancels {
		cancel()
		delete(s.cancels, userID)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("自動同期スケジューラを停止しました")
}

// loop は1ユーザー分のタイマーループ。コンテキストのキャンセルで終了する。
func (s *Scheduler) loop(ctx context.Context, userID string, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.run(ctx, userID); err != nil {
				s.logger.Error("自動同期の実行に失敗しました",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
