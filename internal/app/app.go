// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskflow/internal/clickup"
	"github.com/hitoshi/taskflow/internal/config"
	"github.com/hitoshi/taskflow/internal/dashboard"
	"github.com/hitoshi/taskflow/internal/database"
	"github.com/hitoshi/taskflow/internal/handler"
	"github.com/hitoshi/taskflow/internal/kvstore"
	"github.com/hitoshi/taskflow/internal/logger"
	"github.com/hitoshi/taskflow/internal/metrics"
	"github.com/hitoshi/taskflow/internal/middleware"
	"github.com/hitoshi/taskflow/internal/oauthstate"
	"github.com/hitoshi/taskflow/internal/scheduler"
	"github.com/hitoshi/taskflow/internal/security"
	"github.com/hitoshi/taskflow/internal/session"
	taskflowsync "github.com/hitoshi/taskflow/internal/sync"
	"github.com/hitoshi/taskflow/internal/vault"
	"github.com/hitoshi/taskflow/internal/worker/cleanup"
)

const (
	serviceName    = "taskflow-backend"
	serviceVersion = "1.0.0"

	// 自動同期のデフォルト間隔。OAuth完了時にこの間隔で開始する。
	autoSyncInterval = 30 * time.Minute

	// kv_entriesの期限切れ行を削除するクリーンアップの実行間隔。
	cleanupInterval = time.Hour

	// ClickUp API呼び出しのタイムアウト。
	upstreamTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_url", cfg.AppURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// autoSyncAdapter はSchedulerをハンドラー向けインターフェースに適合させる。
// タイマーgoroutineの寿命はリクエストではなくアプリケーションの
// ベースコンテキストに束縛する。
type autoSyncAdapter struct {
	base  context.Context
	sched *scheduler.Scheduler
}

func (a *autoSyncAdapter) Start(userID string, interval time.Duration) {
	a.sched.Start(a.base, userID, interval)
}

func (a *autoSyncAdapter) Stop(userID string) {
	a.sched.Stop(userID)
}

func (a *autoSyncAdapter) IsRunning(userID string) bool {
	return a.sched.IsRunning(userID)
}

var _ handler.AutoSyncService = (*autoSyncAdapter)(nil)

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// DATABASE_URLが未設定または接続不能の場合はインメモリストレージのみで
// 起動する（再起動で全セッションとトークンが失われる縮退モード）。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストレージの組み立て（Postgres + インメモリフォールバック）
	memStore := kvstore.NewMemoryStore(cfg.KVSweepInterval)
	defer memStore.Stop()

	var db *sql.DB
	var durable kvstore.Store
	storageMode := handler.StorageModeMemory

	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URLが未設定のため、インメモリストレージのみで起動します")
	} else {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err == nil {
			err = db.Ping()
		}
		if err != nil {
			slog.Warn("データベースに接続できないため、インメモリストレージのみで起動します",
				slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
				slog.String("error", err.Error()),
			)
			db = nil
		} else {
			defer db.Close()
			durable = kvstore.NewPostgresStore(db)
			storageMode = handler.StorageModePostgres
			slog.Info("database connection established")
		}
	}

	store := kvstore.NewFallbackStore(durable, memStore, slog.Default())

	// 2. セキュリティサービスの初期化
	tokenVault, err := vault.New(durable, []byte(cfg.EncryptionKey), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create token vault: %w", err)
	}
	sanitizer := security.NewContentSanitizer()
	guard := security.NewOutboundGuard()

	// 3. セッションとOAuth state
	sessionManager := session.NewManager(store, tokenVault, []byte(cfg.SessionSecret), slog.Default())
	stateManager := oauthstate.NewManager(store, slog.Default())

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ClickUpクライアント（SSRF防止付きHTTPクライアントを使用）
	clickupClient := clickup.NewClient(
		guard.NewSafeClient(upstreamTimeout),
		clickup.Config{
			ClientID:     cfg.ClickUpClientID,
			ClientSecret: cfg.ClickUpClientSecret,
			RedirectURL:  cfg.ClickUpRedirectURL,
			BaseURL:      cfg.ClickUpAPIBase,
		},
		slog.Default(),
	)
	clickupClient.SetStatusObserver(collector.RecordUpstreamStatus)

	// 6. 同期・集約サービス
	normalizer := clickup.NewNormalizer(sanitizer)
	orchestrator := taskflowsync.NewOrchestrator(
		clickupClient, tokenVault, store, normalizer, collector,
		slog.Default(), cfg.SyncMaxConcurrent, cfg.SyncDeepTraversal,
	)
	aggregator := dashboard.NewAggregator(store, slog.Default())

	// 7. 自動同期スケジューラ
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(func(ctx context.Context, userID string) error {
		_, err := orchestrator.SyncUser(ctx, userID)
		return err
	}, slog.Default())
	autoSync := &autoSyncAdapter{base: baseCtx, sched: sched}

	// 8. クリーンアップジョブ（耐久ストレージがある場合のみ）
	if db != nil {
		cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
		go cleanupJob.Start(baseCtx, cleanupInterval)
	}

	// 9. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// RATE_LIMIT_GENERALは15分窓、RATE_LIMIT_SYNCは1分窓あたりの許容数
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / (15 * 60))
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SyncRate = rate.Limit(float64(cfg.RateLimitSync) / 60)
	rateLimiterCfg.SyncBurst = cfg.RateLimitSync

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:     sessionManager,
		Authenticator:     sessionManager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		OAuthStates: stateManager,
		Exchanger:   clickupClient,
		Vault:       tokenVault,
		Sessions:    sessionManager,
		AuthConfig: handler.AuthHandlerConfig{
			AppURL:           cfg.AppURL,
			AutoSyncInterval: autoSyncInterval,
		},

		Syncer:           orchestrator,
		AutoSync:         autoSync,
		AutoSyncInterval: autoSyncInterval,

		Dashboard: aggregator,

		Health: handler.NewHealthHandler(serviceName, serviceVersion, storageMode),
	}

	// /metricsはAPIルーターの外側に配置する（認証・レート制限の対象外）
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.SetupMetricsRoute(registry))
	mux.Handle("/", handler.NewRouter(deps))

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("storage", storageMode),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 自動同期タイマーをすべて停止してから終了する
	sched.Shutdown()

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
