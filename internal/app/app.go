package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/nogiblog/internal/blog"
	"github.com/hitoshi/nogiblog/internal/comment"
	"github.com/hitoshi/nogiblog/internal/config"
	"github.com/hitoshi/nogiblog/internal/database"
	"github.com/hitoshi/nogiblog/internal/download"
	"github.com/hitoshi/nogiblog/internal/handler"
	"github.com/hitoshi/nogiblog/internal/jsonp"
	"github.com/hitoshi/nogiblog/internal/loader"
	"github.com/hitoshi/nogiblog/internal/logger"
	"github.com/hitoshi/nogiblog/internal/member"
	"github.com/hitoshi/nogiblog/internal/metrics"
	"github.com/hitoshi/nogiblog/internal/middleware"
	"github.com/hitoshi/nogiblog/internal/preference"
	"github.com/hitoshi/nogiblog/internal/repository"
	"github.com/hitoshi/nogiblog/internal/security"
	"github.com/hitoshi/nogiblog/internal/upstream"
	"github.com/hitoshi/nogiblog/internal/worker/cleanup"
	"github.com/hitoshi/nogiblog/internal/worker/commentwatch"
)

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 設定の読み込み（既定値 → YAML → 環境変数）
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーも構造化ログで出せるよう既定レベルで初期化しておく
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. ログの初期化
	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	// SIGINT/SIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// storage は開いたストレージとその後始末。
type storage struct {
	repo repository.StorageRepository
	// db はmemoryドライバーの場合nil。
	db *sql.DB
}

func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStorage はSTORAGE_DRIVERに従ってストレージを開き、疎通を確認する。
func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("database connection established", slog.String("driver", cfg.StorageDriver))
		return &storage{repo: repository.NewPostgresStorageRepo(db), db: db}, nil

	case config.StorageDriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("database connection established",
			slog.String("driver", cfg.StorageDriver),
			slog.String("path", cfg.SQLitePath),
		)
		return &storage{repo: repository.NewSQLiteStorageRepo(db), db: db}, nil

	default:
		log.Warn("メモリストレージを使用します。再起動すると設定とコメント履歴は失われます")
		return &storage{repo: repository.NewMemoryStorageRepo()}, nil
	}
}

// services はserveとworkerで共有するドメインサービス。
type services struct {
	registry    *prometheus.Registry
	collector   *metrics.Collector
	blogs       *blog.Service
	members     *member.Service
	comments    *comment.Engine
	preferences *preference.Service
}

// newServices は公式サイトAPIのクライアントとドメインサービスを構築する。
func newServices(cfg *config.Config, repo repository.StorageRepository, log *slog.Logger) *services {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. JSONPクライアント（全API呼び出しで1つを共有し、呼び出し間隔を空ける）
	endpoints := upstream.NewEndpoints(cfg.APIBaseURL)
	client := jsonp.NewClient(&http.Client{}, log, jsonp.ClientConfig{
		Timeout:  cfg.JSONPTimeout,
		Interval: cfg.APIInterval,
	}, collector)

	// 3. ドメインサービス
	blogs := blog.NewService(client, endpoints, cfg.JSONPTimeout, log, collector)
	members := member.NewService(client, endpoints, cfg.JSONPTimeout, log, collector)

	scanner := comment.NewScanner(client, endpoints, security.NewCommentSanitizer(), log, comment.ScannerConfig{
		BatchSize: cfg.CommentBatchSize,
		MaxPages:  cfg.CommentMaxPages,
		Timeout:   cfg.CommentJSONPTimeout,
	}, collector)
	engine := comment.NewEngine(scanner, comment.NewCacheStore(repo, log), cfg.CommentCacheDuration, log)

	return &services{
		registry:    registry,
		collector:   collector,
		blogs:       blogs,
		members:     members,
		comments:    engine,
		preferences: preference.NewService(repo, engine, log),
	}
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. ストレージ
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	// 2. ドメインサービス
	svc := newServices(cfg, store.repo, log)
	dataCache := loader.NewDataCache(svc.blogs, svc.members)

	// 3. 画像ダウンロード
	guard := security.NewImageGuard(cfg.ImageAllowedHosts...)
	pipeline := download.NewPipeline(guard.NewSafeClient(cfg.ImageFetchTimeout), guard, log, download.PipelineConfig{
		MaxConcurrent: cfg.DownloadMaxConcurrent,
		MaxImageSize:  cfg.ImageMaxSize,
	}, svc.collector)

	// ジョブはリクエストより長生きするため、サーバーとは別のコンテキストで動かす
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	jobs := download.NewJobManager(pipeline, cfg.DownloadJobRetention, log)

	// 4. バックグラウンドジョブ
	cleanupJob := cleanup.NewCleanupJob(jobs, log)
	go cleanupJob.Start(jobCtx)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig().PerMinute(cfg.RateLimitGeneral), log,
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		MetricsHandler:    metrics.Handler(svc.registry),
		SiteBaseURL:       cfg.APIBaseURL,

		BlogService:       svc.blogs,
		MemberService:     svc.members,
		DataCache:         dataCache,
		CommentEngine:     svc.comments,
		PreferenceService: svc.preferences,
		ImagePipeline:     pipeline,
		JobManager:        jobs,
		JobContext:        jobCtx,
	}
	// memoryドライバーではnilのままにする（nilの*sql.DBを入れるとnil判定できない）
	if store.db != nil {
		deps.HealthChecker = store.db
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// ZIP生成は画像取得を待つため長めにとる
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 実行中のダウンロードジョブを止めて終了を待つ
	cancelJobs()
	jobs.Wait()

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// お気に入りメンバーの最新記事のコメント確認を定期実行し、ctxがキャンセルされると終了する。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. ストレージ
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	// 2. ドメインサービス
	svc := newServices(cfg, store.repo, log)

	// 3. コメント監視ジョブ（ブロッキング）
	watcher := commentwatch.NewWatcher(svc.preferences, svc.blogs, svc.comments, log, commentwatch.Config{
		Interval:       cfg.WatchInterval,
		PostsPerMember: cfg.WatchPostsPerMember,
	})
	watcher.Start(ctx)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQL以外のドライバーではテーブルを開くときに作成するため何もしない。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		log.Info("migration skipped", slog.String("storage_driver", cfg.StorageDriver))
		return nil
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
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
