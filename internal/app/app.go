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
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/chime/internal/auth"
	"github.com/hitoshi/chime/internal/config"
	"github.com/hitoshi/chime/internal/database"
	"github.com/hitoshi/chime/internal/engagement"
	"github.com/hitoshi/chime/internal/handler"
	"github.com/hitoshi/chime/internal/logger"
	"github.com/hitoshi/chime/internal/metrics"
	"github.com/hitoshi/chime/internal/middleware"
	"github.com/hitoshi/chime/internal/repository"
	"github.com/hitoshi/chime/internal/worker/backfill"
	"github.com/hitoshi/chime/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

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

	// パッチ名の検証はDB接続より前に行う
	var patchName string
	if cmd == CommandBackfill {
		rest := commandArgs(args)
		if len(rest) == 0 {
			return fmt.Errorf("backfill requires a patch name (one of: %s)", strings.Join(backfill.Names(), ", "))
		}
		patchName = rest[0]
		if _, ok := backfill.Lookup(patchName); !ok {
			return fmt.Errorf("unknown backfill patch %q (one of: %s)", patchName, strings.Join(backfill.Names(), ", "))
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandBackfill:
		return runBackfill(cfg, patchName)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるcontextを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runServe はRPCサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "chime"),
	)
	collector := metrics.NewCollector(reg)

	// 3. ストアとドメインサービスの初期化
	store := repository.NewPostgresStore(db, cfg.TxMaxAttempts)
	store.SetRetryHook(func(attempt int, err error) {
		collector.RecordTxRetry()
		slog.Warn("retrying transaction",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	})

	engagementService := engagement.NewService(store, slog.Default(),
		engagement.WithViewCooldown(cfg.ViewCooldown),
	)

	// 4. 認証・レート制限
	var verifierOpts []auth.VerifierOption
	if cfg.TokenIssuer != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.TokenIssuer))
	}
	verifier := auth.NewVerifier(cfg.TokenSecret, verifierOpts...)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitEngagement),
	)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		HealthChecker:  store,
		MetricsHandler: metrics.Handler(reg),

		EngagementService: engagementService,
		Metrics:           collector,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	// 7. 孤立マーカーの定期削除
	if cfg.CleanupInterval > 0 {
		cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)
		go runPeriodically(ctx, cfg.CleanupInterval, func(ctx context.Context) {
			if _, err := cleanupJob.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		})
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("RPC server starting",
			slog.String("addr", server.Addr),
			slog.Duration("view_cooldown", engagementService.ViewCooldown()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down RPC server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("RPC server stopped gracefully")
	return nil
}

// runPeriodically は起動直後に1回fnを実行し、以降interval毎に繰り返す。
// ctxがキャンセルされると戻る。
func runPeriodically(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runBackfill は名前付きパッチをコレクション全体に適用する。
// 途中で中断した場合も再実行すれば残りが処理される。
func runBackfill(cfg *config.Config, patchName string) error {
	patch, ok := backfill.Lookup(patchName)
	if !ok {
		return fmt.Errorf("unknown backfill patch %q", patchName)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	job := backfill.NewJob(
		repository.NewPostgresBackfillRepo(db),
		slog.Default(),
		metrics.NopCollector{},
		cfg.BackfillBatchSize,
	)
	res, err := job.Run(ctx, patch)
	if err != nil {
		return fmt.Errorf("backfill %s failed after %d documents: %w", patch.Name, res.Scanned, err)
	}
	return nil
}

// runCleanup は孤立したエンゲージメントマーカーを削除する。
func runCleanup(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	job := cleanup.NewCleanupJob(db, slog.Default(), metrics.NopCollector{})
	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
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
