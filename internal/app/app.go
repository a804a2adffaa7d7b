// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/solidfoundation/internal/appuser"
	"github.com/hitoshi/solidfoundation/internal/auth"
	"github.com/hitoshi/solidfoundation/internal/config"
	"github.com/hitoshi/solidfoundation/internal/contact"
	"github.com/hitoshi/solidfoundation/internal/database"
	"github.com/hitoshi/solidfoundation/internal/handler"
	"github.com/hitoshi/solidfoundation/internal/identity"
	"github.com/hitoshi/solidfoundation/internal/logger"
	"github.com/hitoshi/solidfoundation/internal/metrics"
	"github.com/hitoshi/solidfoundation/internal/middleware"
	"github.com/hitoshi/solidfoundation/internal/notify"
	"github.com/hitoshi/solidfoundation/internal/repository"
	"github.com/hitoshi/solidfoundation/internal/security"
	"github.com/hitoshi/solidfoundation/internal/worker/retention"
)

// userCacheTTL はアクセストークンに対するユーザー検証結果のキャッシュ期間。
const userCacheTTL = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_url", cfg.AppURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はプロセス・ランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildRouterDeps はAPIサーバーの依存関係を組み立てる。
// 返されるRateLimiterは呼び出し側でStopすること。
func buildRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) *handler.RouterDeps {
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	collector := metrics.NewCollector(reg)

	// 1. 外部サービスのクライアント
	idp := identity.NewCachingProvider(identity.NewClient(identity.ClientConfig{
		BaseURL:    cfg.IdentityProviderURL,
		APIKey:     cfg.IdentityProviderKey,
		HTTPClient: httpClient,
	}), userCacheTTL)
	users := appuser.NewClient(httpClient, log, cfg.UserServiceURL)

	notifier := notify.New(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.HTTPClientTimeout,
	}, cfg.ContactEmail, log)

	// 2. ドメインサービス
	contactService := contact.NewService(
		repository.NewPostgresContactRepo(db),
		security.NewTextSanitizer(),
		notifier,
		log,
	)
	authService := auth.NewService(users, log)

	return &handler.RouterDeps{
		Logger:        log,
		HealthChecker: db,

		IdentityProvider:  idp,
		AppURL:            cfg.AppURL,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter: middleware.NewRateLimiter(
			middleware.NewRateLimiterConfig(cfg.RateLimitContact, cfg.RateLimitAuth),
		),

		AuthService: authService,
		Flows:       identity.NewFlowStore(cfg.OAuthFlowTTL),

		ContactService: contactService,

		Metrics:  collector,
		Gatherer: reg,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	deps := buildRouterDeps(cfg, db, newRegistry(), slog.Default())
	defer deps.RateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はサーバーを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クローズ済み問い合わせの保持期間ジョブを日次で実行する。
// WORKER_METRICS_PORTが設定されている場合は/metricsを公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newRegistry()
	job := retention.NewJob(
		repository.NewPostgresContactRepo(db),
		slog.Default(),
		metrics.NewCollector(reg),
		cfg.ContactRetentionDays,
	)

	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := serveUntilDone(ctx, metricsServer, "worker metrics server"); err != nil {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	slog.Info("worker starting",
		slog.Int("retention_days", cfg.ContactRetentionDays),
		slog.Duration("interval", retention.DefaultInterval),
	)

	// 保持期間ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, retention.DefaultInterval)

	slog.Info("worker stopped gracefully")
	return nil
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

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
