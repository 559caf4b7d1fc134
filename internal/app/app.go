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

	"github.com/hitoshi/leadman/internal/auth"
	"github.com/hitoshi/leadman/internal/authz"
	"github.com/hitoshi/leadman/internal/campaign"
	"github.com/hitoshi/leadman/internal/config"
	"github.com/hitoshi/leadman/internal/database"
	"github.com/hitoshi/leadman/internal/formfield"
	"github.com/hitoshi/leadman/internal/handler"
	"github.com/hitoshi/leadman/internal/lead"
	"github.com/hitoshi/leadman/internal/logger"
	"github.com/hitoshi/leadman/internal/metrics"
	"github.com/hitoshi/leadman/internal/middleware"
	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/security"
	"github.com/hitoshi/leadman/internal/token"
	"github.com/hitoshi/leadman/internal/user"
)

// ErrMissingEmail はgrant-adminにメールアドレスが指定されていないことを示す。
var ErrMissingEmail = errors.New("usage: leadman grant-admin <email>")

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
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	if cmd == CommandGrantAdmin && len(args) < 2 {
		return ErrMissingEmail
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("credential_provider", cfg.CredentialProvider),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandGrantAdmin:
		return runGrantAdmin(cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// services はserveモードで使用する依存関係一式。
type services struct {
	deps    *handler.RouterDeps
	limiter *middleware.RateLimiter
}

// buildServices はDB接続から全依存関係をワイヤリングする。
func buildServices(cfg *config.Config, db *sql.DB) (*services, error) {
	// 1. メトリクス
	var mc metrics.MetricsCollector = metrics.Nop{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mc = metrics.NewCollector(reg)
		metricsHandler = metrics.Handler(reg)
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	leadRepo := repository.NewPostgresLeadRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)
	campaignRepo := repository.NewPostgresCampaignRepo(db)
	formFieldRepo := repository.NewPostgresFormFieldRepo(db)

	// 3. トークンと資格情報ストア
	codec, err := token.NewCodec(token.CodecConfig{
		Secret:     []byte(cfg.JWTSecret),
		DefaultTTL: cfg.JWTExpiresIn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	store, err := newCredentialStore(cfg, userRepo)
	if err != nil {
		return nil, err
	}

	// 4. ドメインサービスの初期化
	policy := authz.NewPolicy(roleRepo, userRepo, cfg.StoreTimeout, mc)
	authService := auth.NewService(store, codec, policy, mc, auth.ServiceConfig{
		DefaultTTL:   cfg.JWTExpiresIn,
		RememberTTL:  cfg.JWTRememberExpiresIn,
		StoreTimeout: cfg.StoreTimeout,
	})

	sanitizer := security.NewTextSanitizer()
	leadService := lead.NewService(leadRepo, noteRepo, policy, sanitizer, nil)
	campaignService := campaign.NewService(campaignRepo, sanitizer, nil)
	formFieldService := formfield.NewService(formFieldRepo, sanitizer, nil)
	userService := user.NewService(userRepo, roleRepo, policy, leadService)

	// 5. ミドルウェア
	guard := middleware.NewGuard(middleware.NewAuthenticator(codec, mc), policy, mc)
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	deps := &handler.RouterDeps{
		Guard:       guard,
		RateLimiter: limiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxAge:         cfg.CORSMaxAge,
		},
		Logger:            slog.Default(),
		Metrics:           mc,
		MetricsHandler:    metricsHandler,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		AdminPolicy: policy,
		UserService: userService,

		LeadService:      leadService,
		CampaignService:  campaignService,
		FormFieldService: formFieldService,

		HealthChecker: handler.NewDBHealthChecker(db, 0),
	}

	return &services{deps: deps, limiter: limiter}, nil
}

// newCredentialStore は設定に応じた資格情報ストアを生成する。
func newCredentialStore(cfg *config.Config, userRepo *repository.PostgresUserRepo) (auth.CredentialStore, error) {
	switch cfg.CredentialProvider {
	case config.CredentialProviderHosted:
		return auth.NewHostedCredentialStore(auth.HostedStoreConfig{
			BaseURL: cfg.AuthProviderURL,
			APIKey:  cfg.AuthProviderAPIKey,
			Timeout: cfg.StoreTimeout,
		}, userRepo), nil
	default:
		store, err := auth.NewPostgresCredentialStore(userRepo, cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential store: %w", err)
		}
		return store, nil
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. 依存関係のワイヤリング
	svc, err := buildServices(cfg, db)
	if err != nil {
		return err
	}
	defer svc.limiter.Stop()

	router := handler.NewRouter(svc.deps)

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

// runGrantAdmin は指定メールアドレスのユーザーに管理者権限を付与する。
func runGrantAdmin(cfg *config.Config, email string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := repository.NewPostgresUserRepo(db)
	policy := authz.NewPolicy(repository.NewPostgresRoleRepo(db), userRepo, cfg.StoreTimeout, nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()

	u, err := userRepo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user not found: %s", email)
	}

	// CLIからの付与は特定の実行者を持たない
	operator := model.RequestIdentity{ID: "cli", Email: "cli", IsAdmin: true, AdminResolved: true}
	if _, err := policy.SetAdmin(ctx, operator, u.ID, true); err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}

	slog.Info("admin role granted", slog.String("user_id", u.ID))
	return nil
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, cfg.StoreTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
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
