package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	dashboardshandler "github.com/quartzbyte/embedview/domains/dashboards/be/handler"
	dashboardsrepo "github.com/quartzbyte/embedview/domains/dashboards/be/repo"
	dashboardsservice "github.com/quartzbyte/embedview/domains/dashboards/be/service"
	syncservice "github.com/quartzbyte/embedview/domains/sync/be/service"
	usersrepo "github.com/quartzbyte/embedview/domains/users/be/repo"
	usersservice "github.com/quartzbyte/embedview/domains/users/be/service"
	workspaceshandler "github.com/quartzbyte/embedview/domains/workspaces/be/handler"
	workspacesprov "github.com/quartzbyte/embedview/domains/workspaces/be/provisioning"
	workspacesrepo "github.com/quartzbyte/embedview/domains/workspaces/be/repo"
	workspacesservice "github.com/quartzbyte/embedview/domains/workspaces/be/service"
	platformauth "github.com/quartzbyte/embedview/platform/go/auth"
	platformlogging "github.com/quartzbyte/embedview/platform/go/logging"
	"github.com/quartzbyte/embedview/platform/go/metabase"
	"github.com/quartzbyte/embedview/platform/go/metabase/embed"
	platformmiddleware "github.com/quartzbyte/embedview/platform/go/middleware"
	"github.com/quartzbyte/embedview/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	MetabaseURL           string        `env:"METABASE_URL,required"`
	MetabaseAdminEmail    string        `env:"METABASE_ADMIN_EMAIL,required"`
	MetabaseAdminPassword string        `env:"METABASE_ADMIN_PASSWORD,required"`
	MetabaseSiteName      string        `env:"METABASE_SITE_NAME" envDefault:"Analytics"`
	MetabaseStartupWait   time.Duration `env:"METABASE_STARTUP_WAIT" envDefault:"2m"`

	EmbeddingSecret string        `env:"METABASE_EMBEDDING_SECRET,required"`
	EmbedMaxTTL     time.Duration `env:"EMBED_MAX_TTL" envDefault:"24h"`

	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`

	// Shared analytics database registered with Metabase. Leaving the host
	// empty skips registration; provisioning then skips the database grant.
	AnalyticsDBName     string `env:"ANALYTICS_DB_NAME" envDefault:"Analytics Database"`
	AnalyticsDBHost     string `env:"ANALYTICS_DB_HOST"`
	AnalyticsDBPort     int    `env:"ANALYTICS_DB_PORT" envDefault:"5432"`
	AnalyticsDBDatabase string `env:"ANALYTICS_DB_DATABASE"`
	AnalyticsDBUser     string `env:"ANALYTICS_DB_USER"`
	AnalyticsDBPassword string `env:"ANALYTICS_DB_PASSWORD"`

	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("apply database schema", zap.Error(err))
	}

	mb := metabase.NewClient(metabase.Config{
		BaseURL:       cfg.MetabaseURL,
		AdminEmail:    cfg.MetabaseAdminEmail,
		AdminPassword: cfg.MetabaseAdminPassword,
		Logger:        logger,
	})

	if !waitForMetabase(ctx, mb, cfg.MetabaseStartupWait) {
		logger.Fatal("metabase did not become healthy", zap.Duration("waited", cfg.MetabaseStartupWait))
	}

	if err := mb.Setup(ctx, metabase.SetupParams{
		AdminEmail:    cfg.MetabaseAdminEmail,
		AdminPassword: cfg.MetabaseAdminPassword,
		FirstName:     "Admin",
		LastName:      "User",
		SiteName:      cfg.MetabaseSiteName,
	}); err != nil {
		logger.Fatal("first-run metabase setup", zap.Error(err))
	}

	analyticsDBID := ensureAnalyticsDatabase(ctx, mb, cfg, logger)

	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	workspaceStore, err := persistence.NewWorkspaceStore(pool)
	if err != nil {
		logger.Fatal("init workspace store", zap.Error(err))
	}
	dashboardStore, err := persistence.NewDashboardStore(pool)
	if err != nil {
		logger.Fatal("init dashboard store", zap.Error(err))
	}

	userRepo := usersrepo.NewPostgresRepository(userStore)
	userService := usersservice.New(userRepo)

	issuer := embed.NewIssuer(embed.Config{
		Secret: cfg.EmbeddingSecret,
		MaxTTL: cfg.EmbedMaxTTL,
	})

	workspaceRepo := workspacesrepo.NewPostgresRepository(workspaceStore)
	orchestrator := workspacesprov.NewOrchestrator(workspacesprov.Config{
		Gateway:             mb,
		Store:               workspaceRepo,
		AnalyticsDatabaseID: analyticsDBID,
		Logger:              logger,
	})
	workspaceService := workspacesservice.New(workspaceRepo, orchestrator, mb, issuer, logger)
	workspaceHTTPHandler := workspaceshandler.New(workspaceService, userService, logger)

	dashboardRepo := dashboardsrepo.NewPostgresRepository(dashboardStore)
	dashboardService := dashboardsservice.New(dashboardRepo, mb, workspaceService, issuer)
	dashboardHTTPHandler := dashboardshandler.New(dashboardService, userService, logger)

	syncEngine := syncservice.NewEngine(mb, workspaceRepo, dashboardRepo, logger)

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go runSyncLoop(syncCtx, syncEngine, cfg.SyncInterval, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !mb.Health(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	workspaceHTTPHandler.Routes(apiRouter)
	dashboardHTTPHandler.Routes(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	stopSync()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// waitForMetabase polls the health endpoint until it answers or the budget
// runs out.
func waitForMetabase(ctx context.Context, mb *metabase.Client, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if mb.Health(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(2 * time.Second):
		}
	}
}

// ensureAnalyticsDatabase makes sure the shared analytics connection is
// registered with Metabase and returns its id. Best-effort: any failure is
// logged and provisioning simply skips the database grant.
func ensureAnalyticsDatabase(ctx context.Context, mb *metabase.Client, cfg config, logger *zap.Logger) *int {
	databases, err := mb.ListDatabases(ctx)
	if err != nil {
		logger.Warn("could not list metabase databases", zap.Error(err))
		return nil
	}
	for _, db := range databases {
		if strings.EqualFold(db.Name, cfg.AnalyticsDBName) {
			id := db.ID
			return &id
		}
	}

	if cfg.AnalyticsDBHost == "" {
		logger.Info("no analytics database configured, workspace grants will be skipped")
		return nil
	}

	created, err := mb.AddDatabase(ctx, metabase.DatabaseConn{
		Name:     cfg.AnalyticsDBName,
		Engine:   "postgres",
		Host:     cfg.AnalyticsDBHost,
		Port:     cfg.AnalyticsDBPort,
		DBName:   cfg.AnalyticsDBDatabase,
		User:     cfg.AnalyticsDBUser,
		Password: cfg.AnalyticsDBPassword,
	})
	if err != nil {
		logger.Warn("could not register analytics database", zap.Error(err))
		return nil
	}
	if err := mb.SyncDatabaseSchema(ctx, created.ID); err != nil {
		logger.Warn("could not trigger schema sync", zap.Int("database_id", created.ID), zap.Error(err))
	}

	id := created.ID
	return &id
}

// runSyncLoop runs one reconciliation pass immediately and then on a fixed
// interval until the context is cancelled.
func runSyncLoop(ctx context.Context, engine *syncservice.Engine, interval time.Duration, logger *zap.Logger) {
	runPass := func() {
		if _, err := engine.RunPass(ctx); err != nil {
			logger.Error("reconciliation pass failed", zap.Error(err))
		}
	}

	runPass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPass()
		}
	}
}

func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	firebaseClient, err := platformauth.InitFirebase(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		logger.Fatal("init firebase auth", zap.Error(err))
	}
	return platformauth.JWT(platformauth.FirebaseVerify(firebaseClient), platformauth.DefaultCredentialExtractor)
}
