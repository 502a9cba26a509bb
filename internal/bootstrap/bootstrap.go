package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	appAuth "github.com/yigit/classsetup/internal/app/auth"
	appControllers "github.com/yigit/classsetup/internal/app/controllers"
	appMigrations "github.com/yigit/classsetup/internal/app/migrations"
	appRepos "github.com/yigit/classsetup/internal/app/repositories"
	appRoutes "github.com/yigit/classsetup/internal/app/routes"
	appServices "github.com/yigit/classsetup/internal/app/services"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/db"
	appMiddleware "github.com/yigit/classsetup/internal/middleware"
	pkgAuth "github.com/yigit/classsetup/internal/pkg/auth"
	"github.com/yigit/classsetup/internal/pkg/logger"
	"github.com/yigit/classsetup/internal/pkg/websocket"
	"github.com/yigit/classsetup/internal/seed"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	Store                appRepos.ClassSetupStore
	Database             *db.PostgresDB
	ClassSetupService    *appServices.ClassSetupService
	ClassSetupController *appControllers.ClassSetupController
	ChangeFeedHub        *websocket.Hub
	ChangeFeedHandler    *websocket.Handler
	AuthMiddleware       *appMiddleware.AuthMiddleware
	JWTService           *pkgAuth.JWTService
	Authorizer           *appAuth.CasbinAuthorizer
	Logger               zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:   logLevel,
		Pretty:  prettyLog,
		Service: "classsetup",
	})

	lgr := logger.Get()
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupStore opens the configured class setup store. For Postgres it also
// runs the migrations.
func SetupStore(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (appRepos.ClassSetupStore, *db.PostgresDB, error) {
	if cfg.Database.Driver == "memory" {
		store := appRepos.NewMemoryStore()
		if cfg.Database.SeedDemoData {
			seed.SeedMemory(store, lgr)
		}
		lgr.Info().Msg("Using in-memory class setup store")
		return store, nil, nil
	}

	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	migrationsDir := cfg.Database.MigrationsDir
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		database.Close()
		return nil, nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}

	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(database.Pool)
	if err := migrator.MigrateFromDirectory(ctx, migrationsDir); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	if cfg.Database.SeedDemoData {
		if err := seed.CreateDemoData(ctx, database.Pool, lgr); err != nil {
			lgr.Error().Err(err).Msg("Failed to create demo data, proceeding anyway...")
		}
	}

	return appRepos.NewClassSetupRepository(database), database, nil
}

// BuildDependencies wires the store into the services, controllers and the change feed.
func BuildDependencies(cfg *config.Config, store appRepos.ClassSetupStore, database *db.PostgresDB, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Store: store, Database: database, Logger: lgr}

	authz, err := appAuth.NewCasbinAuthorizer(cfg.Authz.ModelPath, cfg.Authz.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authorizer: %w", err)
	}
	deps.Authorizer = authz

	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenExp: cfg.AccessTokenExpiration(),
		TokenIssuer:    cfg.JWT.Issuer,
	})

	deps.ChangeFeedHub = websocket.NewHub(logger.Component(lgr, "change_feed"))

	opts := []appServices.ClassSetupOption{
		appServices.WithLogger(lgr),
		appServices.WithChangePublisher(deps.ChangeFeedHub),
	}
	if cfg.Hooks.ValidationWebhookURL != "" || cfg.Hooks.ChangeWebhookURL != "" {
		hook := appServices.NewWebhookHook(cfg.Hooks.ValidationWebhookURL, cfg.Hooks.ChangeWebhookURL, cfg.HooksTimeout(), cfg.Hooks.Headers)
		if cfg.Hooks.ValidationWebhookURL != "" {
			opts = append(opts, appServices.WithValidationHook(hook))
		}
		if cfg.Hooks.ChangeWebhookURL != "" {
			opts = append(opts, appServices.WithChangeHook(hook))
		}
		lgr.Info().
			Bool("validation", cfg.Hooks.ValidationWebhookURL != "").
			Bool("onChanged", cfg.Hooks.ChangeWebhookURL != "").
			Msg("Class setup webhooks configured")
	}

	deps.ClassSetupService = appServices.NewClassSetupService(store, authz, cfg.ClassSetup, opts...)
	deps.ClassSetupController = appControllers.NewClassSetupController(deps.ClassSetupService)
	deps.ChangeFeedHandler = websocket.NewHandler(deps.ChangeFeedHub, deps.ClassSetupService, lgr,
		websocket.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.JWTService)

	return deps, nil
}

// LogDemoTokens prints a short-lived token for every demo actor.
func LogDemoTokens(deps *Dependencies) {
	for _, actor := range seed.DemoActors() {
		token, _, err := deps.JWTService.GenerateToken(actor)
		if err != nil {
			deps.Logger.Warn().Err(err).Str("actor", actor.ExternalUserID).Msg("Failed to issue demo token")
			continue
		}
		deps.Logger.Info().Str("actor", actor.ExternalUserID).Strs("roles", actor.Roles).Str("token", token).Msg("Demo token")
	}
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if strings.ToLower(cfg.Server.Mode) == "production" {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.New()
	router.Use(gin.Recovery(), appMiddleware.RequestID(), appMiddleware.RequestLogger())

	var ping func(context.Context) error
	if deps.Database != nil {
		ping = deps.Database.Ping
	}
	appRoutes.SetupRouter(router,
		deps.ClassSetupController,
		deps.ChangeFeedHandler,
		deps.AuthMiddleware,
		appRoutes.HealthCheck{Storage: cfg.Database.Driver, Ping: ping},
	)

	return router
}
