package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/analyzers"
	"clinical-review-backend/internal/batch"
	"clinical-review-backend/internal/extraction"
	"clinical-review-backend/internal/llm"
	"clinical-review-backend/internal/llm/openai"
	"clinical-review-backend/internal/notify"
	"clinical-review-backend/internal/queue"
	"clinical-review-backend/internal/results"
	"clinical-review-backend/internal/services/health"
	"clinical-review-backend/internal/shared/config"
	"clinical-review-backend/internal/shared/server"
	"clinical-review-backend/internal/shared/storage/db"
	"clinical-review-backend/internal/shared/storage/object"
	localstore "clinical-review-backend/internal/shared/storage/object/local"
	s3store "clinical-review-backend/internal/shared/storage/object/s3"
	"clinical-review-backend/internal/shared/telemetry"
	"clinical-review-backend/internal/tenants"
)

// App holds shared dependencies.
type App struct {
	Config       config.Config
	Router       *gin.Engine
	DB           *sql.DB
	LLM          llm.Client
	Engine       *extraction.Engine
	Dispatcher   *analyzers.Dispatcher
	Queue        *queue.Queue
	Stores       *results.Stores
	Tenants      tenants.Resolver
	Archive      object.ObjectStore
	Notifier     notify.Notifier
	BatchService *batch.Service
	BatchHandler *batch.Handler
	Health       *health.Service
}

// Build prepares every dependency and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	telemetry.Configure(cfg.LogLevel, cfg.Env)
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, backend, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		LLM:      client,
		Archive:  archive,
		Notifier: notifier,
		Queue:    queue.New(),
	}

	resultBackend := "memory"
	if sqlDB != nil {
		stores, err := results.NewPGStores(sqlDB)
		if err != nil {
			return nil, err
		}
		app.Stores = stores
		app.Tenants = &tenants.PGResolver{DB: sqlDB}
		resultBackend = "postgres"
	} else {
		app.Stores = results.NewMemoryStores()
		app.Tenants = tenants.NewMemoryResolver(cfg.DevTenants)
	}

	app.Engine = extraction.NewEngine(client, extraction.Options{
		Timeout:          time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		MaxDocumentRunes: cfg.MaxDocumentRunes,
	})
	app.Dispatcher = analyzers.NewDefaultDispatcher(app.Engine)
	app.BatchService = batch.NewService(batch.Deps{
		Dispatcher: app.Dispatcher,
		Queue:      app.Queue,
		Stores:     app.Stores,
		Tenants:    app.Tenants,
		Archive:    app.Archive,
		Notifier:   app.Notifier,
	}, batch.Options{
		Concurrency:  cfg.BatchConcurrency,
		Timeout:      time.Duration(cfg.BatchTimeoutSeconds) * time.Second,
		DefaultModel: cfg.LLMModel,
	})
	app.BatchHandler = batch.NewHandler(app.BatchService, cfg.MaxUploadBytes)

	archiveBackend := ""
	if archive != nil {
		archiveBackend = cfg.ObjectStoreType
	}
	var pinger health.Pinger
	if sqlDB != nil {
		pinger = sqlDB
	}
	app.Health = health.NewService(pinger, backend, resultBackend, archiveBackend)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:       cfg,
		BatchHandler: app.BatchHandler,
		Health:       app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":           cfg.Env,
		"llm":           backend,
		"result_store":  resultBackend,
		"archive":       archiveBackend,
		"notifications": cfg.ResultsQueueURL != "",
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	profile := db.RuntimeProfile()
	opts := DBOptions(cfg, profile)
	var (
		sqlDB *sql.DB
		err   error
	)
	if profile == db.ProfileLambda {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, opts)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database_connect_failed", map[string]any{
				"fallback": "memory",
				"error":    err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

// DBOptions sizes the pool for profile with the DB_* overrides from cfg.
func DBOptions(cfg config.Config, profile db.Profile) db.Options {
	return db.OptionsFor(profile, db.Overrides{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	})
}

func buildArchive(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "local":
		return localstore.New(cfg.LocalStoreDir), nil
	default:
		return nil, nil
	}
}

func buildNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	if strings.TrimSpace(cfg.ResultsQueueURL) == "" {
		return notify.Noop{}, nil
	}
	return notify.NewSQSNotifier(ctx, cfg.ResultsQueueURL, cfg.AWSRegion)
}

// buildLLM returns the model backend and a label for health reporting.
func buildLLM(cfg config.Config) (llm.Client, string, error) {
	switch cfg.LLMProvider {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" && cfg.IsDevLike() {
			telemetry.Warn("bootstrap.llm_disabled", map[string]any{"reason": "OPENAI_API_KEY empty"})
			return llm.Disabled{}, "disabled", nil
		}
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
			Timeout: time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, "", err
		}
		return llm.NewRetrying(client, cfg.LLMMaxAttempts), "openai", nil
	case "", "none", "disabled":
		return llm.Disabled{}, "disabled", nil
	default:
		return nil, "", fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
