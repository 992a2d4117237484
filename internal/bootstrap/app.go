// Package bootstrap builds the application's dependency graph from config:
// database (or in-memory fallback), object store, pipeline client, queue,
// the sessions service, and the HTTP router.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/prefetch"
	"onboarding-backend/internal/queue"
	"onboarding-backend/internal/sessions"
	"onboarding-backend/internal/shared/config"
	"onboarding-backend/internal/shared/server"
	"onboarding-backend/internal/shared/storage/db"
	"onboarding-backend/internal/shared/storage/object"
	localstore "onboarding-backend/internal/shared/storage/object/local"
	s3store "onboarding-backend/internal/shared/storage/object/s3"
	"onboarding-backend/internal/statusclient"
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Queue    queue.Client
	Pipeline *statusclient.Client

	SessionsRepo    sessions.Repo
	SessionsService *sessions.Service
	SessionsHandler *sessions.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	pipeline, err := statusclient.New(statusclient.Config{
		BaseURL:      cfg.PipelineBaseURL,
		Timeout:      cfg.PipelineTimeout,
		Token:        cfg.PipelineToken,
		ClientID:     cfg.PipelineClientID,
		ClientSecret: cfg.PipelineClientSecret,
		TokenURL:     cfg.PipelineTokenURL,
	})
	if err != nil {
		return nil, err
	}

	var repo sessions.Repo
	if sqlDB != nil {
		repo = &sessions.PGRepo{DB: sqlDB}
	} else {
		repo = sessions.NewMemoryRepo()
	}

	svc := &sessions.Service{
		Repo:     repo,
		Pipeline: pipeline,
		Store:    store,
		Queue:    queueClient,
		Prefetch: prefetch.Default,
		Waits: sessions.WaitConfig{
			TrackerInitialDelay:  cfg.TrackerInitialDelay,
			TrackerInterval:      cfg.TrackerInterval,
			TrackerMaxAttempts:   cfg.TrackerMaxAttempts,
			BlockingWaitInterval: cfg.BlockingWaitInterval,
			BlockingWaitCeiling:  cfg.BlockingWaitCeiling,
			ReadinessDelay:       cfg.ReadinessDelay,
			ReadinessInterval:    cfg.ReadinessInterval,
			ReadinessCeiling:     cfg.ReadinessCeiling,
		},
		StrictExtraction: cfg.StrictExtraction,
	}
	handler := sessions.NewHandler(svc)

	app := &App{
		Config:          cfg,
		DB:              sqlDB,
		Store:           store,
		Queue:           queueClient,
		Pipeline:        pipeline,
		SessionsRepo:    repo,
		SessionsService: svc,
		SessionsHandler: handler,
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		Onboarding: handler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; using in-memory repositories: %v", err)
			sqlDB.Close()
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("PREFETCH_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
