package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clinical-backend/internal/jobs"
	"clinical-backend/internal/llm"
	openai "clinical-backend/internal/llm/openai"
	"clinical-backend/internal/queue"
	"clinical-backend/internal/shared/config"
	"clinical-backend/internal/shared/server"
	"clinical-backend/internal/shared/storage/db"
	"clinical-backend/internal/shared/storage/object"
	localstore "clinical-backend/internal/shared/storage/object/local"
	s3store "clinical-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	Queue       queue.Client
	Dispatcher  *queue.Dispatcher
	JobsRepo    jobs.Repo
	JobsService *jobs.Service
	JobsHandler *jobs.Handler
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

	llmClient, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	var repo jobs.Repo
	if sqlDB != nil {
		repo = &jobs.PGRepo{DB: sqlDB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	svc := &jobs.Service{
		Repo:         repo,
		Store:        store,
		LLM:          llmClient,
		Timeout:      time.Duration(cfg.AnalysisTimeoutSec) * time.Second,
		Model:        cfg.LLMModel,
		RewriteModel: cfg.LLMRewriteModel,
	}

	app := &App{
		Config:      cfg,
		DB:          sqlDB,
		Store:       store,
		JobsRepo:    repo,
		JobsService: svc,
	}

	if strings.TrimSpace(os.Getenv("CA_SQS_QUEUE_URL")) != "" {
		sqsClient, err := queue.NewSQSClient(ctx)
		if err != nil {
			return nil, err
		}
		app.Queue = sqsClient
	} else {
		app.Dispatcher = queue.NewDispatcher(svc, cfg.WorkerConcurrency, cfg.WorkerConcurrency*4)
		app.Queue = app.Dispatcher
	}
	svc.Queue = app.Queue

	app.JobsHandler = &jobs.Handler{
		Service:        svc,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		JobHandler: app.JobsHandler,
	})

	return app, nil
}

// Close releases background workers and the database pool.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory job store")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory job store: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; using in-memory job store: %v", err)
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

func buildLLM(cfg config.Config) (llm.Client, error) {
	if cfg.LLMProvider != "openai" {
		return llm.PlaceholderClient{}, nil
	}
	client, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: OpenAI client unavailable; completions will degrade: %v", err)
			return llm.PlaceholderClient{}, nil
		}
		return nil, err
	}
	return client, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
