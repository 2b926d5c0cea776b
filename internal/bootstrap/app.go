// Package bootstrap assembles the pipeline from configuration: storage
// backends, the threat scanner, repositories, and the HTTP surface.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"ingest-backend/internal/analyze"
	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/ingest"
	"ingest-backend/internal/quarantine"
	"ingest-backend/internal/rescan"
	"ingest-backend/internal/services/health"
	"ingest-backend/internal/shared/config"
	"ingest-backend/internal/shared/server"
	"ingest-backend/internal/shared/storage/db"
	"ingest-backend/internal/shared/storage/object"
	localstore "ingest-backend/internal/shared/storage/object/local"
	s3store "ingest-backend/internal/shared/storage/object/s3"
	"ingest-backend/internal/validate"
)

// App holds shared dependencies.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	DB      *sql.DB
	Objects object.ObjectStore
	Repo    artifacts.Repo
	Store   *artifacts.Store
	Scanner quarantine.Scanner
	Queue   rescan.Enqueuer
	Service *ingest.Service
	Handler *ingest.Handler
	Worker  *rescan.Worker
}

// Build prepares shared dependencies and wires routes.
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

	objects, err := buildObjects(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var repo artifacts.Repo
	if sqlDB != nil {
		repo = &artifacts.PGRepo{DB: sqlDB}
	} else {
		repo = artifacts.NewMemoryRepo()
	}

	store := artifacts.NewStore(repo, objects, artifacts.QuotaLimits{
		MaxActiveDocuments: cfg.MaxActiveDocuments,
		MaxStoredBytes:     cfg.MaxStoredBytes,
	})

	scanner := buildScanner(cfg)
	policy := quarantine.FailClosed
	if cfg.ScanFailOpen {
		policy = quarantine.FailOpen
	}
	gate := quarantine.NewGate(scanner, cfg.ScanTimeout, policy)

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limits := validate.Limits{
		MinBytes:     cfg.MinUploadBytes,
		MaxBytes:     cfg.MaxUploadBytes,
		MinTextChars: cfg.MinTextChars,
		MaxTextChars: cfg.MaxTextChars,
	}
	svc := ingest.NewService(
		validate.NewChain(limits),
		gate,
		store,
		analyze.New(nil),
		queue,
		ingest.Options{
			Limits: limits,
			Quota: artifacts.QuotaLimits{
				MaxActiveDocuments: cfg.MaxActiveDocuments,
				MaxStoredBytes:     cfg.MaxStoredBytes,
			},
			ExtractTimeout: cfg.ExtractTimeout,
			MaxPDFPages:    cfg.MaxPDFPages,
			RedactPII:      cfg.RedactPII,
		},
	)

	handler := ingest.NewHandler(svc)
	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Objects: objects,
		Repo:    repo,
		Store:   store,
		Scanner: scanner,
		Queue:   queue,
		Service: svc,
		Handler: handler,
		Worker:  rescan.NewWorker(store, scanner),
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config: cfg,
		Ingest: handler,
		Health: health.NewService(sqlDB),
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
	return sqlDB, nil
}

func buildObjects(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildScanner(cfg config.Config) quarantine.Scanner {
	if strings.TrimSpace(cfg.ScannerURL) == "" {
		return nil
	}
	return quarantine.NewHTTPScanner(cfg.ScannerURL)
}

func buildQueue(ctx context.Context, cfg config.Config) (rescan.Enqueuer, error) {
	if strings.TrimSpace(cfg.RescanQueueURL) == "" {
		if isDevLike(cfg.Env) {
			return rescan.LogQueue{}, nil
		}
		// Without a queue the periodic sweep is the only rescan path.
		log.Printf("bootstrap: RESCAN_QUEUE_URL empty; rescans settle via sweep only")
		return rescan.LogQueue{}, nil
	}
	return rescan.NewSQSQueue(ctx, cfg.RescanQueueURL, cfg.AWSRegion)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
