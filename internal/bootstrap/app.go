package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/analyses"
	"insight-backend/internal/risk"
	"insight-backend/internal/services/health"
	"insight-backend/internal/sessions"
	"insight-backend/internal/shared/config"
	"insight-backend/internal/shared/server"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/storage/db"
	"insight-backend/internal/shared/storage/object"
	localstore "insight-backend/internal/shared/storage/object/local"
	"insight-backend/internal/shared/storage/object/miniostore"
	s3store "insight-backend/internal/shared/storage/object/s3"
	"insight-backend/internal/shared/telemetry"
	"insight-backend/internal/uploads"
)

// App holds shared dependencies and the assembled router.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	Sessions        *sessions.Store
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	UploadsHandler  *uploads.Handler
	Health          *health.Service
}

// Build connects storage, wires services and registers routes.
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
		closeDB(sqlDB)
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	if sqlDB != nil {
		app.AnalysesRepo = &analyses.PGRepo{DB: sqlDB}
	} else {
		app.AnalysesRepo = analyses.NewMemoryRepo()
	}

	svc := &analyses.Service{
		Risk:            risk.NewEvaluator(cfg.Risk),
		Repo:            app.AnalysesRepo,
		Store:           store,
		MaxLimit:        cfg.RankMaxLimit,
		PreviewRows:     cfg.PreviewRows,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		PurgeRawOnEvict: cfg.DeleteRawOnEvict,
	}
	svc.Sessions = sessions.New(
		sessions.WithTTL(cfg.SessionTTL),
		sessions.WithMaxSessions(cfg.SessionMax),
		sessions.WithEvictHook(svc.OnEvict),
	)
	app.Sessions = svc.Sessions
	app.AnalysesService = svc
	app.AnalysisHandler = analyses.NewHandler(svc)

	if p, ok := store.(object.Presigner); ok {
		app.UploadsHandler = uploads.NewHandler(p, cfg.UploadsPrefix, cfg.MaxUploadBytes())
	}

	if sqlDB != nil {
		app.Health = health.NewService(sqlDB, app.Sessions)
	} else {
		app.Health = health.NewService(nil, app.Sessions)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		AnalysisHandler: app.AnalysisHandler,
		UploadsHandler:  app.UploadsHandler,
		Health:          app.Health,
		Limiter:         middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close evicts every session, then releases the database.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_repo", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			closeDB(sqlDB)
			sqlDB = nil
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repo", map[string]any{"reason": "database unavailable", "err": err})
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
	case "minio":
		store, err := miniostore.New(ctx, cfg.MinIOEndpoint, cfg.AWSRegion, cfg.MinIOBucket, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio store: %w", err)
		}
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
