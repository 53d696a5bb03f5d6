package bootstrap

import (
	"testing"

	"insight-backend/internal/analyses"
	"insight-backend/internal/shared/config"
)

func TestBuildDevDefaultsToMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.LocalStoreDir = t.TempDir()

	app, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if app.DB != nil {
		t.Fatalf("expected no database")
	}
	if _, ok := app.AnalysesRepo.(*analyses.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.AnalysesRepo)
	}
	if app.UploadsHandler != nil {
		t.Fatalf("local store cannot presign")
	}
	if app.Router == nil || app.Sessions == nil || app.AnalysesService.Sessions != app.Sessions {
		t.Fatalf("app not wired")
	}
}

func TestBuildProductionRequiresDatabase(t *testing.T) {
	cfg := config.Defaults()
	cfg.Env = "production"
	cfg.LocalStoreDir = t.TempDir()

	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}
