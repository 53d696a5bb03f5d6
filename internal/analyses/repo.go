package analyses

import (
	"context"
	"time"
)

// Repo persists the audit trail of uploads and capability runs.
type Repo interface {
	CreateDataset(ctx context.Context, d Dataset) error
	GetDataset(ctx context.Context, id string) (Dataset, error)
	CloseDataset(ctx context.Context, id, reason string, at time.Time) error
	CreateRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, analysisID string, limit int) ([]Run, error)
}
