package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores the audit trail in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	datasets map[string]Dataset
	closed   map[string]string
	runs     map[string][]Run
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		datasets: make(map[string]Dataset),
		closed:   make(map[string]string),
		runs:     make(map[string][]Run),
	}
}

// CreateDataset stores the dataset record.
func (r *MemoryRepo) CreateDataset(ctx context.Context, d Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[d.ID] = d
	return nil
}

// GetDataset returns a dataset record by ID.
func (r *MemoryRepo) GetDataset(ctx context.Context, id string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return d, nil
}

// CloseDataset marks a dataset's session as gone.
func (r *MemoryRepo) CloseDataset(ctx context.Context, id, reason string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[id]; !ok {
		return ErrNotFound
	}
	r.closed[id] = reason
	return nil
}

// CloseReason returns why a dataset's session was closed, if it was.
func (r *MemoryRepo) CloseReason(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reason, ok := r.closed[id]
	return reason, ok
}

// CreateRun appends a run record.
func (r *MemoryRepo) CreateRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.AnalysisID] = append(r.runs[run.AnalysisID], run)
	return nil
}

// ListRuns returns the runs of an analysis, newest first.
func (r *MemoryRepo) ListRuns(ctx context.Context, analysisID string, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	stored := r.runs[analysisID]
	runs := make([]Run, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		runs = append(runs, stored[i])
	}
	r.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
