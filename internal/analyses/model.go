package analyses

import (
	"time"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/dataset"
	"insight-backend/internal/queries"
	"insight-backend/internal/risk"
	"insight-backend/internal/schema"
)

// Run outcomes recorded in the audit trail.
const (
	OutcomeOK      = "ok"
	OutcomeBlocked = "blocked"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Dataset is the audit record of one upload.
type Dataset struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	StorageKey  string    `json:"storageKey,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	RowCount    int       `json:"rowCount"`
	ColumnCount int       `json:"columnCount"`
	TimeColumn  string    `json:"timeColumn,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Run is the audit record of one capability dispatch.
type Run struct {
	ID           string    `json:"id"`
	AnalysisID   string    `json:"analysisId"`
	Capability   string    `json:"capability"`
	Params       RunParams `json:"params"`
	Outcome      string    `json:"outcome"`
	FindingCount int       `json:"findingCount"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Params are the caller supplied capability parameters. Parameters a
// capability does not support are ignored.
type Params struct {
	Granularity string `json:"granularity,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
}

// RunParams are the parameters a run actually used after defaults.
type RunParams struct {
	Granularity string `json:"granularity,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
}

// Result is the capability specific envelope. It is either a SeriesResult or
// an ItemsResult; the set is closed.
type Result interface {
	Shape() capabilities.Shape
	isResult()
}

// SeriesResult is a chronological series. Buckets without orders are omitted.
type SeriesResult struct {
	queries.Series
}

func (SeriesResult) Shape() capabilities.Shape { return capabilities.ShapeSeries }
func (SeriesResult) isResult()                 {}

// ItemsResult is a ranking or proportion ordered by value.
type ItemsResult struct {
	queries.Items
}

func (ItemsResult) Shape() capabilities.Shape { return capabilities.ShapeItems }
func (ItemsResult) isResult()                 {}

// RunResult is what a successful dispatch returns.
type RunResult struct {
	AnalysisID string             `json:"analysisId"`
	Capability capabilities.Key   `json:"capability"`
	Chart      string             `json:"chart"`
	Shape      capabilities.Shape `json:"shape"`
	Params     RunParams          `json:"params"`
	Result     Result             `json:"result"`
	Findings   []risk.Finding     `json:"findings"`
}

// Summary describes a live analysis session.
type Summary struct {
	AnalysisID string          `json:"analysisId"`
	FileName   string          `json:"fileName"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt time.Time       `json:"lastUsedAt"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
	Schema     schema.Schema   `json:"schema"`
	Overview   schema.Overview `json:"overview"`
}

// CapabilityStatus reports whether a capability can run on a session.
type CapabilityStatus struct {
	capabilities.Descriptor
	Available bool           `json:"available"`
	Findings  []risk.Finding `json:"findings"`
}

// Preview is the first rows of a dataset.
type Preview struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"totalRows"`
}

// DistinctValues lists the most frequent values of a column.
type DistinctValues struct {
	Column string               `json:"column"`
	Values []dataset.ValueCount `json:"values"`
}
