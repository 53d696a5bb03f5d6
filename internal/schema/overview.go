package schema

import (
	"math"
	"sort"
	"strings"
	"time"

	"insight-backend/internal/dataset"
)

const missingTopN = 5

var excludedStatuses = map[string]struct{}{
	"cancel":    {},
	"cancelled": {},
	"canceled":  {},
	"refunded":  {},
}

// ColumnRatio is one entry of the missing-value digest.
type ColumnRatio struct {
	Column string  `json:"column"`
	Ratio  float64 `json:"ratio"`
}

// Overview is the data-quality digest and health facts shown after upload.
type Overview struct {
	RowCount               int           `json:"rowCount"`
	ColumnCount            int           `json:"columnCount"`
	FileSizeBytes          int64         `json:"fileSizeBytes"`
	FileSizeMB             float64       `json:"fileSizeMb"`
	SkippedRows            int           `json:"skippedRows"`
	ColumnTypes            map[Type]int  `json:"columnTypes"`
	MissingValueTopColumns []ColumnRatio `json:"missingValueTopColumns"`
	DatetimeColumns        []string      `json:"datetimeColumns"`
	OrderCount             *int          `json:"orderCount"`
	OrderItemCount         *int          `json:"orderItemCount"`
	MemberCount            *int          `json:"memberCount"`
	ProductCount           *int          `json:"productCount"`
	GeneratedAt            time.Time     `json:"generatedAt"`
}

// BuildOverview computes health facts for a frame and its schema. Counts are
// nil when the matching role was not resolved.
func BuildOverview(f *dataset.Frame, s Schema, fileSize int64, now time.Time) Overview {
	ov := Overview{
		RowCount:               s.RowCount,
		ColumnCount:            len(s.Columns),
		FileSizeBytes:          fileSize,
		FileSizeMB:             round(float64(fileSize)/(1024*1024), 2),
		SkippedRows:            f.SkippedRows(),
		ColumnTypes:            map[Type]int{},
		MissingValueTopColumns: []ColumnRatio{},
		DatetimeColumns:        []string{},
		GeneratedAt:            now.UTC(),
	}

	for _, c := range s.Columns {
		ov.ColumnTypes[c.Type]++
		if c.Type == TypeDatetime {
			ov.DatetimeColumns = append(ov.DatetimeColumns, c.Name)
		}
		if r := s.MissingValueRatio[c.Name]; r > 0 {
			ov.MissingValueTopColumns = append(ov.MissingValueTopColumns, ColumnRatio{Column: c.Name, Ratio: round(r, 4)})
		}
	}
	sort.SliceStable(ov.MissingValueTopColumns, func(i, j int) bool {
		return ov.MissingValueTopColumns[i].Ratio > ov.MissingValueTopColumns[j].Ratio
	})
	if len(ov.MissingValueTopColumns) > missingTopN {
		ov.MissingValueTopColumns = ov.MissingValueTopColumns[:missingTopN]
	}

	if col, ok := s.Field(FeatureOrderID); ok {
		orders := distinctNonNull(f, col)
		ov.OrderCount = &orders
		items := countActiveRows(f, s)
		ov.OrderItemCount = &items
	}
	if col, ok := s.Field(FeatureMemberID); ok {
		n := distinctNonNull(f, col)
		ov.MemberCount = &n
	}
	if col, ok := s.Field(FeatureProduct); ok {
		n := distinctNonNull(f, col)
		ov.ProductCount = &n
	}
	return ov
}

// ActiveStatus reports whether a status value counts toward order items.
func ActiveStatus(status string) bool {
	_, excluded := excludedStatuses[strings.ToLower(strings.TrimSpace(status))]
	return !excluded
}

func distinctNonNull(f *dataset.Frame, name string) int {
	idx, ok := f.Index(name)
	if !ok {
		return 0
	}
	seen := make(map[string]struct{})
	for r := 0; r < f.Len(); r++ {
		if !f.IsNull(idx, r) {
			seen[f.Value(idx, r)] = struct{}{}
		}
	}
	return len(seen)
}

func countActiveRows(f *dataset.Frame, s Schema) int {
	col, ok := s.Field(FeatureStatus)
	if !ok {
		return f.Len()
	}
	idx, ok := f.Index(col)
	if !ok {
		return f.Len()
	}
	n := 0
	for r := 0; r < f.Len(); r++ {
		if ActiveStatus(f.Value(idx, r)) {
			n++
		}
	}
	return n
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
