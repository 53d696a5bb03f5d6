package risk

import (
	"fmt"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/schema"
)

// Thresholds tune the warning rules.
type Thresholds struct {
	MinTrendBuckets int     `yaml:"min_trend_buckets"`
	MinRows         int     `yaml:"min_rows"`
	MaxMissingRatio float64 `yaml:"max_missing_ratio"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrendBuckets: 30,
		MinRows:         30,
		MaxMissingRatio: 0.3,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.MinTrendBuckets <= 0 {
		t.MinTrendBuckets = def.MinTrendBuckets
	}
	if t.MinRows <= 0 {
		t.MinRows = def.MinRows
	}
	if t.MaxMissingRatio <= 0 {
		t.MaxMissingRatio = def.MaxMissingRatio
	}
	return t
}

// Evaluator checks whether a capability can be run faithfully on a schema.
type Evaluator struct {
	th Thresholds
}

// NewEvaluator builds an Evaluator; zero thresholds fall back to defaults.
func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	return e.th
}

// Evaluate runs every rule and returns all findings in rule order. It never
// stops at the first block so callers always see the full picture. grain is
// the requested granularity or empty when the capability has none.
func (e *Evaluator) Evaluate(s schema.Schema, d capabilities.Descriptor, grain schema.Grain) []Finding {
	findings := []Finding{}
	add := func(f Finding) { findings = append(findings, f) }

	needsTime := d.Requires(schema.FeatureTime)
	timeCol := s.TimeColumn

	if needsTime && timeCol == "" {
		add(Finding{
			Severity: SeverityBlock,
			Code:     CodeNoTimeColumn,
			Reason:   "no time column detected",
			Metric:   string(schema.FeatureTime),
		})
	}

	if grain != "" && !s.HasGrain(grain) {
		add(Finding{
			Severity: SeverityBlock,
			Code:     CodeGranularityUnsupported,
			Reason:   fmt.Sprintf("granularity %q is not supported by the time column", grain),
			Grain:    string(grain),
		})
	}

	for _, feat := range d.RequiredFields {
		if feat == schema.FeatureTime {
			continue
		}
		if _, ok := s.Field(feat); !ok {
			add(Finding{
				Severity: SeverityBlock,
				Code:     CodeMissingField,
				Reason:   fmt.Sprintf("required field not found: %s", feat),
				Metric:   string(feat),
			})
		}
	}

	if d.Shape == capabilities.ShapeSeries {
		if buckets := bucketCount(s, grain); buckets < e.th.MinTrendBuckets {
			add(Finding{
				Severity: SeverityWarning,
				Code:     CodeLowRowCount,
				Reason:   fmt.Sprintf("low row count for reliable trend: %d %s buckets, want at least %d", buckets, grain, e.th.MinTrendBuckets),
				Grain:    string(grain),
			})
		}
	} else if s.RowCount < e.th.MinRows {
		add(Finding{
			Severity: SeverityWarning,
			Code:     CodeLowRowCount,
			Reason:   fmt.Sprintf("low row count: %d rows, want at least %d", s.RowCount, e.th.MinRows),
		})
	}

	for _, col := range requiredColumns(s, d) {
		if ratio := s.Missing(col); ratio > e.th.MaxMissingRatio {
			add(Finding{
				Severity: SeverityWarning,
				Code:     CodeHighMissingRatio,
				Reason:   fmt.Sprintf("high missing-value ratio in %s: %.1f%%", col, ratio*100),
				Metric:   col,
			})
		}
	}

	if d.Key == capabilities.TopProducts && s.HasLevel(schema.LevelItem) && s.AmountLevel == schema.AmountOrder {
		col, _ := s.Field(schema.FeatureAmount)
		add(Finding{
			Severity: SeverityBlock,
			Code:     CodeOrderAmountAtItemGrain,
			Reason:   "only an order-level amount is available; summing it per product would double count orders",
			Grain:    string(schema.LevelItem),
			Metric:   col,
		})
	}

	if d.Key == capabilities.TopMembers && s.HasLevel(schema.LevelItem) {
		add(Finding{
			Severity: SeverityInfo,
			Code:     CodeMemberAmountAggregated,
			Reason:   "rows are order items; amounts are combined per order before ranking members",
			Grain:    string(schema.LevelMember),
		})
	}

	if needsTime && timeCol != "" {
		if ratio := s.Missing(timeCol); ratio > 0 && ratio <= e.th.MaxMissingRatio {
			add(Finding{
				Severity: SeverityInfo,
				Code:     CodeTimeColumnHasGaps,
				Reason:   fmt.Sprintf("%.1f%% of rows have no timestamp and are excluded", ratio*100),
				Metric:   timeCol,
			})
		}
	}

	return findings
}

// Evaluate runs the rules with default thresholds.
func Evaluate(s schema.Schema, d capabilities.Descriptor, grain schema.Grain) []Finding {
	return NewEvaluator(DefaultThresholds()).Evaluate(s, d, grain)
}

func bucketCount(s schema.Schema, grain schema.Grain) int {
	if s.TimeColumn == "" {
		return 0
	}
	if grain == schema.GrainMonth {
		return s.DistinctMonths
	}
	return s.DistinctDays
}

func requiredColumns(s schema.Schema, d capabilities.Descriptor) []string {
	var cols []string
	for _, feat := range d.RequiredFields {
		var col string
		if feat == schema.FeatureTime {
			col = s.TimeColumn
		} else {
			col, _ = s.Field(feat)
		}
		if col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}
