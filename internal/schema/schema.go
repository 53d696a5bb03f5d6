package schema

import "time"

// Type is the inferred kind of a column.
type Type string

const (
	TypeNumeric     Type = "numeric"
	TypeDatetime    Type = "datetime"
	TypeCategorical Type = "categorical"
	TypeIdentifier  Type = "identifier"
	TypeText        Type = "text"
)

// Grain is a time bucketing resolution.
type Grain string

const (
	GrainDay   Grain = "day"
	GrainMonth Grain = "month"
)

// ParseGrain validates a granularity string.
func ParseGrain(raw string) (Grain, bool) {
	switch Grain(raw) {
	case GrainDay, GrainMonth:
		return Grain(raw), true
	default:
		return "", false
	}
}

// Feature names a schema role that capabilities depend on.
type Feature string

const (
	FeatureTime     Feature = "time"
	FeatureAmount   Feature = "amount"
	FeatureOrderID  Feature = "order_id"
	FeatureMemberID Feature = "member_id"
	FeatureProduct  Feature = "product"
	FeatureStatus   Feature = "status"
)

// Level is a data grain the rows can be read at.
type Level string

const (
	LevelOrder  Level = "order"
	LevelItem   Level = "item"
	LevelMember Level = "member"
)

// AmountLevel says what one value of the amount column measures.
type AmountLevel string

const (
	AmountItem  AmountLevel = "item"
	AmountOrder AmountLevel = "order"
	AmountRow   AmountLevel = "row"
)

// NumericStats summarizes a numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Stddev float64 `json:"stddev"`
}

// Column is the profile of one column.
type Column struct {
	Name          string        `json:"name"`
	Type          Type          `json:"inferredType"`
	DistinctCount int           `json:"distinctCount"`
	NullCount     int           `json:"nullCount"`
	Samples       []string      `json:"samples"`
	Stats         *NumericStats `json:"stats,omitempty"`
}

// TimeRange is the inclusive span of the time column.
type TimeRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Schema is derived once per upload and never mutated.
type Schema struct {
	RowCount          int                `json:"rowCount"`
	Columns           []Column           `json:"columns"`
	TimeColumn        string             `json:"timeColumn,omitempty"`
	TimeRange         *TimeRange         `json:"timeRange,omitempty"`
	Grains            []Grain            `json:"grains"`
	DistinctDays      int                `json:"distinctDays"`
	DistinctMonths    int                `json:"distinctMonths"`
	MissingValueRatio map[string]float64 `json:"missingValueRatio"`
	Fields            map[Feature]string `json:"fields"`
	AmountLevel       AmountLevel        `json:"amountLevel,omitempty"`
	Levels            []Level            `json:"levels"`
}

// HasGrain reports whether the time column supports g.
func (s Schema) HasGrain(g Grain) bool {
	for _, have := range s.Grains {
		if have == g {
			return true
		}
	}
	return false
}

// HasLevel reports whether rows can be read at level l.
func (s Schema) HasLevel(l Level) bool {
	for _, have := range s.Levels {
		if have == l {
			return true
		}
	}
	return false
}

// Field returns the column resolved for a feature.
func (s Schema) Field(f Feature) (string, bool) {
	name, ok := s.Fields[f]
	return name, ok && name != ""
}

// Column returns the profile of a named column.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Missing returns the missing-value ratio of a column, 0 when unknown.
func (s Schema) Missing(name string) float64 {
	return s.MissingValueRatio[name]
}
