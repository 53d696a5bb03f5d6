package risk

import (
	"encoding/json"
	"fmt"
)

// Severity is ordered by strictness: Info < Warning < Block.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityBlock
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityBlock:
		return "block"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a wire value back to a Severity.
func ParseSeverity(raw string) (Severity, error) {
	switch raw {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "block":
		return SeverityBlock, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", raw)
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Stable finding codes.
const (
	CodeNoTimeColumn           = "no_time_column"
	CodeGranularityUnsupported = "granularity_not_supported"
	CodeMissingField           = "missing_field"
	CodeLowRowCount            = "low_row_count"
	CodeHighMissingRatio       = "high_missing_ratio"
	CodeOrderAmountAtItemGrain = "order_amount_at_item_grain"
	CodeMemberAmountAggregated = "member_amount_aggregated"
	CodeTimeColumnHasGaps      = "time_column_has_gaps"
)

// Finding is a structured diagnostic about running a capability on a schema.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Reason   string   `json:"reason"`
	Grain    string   `json:"grain,omitempty"`
	Metric   string   `json:"metric,omitempty"`
}

// Blocking returns the block-severity findings.
func Blocking(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityBlock {
			out = append(out, f)
		}
	}
	return out
}

// NonBlocking returns every finding below block severity.
func NonBlocking(findings []Finding) []Finding {
	out := []Finding{}
	for _, f := range findings {
		if f.Severity < SeverityBlock {
			out = append(out, f)
		}
	}
	return out
}

// MaxSeverity returns the strictest severity present and false when empty.
func MaxSeverity(findings []Finding) (Severity, bool) {
	if len(findings) == 0 {
		return SeverityInfo, false
	}
	top := SeverityInfo
	for _, f := range findings {
		if f.Severity > top {
			top = f.Severity
		}
	}
	return top, true
}
