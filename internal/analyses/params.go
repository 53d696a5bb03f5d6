package analyses

import (
	"fmt"
	"strings"
	"time"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/dataset"
	"insight-backend/internal/queries"
	"insight-backend/internal/schema"
)

// runParams are validated parameters. Fields a capability does not support
// stay zero so they never influence the result or the coalescing key.
type runParams struct {
	grain  schema.Grain
	limit  int
	period queries.Period
}

func normalizeParams(d capabilities.Descriptor, p Params, maxLimit int) (runParams, error) {
	var np runParams

	if d.SupportsGranularity {
		raw := strings.ToLower(strings.TrimSpace(p.Granularity))
		if raw == "" {
			np.grain = defaultGrain
		} else {
			g, ok := schema.ParseGrain(raw)
			if !ok {
				return runParams{}, invalid("granularity", "must be one of day, month; got %q", p.Granularity)
			}
			np.grain = g
		}
	}

	if d.SupportsLimit {
		np.limit = DefaultLimit
		if p.Limit != nil {
			if *p.Limit < 1 || *p.Limit > maxLimit {
				return runParams{}, invalid("limit", "must be between 1 and %d", maxLimit)
			}
			np.limit = *p.Limit
		}
	}

	if d.SupportsPeriod {
		from, err := parseBound("from", p.From)
		if err != nil {
			return runParams{}, err
		}
		to, err := parseBound("to", p.To)
		if err != nil {
			return runParams{}, err
		}
		if !from.IsZero() && !to.IsZero() && !from.Before(to) {
			return runParams{}, invalid("to", "must be after from")
		}
		np.period = queries.Period{From: from, To: to}
	}

	return np, nil
}

func parseBound(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, ok := dataset.ParseTime(raw)
	if !ok {
		return time.Time{}, invalid(field, "expected an ISO date or datetime, got %q", raw)
	}
	return t, nil
}

func (p runParams) key() string {
	return fmt.Sprintf("%s|%d|%s|%s", p.grain, p.limit, formatBound(p.period.From), formatBound(p.period.To))
}

func (p runParams) echo() RunParams {
	return RunParams{
		Granularity: string(p.grain),
		Limit:       p.limit,
		From:        formatBound(p.period.From),
		To:          formatBound(p.period.To),
	}
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
