package queries

import (
	"time"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

const (
	KeyNew       = "new"
	KeyReturning = "returning"

	DimensionCustomerType = "customer_type"
	MetricOrders          = "orders"
)

// Period is a half-open interval [From, To). A zero bound is unbounded.
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// NewVsReturning counts orders placed in the period as new when they are the
// member's first-ever order across the whole dataset, else as returning.
// The first order is the earliest one, ties broken by order key. Orders
// without a member or a timestamp are excluded and their rows counted. The
// result always holds exactly the new and returning buckets, in that order.
func NewVsReturning(f *dataset.Frame, s schema.Schema, period Period) (Items, error) {
	if _, err := requireColumn(f, s, schema.FeatureTime); err != nil {
		return Items{}, err
	}
	if _, err := requireColumn(f, s, schema.FeatureMemberID); err != nil {
		return Items{}, err
	}
	orders, err := buildOrders(f, s)
	if err != nil {
		return Items{}, err
	}

	var excluded int
	first := make(map[string]*order)
	valid := orders[:0:0]
	for _, o := range orders {
		if o.member == "" || !o.hasTime {
			excluded += o.rows
			continue
		}
		valid = append(valid, o)
		cur, ok := first[o.member]
		if !ok || o.at.Before(cur.at) || (o.at.Equal(cur.at) && o.key < cur.key) {
			first[o.member] = o
		}
	}

	var newCount, returning int
	for _, o := range valid {
		if !period.Contains(o.at) {
			continue
		}
		if first[o.member] == o {
			newCount++
		} else {
			returning++
		}
	}

	return Items{
		Dimension: DimensionCustomerType,
		Metric:    MetricOrders,
		Total:     float64(newCount + returning),
		Items: []Item{
			{Key: KeyNew, Value: float64(newCount)},
			{Key: KeyReturning, Value: float64(returning)},
		},
		ExcludedRows: excluded,
	}, nil
}
