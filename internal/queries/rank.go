package queries

import (
	"fmt"
	"sort"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

// Item is one entry of a ranking or proportion result.
type Item struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Items is an ordered list of keyed values. Dimension and Metric name what
// was grouped and measured. Total sums the values of every key, including
// those cut by Limit.
type Items struct {
	Dimension    string  `json:"dimension"`
	Metric       string  `json:"metric"`
	Limit        int     `json:"limit,omitempty"`
	Total        float64 `json:"total"`
	Items        []Item  `json:"items"`
	ExcludedRows int     `json:"excludedRows"`
}

// Dimension selects what TopN ranks.
type Dimension string

const (
	ByProduct Dimension = "product"
	ByMember  Dimension = "member"
)

// TopN ranks products by summed row amount or members by summed order value.
// Entries are ordered by value descending with ties broken by key ascending.
// Rows lacking the dimension key or an amount are excluded and counted.
func TopN(f *dataset.Frame, s schema.Schema, dim Dimension, limit int) (Items, error) {
	if limit < 1 {
		return Items{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	amountIdx, err := requireColumn(f, s, schema.FeatureAmount)
	if err != nil {
		return Items{}, err
	}

	totals := make(map[string]float64)
	metric, _ := s.Field(schema.FeatureAmount)
	out := Items{Metric: metric, Limit: limit, Items: []Item{}}

	switch dim {
	case ByProduct:
		productIdx, err := requireColumn(f, s, schema.FeatureProduct)
		if err != nil {
			return Items{}, err
		}
		out.Dimension, _ = s.Field(schema.FeatureProduct)
		nums, ok := f.Numbers(amountIdx)
		for r := 0; r < f.Len(); r++ {
			key := f.Value(productIdx, r)
			if key == "" || !ok[r] {
				out.ExcludedRows++
				continue
			}
			totals[key] += nums[r]
		}
	case ByMember:
		if _, err := requireColumn(f, s, schema.FeatureMemberID); err != nil {
			return Items{}, err
		}
		out.Dimension, _ = s.Field(schema.FeatureMemberID)
		orders, err := buildOrders(f, s)
		if err != nil {
			return Items{}, err
		}
		for _, o := range orders {
			if o.member == "" || !o.hasValue {
				out.ExcludedRows += o.rows
				continue
			}
			totals[o.member] += o.value
		}
	default:
		return Items{}, fmt.Errorf("unknown ranking dimension %q", dim)
	}

	ranked := make([]Item, 0, len(totals))
	for k, v := range totals {
		ranked = append(ranked, Item{Key: k, Value: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Key < ranked[j].Key
	})
	for _, it := range ranked {
		out.Total += it.Value
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out.Items = append(out.Items, ranked...)
	return out, nil
}
