// Package queries computes the aggregations behind each capability. Every
// function is a pure read of a frame and is safe to call concurrently.
package queries

import (
	"errors"
	"fmt"
	"time"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

// ErrMissingColumn is returned when a schema field does not resolve to a
// frame column.
var ErrMissingColumn = errors.New("column not found")

// order is one logical order assembled from one or more rows.
type order struct {
	key      string
	rows     int
	at       time.Time
	hasTime  bool
	value    float64
	hasValue bool
	member   string
}

// column resolves a feature to a frame index.
func column(f *dataset.Frame, s schema.Schema, feat schema.Feature) (int, bool, error) {
	var name string
	if feat == schema.FeatureTime {
		name = s.TimeColumn
	} else {
		name, _ = s.Field(feat)
	}
	if name == "" {
		return 0, false, nil
	}
	idx, ok := f.Index(name)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return idx, true, nil
}

func requireColumn(f *dataset.Frame, s schema.Schema, feat schema.Feature) (int, error) {
	idx, ok, err := column(f, s, feat)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no %s field", ErrMissingColumn, feat)
	}
	return idx, nil
}

// buildOrders groups rows into orders in first-appearance order. Rows are
// grouped by order id when one is resolved; rows without an order id and
// datasets without the field produce one order per row. An order's time is
// its earliest valid timestamp. Its value sums item and row level amounts and
// takes the first non-null order level amount.
func buildOrders(f *dataset.Frame, s schema.Schema) ([]*order, error) {
	orderIdx, hasOrderID, err := column(f, s, schema.FeatureOrderID)
	if err != nil {
		return nil, err
	}
	timeIdx, hasTime, err := column(f, s, schema.FeatureTime)
	if err != nil {
		return nil, err
	}
	amountIdx, hasAmount, err := column(f, s, schema.FeatureAmount)
	if err != nil {
		return nil, err
	}
	memberIdx, hasMember, err := column(f, s, schema.FeatureMemberID)
	if err != nil {
		return nil, err
	}

	var (
		times  []time.Time
		timeOK []bool
		nums   []float64
		numOK  []bool
	)
	if hasTime {
		times, timeOK = f.Times(timeIdx)
	}
	if hasAmount {
		nums, numOK = f.Numbers(amountIdx)
	}
	orderLevel := s.AmountLevel == schema.AmountOrder

	var (
		orders []*order
		byKey  = make(map[string]*order)
	)
	for r := 0; r < f.Len(); r++ {
		key := ""
		if hasOrderID {
			key = f.Value(orderIdx, r)
		}
		if key == "" {
			key = rowKey(r)
		}
		o, ok := byKey[key]
		if !ok {
			o = &order{key: key}
			byKey[key] = o
			orders = append(orders, o)
		}
		o.rows++

		if hasTime && timeOK[r] {
			if !o.hasTime || times[r].Before(o.at) {
				o.at = times[r]
				o.hasTime = true
			}
		}
		if hasAmount && numOK[r] {
			switch {
			case !orderLevel:
				o.value += nums[r]
				o.hasValue = true
			case !o.hasValue:
				o.value = nums[r]
				o.hasValue = true
			}
		}
		if hasMember && o.member == "" {
			o.member = f.Value(memberIdx, r)
		}
	}
	return orders, nil
}

// rowKey names an order made of a single row without an order id. Keys are
// zero padded so they sort in row order and never collide with real ids.
func rowKey(r int) string {
	return fmt.Sprintf("\x00row:%010d", r)
}
