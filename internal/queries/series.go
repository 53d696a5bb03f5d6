package queries

import (
	"sort"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

// Point is one bucket of a time series.
type Point struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// MetricAOV names the average order value series.
const MetricAOV = "aov"

// Series is a chronological, sparse series: buckets without any order are
// omitted rather than reported as zero. Metric is the amount column summed,
// or MetricAOV.
type Series struct {
	Grain        schema.Grain `json:"grain"`
	TimeColumn   string       `json:"timeColumn"`
	Metric       string       `json:"metric"`
	Points       []Point      `json:"series"`
	ExcludedRows int          `json:"excludedRows"`
}

type bucket struct {
	sum    float64
	orders int
}

// TimeTrend sums order value per time bucket.
func TimeTrend(f *dataset.Frame, s schema.Schema, grain schema.Grain) (Series, error) {
	metric, _ := s.Field(schema.FeatureAmount)
	return bucketize(f, s, grain, metric, func(b bucket) float64 { return b.sum })
}

// AOV averages order value per time bucket.
func AOV(f *dataset.Frame, s schema.Schema, grain schema.Grain) (Series, error) {
	return bucketize(f, s, grain, MetricAOV, func(b bucket) float64 {
		return b.sum / float64(b.orders)
	})
}

func bucketize(f *dataset.Frame, s schema.Schema, grain schema.Grain, metric string, value func(bucket) float64) (Series, error) {
	if _, err := requireColumn(f, s, schema.FeatureTime); err != nil {
		return Series{}, err
	}
	if _, err := requireColumn(f, s, schema.FeatureAmount); err != nil {
		return Series{}, err
	}
	if grain == "" {
		grain = schema.GrainDay
	}
	orders, err := buildOrders(f, s)
	if err != nil {
		return Series{}, err
	}

	out := Series{Grain: grain, TimeColumn: s.TimeColumn, Metric: metric, Points: []Point{}}
	buckets := make(map[string]*bucket)
	for _, o := range orders {
		if !o.hasTime || !o.hasValue {
			out.ExcludedRows += o.rows
			continue
		}
		key := schema.BucketKey(o.at, grain)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += o.value
		b.orders++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Points = append(out.Points, Point{Time: k, Value: value(*buckets[k])})
	}
	return out, nil
}
