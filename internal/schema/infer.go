package schema

import (
	"math"
	"strings"
	"time"

	"insight-backend/internal/dataset"
)

const (
	parseThreshold      = 0.9
	identifierThreshold = 0.95
	maxCategorical      = 50
	maxSamples          = 5
)

var (
	orderIDCandidates  = []string{"order_id", "order_no", "order_number", "transaction_id"}
	memberIDCandidates = []string{"member_id", "customer_id", "user_id", "buyer_id"}
	productCandidates  = []string{"product_name", "product_id", "sku", "item_name"}
	statusCandidates   = []string{"order_status", "status"}

	itemAmountCandidates  = []string{"item_subtotal", "subtotal", "line_total", "item_amount"}
	orderAmountCandidates = []string{"order_total_amount", "order_total", "order_amount"}
	rowAmountCandidates   = []string{"amount", "total_amount", "total", "revenue", "sales", "sales_amount", "value", "price"}
)

// Infer profiles every column of the frame and resolves the roles that
// capabilities depend on. It is deterministic for identical input.
func Infer(f *dataset.Frame) Schema {
	rows := f.Len()
	headers := f.Headers()

	s := Schema{
		RowCount:          rows,
		Columns:           make([]Column, 0, len(headers)),
		Grains:            []Grain{},
		MissingValueRatio: make(map[string]float64, len(headers)),
		Fields:            map[Feature]string{},
		Levels:            []Level{},
	}

	for i, name := range headers {
		col := profileColumn(f, i, name)
		s.Columns = append(s.Columns, col)
		if rows > 0 {
			s.MissingValueRatio[name] = float64(col.NullCount) / float64(rows)
		} else {
			s.MissingValueRatio[name] = 0
		}
	}

	selectTimeColumn(f, &s)
	resolveFields(&s)
	return s
}

func profileColumn(f *dataset.Frame, idx int, name string) Column {
	rows := f.Len()
	col := Column{Name: name, Samples: []string{}}

	seen := make(map[string]struct{})
	for r := 0; r < rows; r++ {
		if f.IsNull(idx, r) {
			col.NullCount++
			continue
		}
		v := f.Value(idx, r)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			if len(col.Samples) < maxSamples {
				col.Samples = append(col.Samples, v)
			}
		}
	}
	col.DistinctCount = len(seen)

	nonNull := rows - col.NullCount
	if nonNull == 0 {
		col.Type = TypeText
		return col
	}

	_, timeOK := f.Times(idx)
	nums, numOK := f.Numbers(idx)
	timeHits, numHits := countTrue(timeOK), countTrue(numOK)

	switch {
	case share(timeHits, nonNull) >= parseThreshold:
		col.Type = TypeDatetime
	case idLikeName(name) && share(col.DistinctCount, nonNull) >= identifierThreshold:
		col.Type = TypeIdentifier
	case share(numHits, nonNull) >= parseThreshold:
		col.Type = TypeNumeric
		col.Stats = numericStats(nums, numOK)
	case col.DistinctCount <= maxCategorical || col.DistinctCount*2 <= nonNull:
		col.Type = TypeCategorical
	default:
		col.Type = TypeText
	}
	return col
}

// selectTimeColumn picks the datetime column covering the most distinct
// calendar days; the first declared column wins ties.
func selectTimeColumn(f *dataset.Frame, s *Schema) {
	best, bestDays := -1, 0
	for i, col := range s.Columns {
		if col.Type != TypeDatetime {
			continue
		}
		times, ok := f.Times(i)
		days := len(distinctBuckets(times, ok, GrainDay))
		if days > bestDays {
			best, bestDays = i, days
		}
	}
	if best < 0 {
		return
	}

	times, ok := f.Times(best)
	var lo, hi time.Time
	found := false
	for r, t := range times {
		if !ok[r] {
			continue
		}
		if !found || t.Before(lo) {
			lo = t
		}
		if !found || t.After(hi) {
			hi = t
		}
		found = true
	}

	s.TimeColumn = s.Columns[best].Name
	s.TimeRange = &TimeRange{Min: lo, Max: hi}
	s.DistinctDays = bestDays
	s.DistinctMonths = len(distinctBuckets(times, ok, GrainMonth))
	if s.DistinctDays >= 2 {
		s.Grains = append(s.Grains, GrainDay)
	}
	if s.DistinctMonths >= 2 {
		s.Grains = append(s.Grains, GrainMonth)
	}
}

func resolveFields(s *Schema) {
	if s.TimeColumn != "" {
		s.Fields[FeatureTime] = s.TimeColumn
	}

	byLower := make(map[string]Column, len(s.Columns))
	for _, c := range s.Columns {
		key := strings.ToLower(c.Name)
		if _, dup := byLower[key]; !dup {
			byLower[key] = c
		}
	}
	pick := func(candidates []string, numeric bool) string {
		for _, cand := range candidates {
			c, ok := byLower[cand]
			if !ok || c.DistinctCount == 0 {
				continue
			}
			if numeric && c.Type != TypeNumeric {
				continue
			}
			return c.Name
		}
		return ""
	}

	if name := pick(orderIDCandidates, false); name != "" {
		s.Fields[FeatureOrderID] = name
		s.Levels = append(s.Levels, LevelOrder)
	}
	if name := pick(productCandidates, false); name != "" {
		s.Fields[FeatureProduct] = name
		s.Levels = append(s.Levels, LevelItem)
	}
	if name := pick(memberIDCandidates, false); name != "" {
		s.Fields[FeatureMemberID] = name
		s.Levels = append(s.Levels, LevelMember)
	}
	if name := pick(statusCandidates, false); name != "" {
		s.Fields[FeatureStatus] = name
	}

	switch {
	case pick(itemAmountCandidates, true) != "":
		s.Fields[FeatureAmount] = pick(itemAmountCandidates, true)
		s.AmountLevel = AmountItem
	case pick(orderAmountCandidates, true) != "":
		s.Fields[FeatureAmount] = pick(orderAmountCandidates, true)
		s.AmountLevel = AmountOrder
	case pick(rowAmountCandidates, true) != "":
		s.Fields[FeatureAmount] = pick(rowAmountCandidates, true)
		s.AmountLevel = AmountRow
	}
}

// BucketKey renders t at the given grain: "2006-01-02" for day and
// "2006-01" for month.
func BucketKey(t time.Time, g Grain) string {
	if g == GrainMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func distinctBuckets(times []time.Time, ok []bool, g Grain) map[string]struct{} {
	out := make(map[string]struct{})
	for i, t := range times {
		if ok[i] {
			out[BucketKey(t, g)] = struct{}{}
		}
	}
	return out
}

func idLikeName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "id", "uuid", "sku", "key":
		return true
	}
	return strings.HasSuffix(n, "_id") || strings.HasSuffix(n, "_no") ||
		strings.HasSuffix(n, "_key") || strings.HasSuffix(n, "_uuid") ||
		strings.HasSuffix(n, " id")
}

func numericStats(nums []float64, ok []bool) *NumericStats {
	var (
		n      int
		sum    float64
		lo, hi float64
	)
	for i, v := range nums {
		if !ok[i] {
			continue
		}
		if n == 0 || v < lo {
			lo = v
		}
		if n == 0 || v > hi {
			hi = v
		}
		sum += v
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	var sq float64
	for i, v := range nums {
		if ok[i] {
			sq += (v - avg) * (v - avg)
		}
	}
	std := 0.0
	if n > 1 {
		std = math.Sqrt(sq / float64(n-1))
	}
	return &NumericStats{Min: lo, Max: hi, Avg: avg, Stddev: std}
}

func countTrue(v []bool) int {
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return n
}

func share(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
