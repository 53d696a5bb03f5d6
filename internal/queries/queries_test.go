package queries

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

func frameOf(headers []string, rows ...[]string) (*dataset.Frame, schema.Schema) {
	f := dataset.New(headers, rows)
	return f, schema.Infer(f)
}

// hundredOrders spans five days with one order per row.
func hundredOrders() (*dataset.Frame, schema.Schema, float64) {
	var (
		rows  [][]string
		total float64
	)
	for i := 0; i < 100; i++ {
		amount := float64(10 + i%7)
		total += amount
		rows = append(rows, []string{
			fmt.Sprintf("o%03d", i),
			fmt.Sprintf("2024-03-%02d", 1+i%5),
			fmt.Sprintf("%.0f", amount),
			fmt.Sprintf("m%02d", i%20),
		})
	}
	f, s := frameOf([]string{"order_id", "order_date", "amount", "member_id"}, rows...)
	return f, s, total
}

func TestTimeTrendFiveDays(t *testing.T) {
	f, s, total := hundredOrders()
	require.Equal(t, "order_date", s.TimeColumn)

	series, err := TimeTrend(f, s, schema.GrainDay)
	require.NoError(t, err)
	require.Len(t, series.Points, 5)

	var sum float64
	for i, p := range series.Points {
		sum += p.Value
		if i > 0 {
			assert.Less(t, series.Points[i-1].Time, p.Time)
		}
	}
	assert.InDelta(t, total, sum, 1e-9)
	assert.Equal(t, "2024-03-01", series.Points[0].Time)
	assert.Zero(t, series.ExcludedRows)
	assert.Equal(t, "order_date", series.TimeColumn)
	assert.Equal(t, "amount", series.Metric)
}

func TestTimeTrendMonthAndSparse(t *testing.T) {
	f, s := frameOf([]string{"date", "amount"},
		[]string{"2024-01-05", "10"},
		[]string{"2024-01-20", "5"},
		[]string{"2024-03-02", "7"},
		[]string{"", "100"},
	)
	series, err := TimeTrend(f, s, schema.GrainMonth)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Time: "2024-01", Value: 15}, {Time: "2024-03", Value: 7}}, series.Points)
	assert.Equal(t, 1, series.ExcludedRows)
}

func TestOrderItemsAggregateBeforeBucketing(t *testing.T) {
	headers := []string{"order_id", "created_at", "product_name", "item_subtotal", "member_id"}
	f, s := frameOf(headers,
		[]string{"A", "2024-01-01 10:00", "pen", "3", "m1"},
		[]string{"A", "2024-01-02 09:00", "ink", "2", "m1"},
		[]string{"B", "2024-01-02 12:00", "pen", "4", "m2"},
	)
	require.Equal(t, schema.AmountItem, s.AmountLevel)

	trend, err := TimeTrend(f, s, schema.GrainDay)
	require.NoError(t, err)
	// order A is dated by its earliest row
	assert.Equal(t, []Point{{Time: "2024-01-01", Value: 5}, {Time: "2024-01-02", Value: 4}}, trend.Points)

	aov, err := AOV(f, s, schema.GrainDay)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Time: "2024-01-01", Value: 5}, {Time: "2024-01-02", Value: 4}}, aov.Points)
}

func TestOrderLevelAmountTakenOnce(t *testing.T) {
	f, s := frameOf([]string{"order_id", "created_at", "order_total_amount"},
		[]string{"A", "2024-01-01", "50"},
		[]string{"A", "2024-01-01", "50"},
		[]string{"B", "2024-01-01", "30"},
	)
	require.Equal(t, schema.AmountOrder, s.AmountLevel)

	aov, err := AOV(f, s, schema.GrainDay)
	require.NoError(t, err)
	require.Len(t, aov.Points, 1)
	assert.Equal(t, 40.0, aov.Points[0].Value)
	assert.Equal(t, MetricAOV, aov.Metric)
}

func TestTopProductsTieBreakByKey(t *testing.T) {
	f, s := frameOf([]string{"product_name", "amount"},
		[]string{"zeta", "10"},
		[]string{"alpha", "10"},
		[]string{"mid", "4"},
		[]string{"mid", "6"},
		[]string{"", "99"},
		[]string{"solo", "1"},
	)
	items, err := TopN(f, s, ByProduct, 3)
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{Key: "alpha", Value: 10},
		{Key: "mid", Value: 10},
		{Key: "zeta", Value: 10},
	}, items.Items)
	assert.Equal(t, 1, items.ExcludedRows)
	assert.Equal(t, "product_name", items.Dimension)
	assert.Equal(t, "amount", items.Metric)
	assert.Equal(t, 3, items.Limit)
	// solo is cut by the limit but still counts toward the total
	assert.Equal(t, 31.0, items.Total)
}

func TestTopMembersSumsOrders(t *testing.T) {
	f, s, total := hundredOrders()
	items, err := TopN(f, s, ByMember, 5)
	require.NoError(t, err)
	require.Len(t, items.Items, 5)
	assert.Equal(t, "member_id", items.Dimension)
	assert.InDelta(t, total, items.Total, 1e-9)
	for i := 1; i < len(items.Items); i++ {
		prev, cur := items.Items[i-1], items.Items[i]
		assert.True(t, prev.Value > cur.Value || (prev.Value == cur.Value && prev.Key < cur.Key))
	}

	_, err = TopN(f, s, ByMember, 0)
	assert.Error(t, err)
}

func TestNewVsReturningAllNew(t *testing.T) {
	var rows [][]string
	for i := 0; i < 12; i++ {
		rows = append(rows, []string{fmt.Sprintf("m%02d", i), fmt.Sprintf("2024-02-%02d", 1+i)})
	}
	f, s := frameOf([]string{"member_id", "order_date"}, rows...)

	items, err := NewVsReturning(f, s, Period{})
	require.NoError(t, err)
	assert.Equal(t, []Item{{Key: KeyNew, Value: 12}, {Key: KeyReturning, Value: 0}}, items.Items)
}

func TestNewVsReturningPeriodBoundaries(t *testing.T) {
	f, s := frameOf([]string{"order_id", "member_id", "order_date"},
		[]string{"1", "a", "2024-01-01"},
		[]string{"2", "a", "2024-02-01"},
		[]string{"3", "b", "2024-02-01"},
		[]string{"4", "c", "2024-03-01"},
		[]string{"5", "", "2024-02-10"},
		[]string{"6", "d", ""},
	)
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	items, err := NewVsReturning(f, s, Period{From: from, To: to})
	require.NoError(t, err)
	// b's first order sits on From and counts; c's sits on To and does not
	assert.Equal(t, []Item{{Key: KeyNew, Value: 1}, {Key: KeyReturning, Value: 1}}, items.Items)
	assert.Equal(t, 2, items.ExcludedRows)
	assert.Equal(t, DimensionCustomerType, items.Dimension)
	assert.Equal(t, MetricOrders, items.Metric)
	assert.Equal(t, 2.0, items.Total)

	all, err := NewVsReturning(f, s, Period{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, all.Items[0].Value+all.Items[1].Value)
	assert.Equal(t, all.Items[0].Value+all.Items[1].Value, all.Total)
}

func TestNewVsReturningSameInstantTieBreak(t *testing.T) {
	f, s := frameOf([]string{"order_id", "member_id", "order_date"},
		[]string{"B", "m", "2024-01-01"},
		[]string{"A", "m", "2024-01-01"},
	)
	items, err := NewVsReturning(f, s, Period{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, items.Items[0].Value)
	assert.Equal(t, 1.0, items.Items[1].Value)
}

func TestMissingColumnsError(t *testing.T) {
	f, s := frameOf([]string{"note"}, []string{"x"})
	_, err := TimeTrend(f, s, schema.GrainDay)
	assert.ErrorIs(t, err, ErrMissingColumn)
	_, err = TopN(f, s, ByProduct, 10)
	assert.ErrorIs(t, err, ErrMissingColumn)
	_, err = NewVsReturning(f, s, Period{})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestQueriesArePureReads(t *testing.T) {
	f, s, _ := hundredOrders()
	a, err := TopN(f, s, ByMember, 10)
	require.NoError(t, err)
	b, err := TopN(f, s, ByMember, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
