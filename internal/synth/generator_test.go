package synth

import (
	"bytes"
	"encoding/csv"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-backend/internal/dataset"
	"insight-backend/internal/schema"
)

func generate(t *testing.T, opts Options) ([]byte, Stats) {
	t.Helper()
	var buf bytes.Buffer
	st, err := Generate(&buf, opts)
	require.NoError(t, err)
	return buf.Bytes(), st
}

func TestGenerateIsDeterministic(t *testing.T) {
	opts := Options{Rows: 300, Members: 50, Products: 40, Seed: 7}
	a, _ := generate(t, opts)
	b, _ := generate(t, opts)
	assert.Equal(t, a, b)

	opts.Seed = 8
	c, _ := generate(t, opts)
	assert.NotEqual(t, a, c)
}

func TestGenerateShape(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)
	data, st := generate(t, Options{Rows: 500, Members: 80, Products: 60, Start: start, End: end, Seed: 1, Location: loc})

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 501)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, 500, st.Rows)
	assert.Less(t, st.Orders, st.Rows)

	col := func(name string) int {
		for i, h := range Header {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %s", name)
		return -1
	}
	orderCol, totalCol, createdCol := col("order_id"), col("order_total_amount"), col("created_at")
	unitCol, qtyCol, subCol := col("unit_price"), col("quantity"), col("item_subtotal")

	totals := map[string]string{}
	for _, rec := range records[1:] {
		if prev, ok := totals[rec[orderCol]]; ok {
			assert.Equal(t, prev, rec[totalCol], "items of one order share its total")
		}
		totals[rec[orderCol]] = rec[totalCol]

		created, err := time.Parse(time.RFC3339, rec[createdCol])
		require.NoError(t, err)
		assert.False(t, created.Before(start))
		assert.False(t, created.After(end))

		unit, _ := strconv.Atoi(rec[unitCol])
		qty, _ := strconv.Atoi(rec[qtyCol])
		sub, _ := strconv.Atoi(rec[subCol])
		assert.Equal(t, unit*qty, sub)
	}
	assert.Len(t, totals, st.Orders)
}

func TestGeneratedFileInfersRoles(t *testing.T) {
	data, _ := generate(t, Options{Rows: 400, Members: 60, Products: 30, Seed: 3})

	f, err := dataset.Read("orders.csv", data)
	require.NoError(t, err)
	s := schema.Infer(f)

	assert.NotEmpty(t, s.TimeColumn)
	assert.Equal(t, "order_id", s.Fields[schema.FeatureOrderID])
	assert.Equal(t, "member_id", s.Fields[schema.FeatureMemberID])
	assert.Equal(t, "product_name", s.Fields[schema.FeatureProduct])
	assert.Equal(t, "item_subtotal", s.Fields[schema.FeatureAmount])
	assert.Equal(t, schema.AmountItem, s.AmountLevel)
	assert.True(t, s.HasGrain(schema.GrainDay))
}

func TestGenerateRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	_, err := Generate(&bytes.Buffer{}, Options{Start: now, End: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	assert.Len(t, sampleDistinct(rand.New(rand.NewPCG(1, 2)), 3, 5), 3)
	assert.Equal(t, "Health Supplement", titleCase("health_supplement"))
	assert.Contains(t, []string{"bronze", "silver", "gold", "vip"}, memberLevel("M00000001"))
}
