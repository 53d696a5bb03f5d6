package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/schema"
)

func mustCap(t *testing.T, key capabilities.Key) capabilities.Descriptor {
	t.Helper()
	d, err := capabilities.Get(string(key))
	require.NoError(t, err)
	return d
}

// fiveDaySchema mirrors a 100-row upload spanning five days.
func fiveDaySchema() schema.Schema {
	return schema.Schema{
		RowCount:       100,
		TimeColumn:     "date",
		Grains:         []schema.Grain{schema.GrainDay},
		DistinctDays:   5,
		DistinctMonths: 1,
		MissingValueRatio: map[string]float64{
			"date": 0, "amount": 0, "member_id": 0, "order_id": 0,
		},
		Fields: map[schema.Feature]string{
			schema.FeatureAmount:   "amount",
			schema.FeatureMemberID: "member_id",
			schema.FeatureOrderID:  "order_id",
		},
		AmountLevel: schema.AmountRow,
		Levels:      []schema.Level{schema.LevelOrder, schema.LevelMember},
	}
}

func codes(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code)
	}
	return out
}

func TestTimeTrendOnShortSpanWarns(t *testing.T) {
	findings := Evaluate(fiveDaySchema(), mustCap(t, capabilities.TimeTrend), schema.GrainDay)

	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, CodeLowRowCount, findings[0].Code)
	assert.Equal(t, "day", findings[0].Grain)
	assert.Empty(t, Blocking(findings))
}

func TestMonthOnSingleMonthBlocks(t *testing.T) {
	findings := Evaluate(fiveDaySchema(), mustCap(t, capabilities.TimeTrend), schema.GrainMonth)

	blocks := Blocking(findings)
	require.Len(t, blocks, 1)
	assert.Equal(t, CodeGranularityUnsupported, blocks[0].Code)
	assert.Equal(t, "month", blocks[0].Grain)
}

func TestMissingProductBlocks(t *testing.T) {
	findings := Evaluate(fiveDaySchema(), mustCap(t, capabilities.TopProducts), "")

	blocks := Blocking(findings)
	require.Len(t, blocks, 1)
	assert.Equal(t, CodeMissingField, blocks[0].Code)
	assert.Equal(t, "required field not found: product", blocks[0].Reason)
	assert.Equal(t, "product", blocks[0].Metric)
}

func TestNoTimeColumnBlocksEveryTimeCapability(t *testing.T) {
	s := fiveDaySchema()
	s.TimeColumn = ""
	s.Grains = nil

	for _, key := range []capabilities.Key{capabilities.TimeTrend, capabilities.AOV, capabilities.NewVsReturning} {
		grain := schema.Grain("")
		if key != capabilities.NewVsReturning {
			grain = schema.GrainDay
		}
		findings := Evaluate(s, mustCap(t, key), grain)
		assert.Contains(t, codes(Blocking(findings)), CodeNoTimeColumn, key)
	}
}

func TestNoShortCircuit(t *testing.T) {
	s := schema.Schema{RowCount: 3}
	findings := Evaluate(s, mustCap(t, capabilities.TimeTrend), schema.GrainDay)

	assert.Equal(t, []string{
		CodeNoTimeColumn,
		CodeGranularityUnsupported,
		CodeMissingField,
		CodeLowRowCount,
	}, codes(findings))
}

func TestEveryMissingRequiredFieldBlocks(t *testing.T) {
	empty := schema.Schema{}
	for _, d := range capabilities.List() {
		grain := schema.Grain("")
		if d.SupportsGranularity {
			grain = schema.GrainDay
		}
		blocks := Blocking(Evaluate(empty, d, grain))
		for _, feat := range d.RequiredFields {
			want := CodeMissingField
			if feat == schema.FeatureTime {
				want = CodeNoTimeColumn
			}
			found := false
			for _, b := range blocks {
				if b.Code == want && b.Metric == string(feat) {
					found = true
				}
			}
			assert.True(t, found, "%s: no block for %s", d.Key, feat)
		}
	}
}

func TestHighMissingRatioWarns(t *testing.T) {
	s := fiveDaySchema()
	s.MissingValueRatio["member_id"] = 0.4

	findings := Evaluate(s, mustCap(t, capabilities.TopMembers), "")
	require.Len(t, findings, 1)
	assert.Equal(t, CodeHighMissingRatio, findings[0].Code)
	assert.Equal(t, "member_id", findings[0].Metric)
}

func TestOrderAmountAtItemGrainBlocks(t *testing.T) {
	s := fiveDaySchema()
	s.Fields[schema.FeatureProduct] = "product_name"
	s.Fields[schema.FeatureAmount] = "order_total_amount"
	s.AmountLevel = schema.AmountOrder
	s.Levels = []schema.Level{schema.LevelOrder, schema.LevelItem, schema.LevelMember}

	blocks := Blocking(Evaluate(s, mustCap(t, capabilities.TopProducts), ""))
	require.Len(t, blocks, 1)
	assert.Equal(t, CodeOrderAmountAtItemGrain, blocks[0].Code)
	assert.Equal(t, "order_total_amount", blocks[0].Metric)

	s.Fields[schema.FeatureAmount] = "item_subtotal"
	s.AmountLevel = schema.AmountItem
	assert.Empty(t, Blocking(Evaluate(s, mustCap(t, capabilities.TopProducts), "")))
}

func TestItemLevelMembersAndTimeGapsAreInfo(t *testing.T) {
	s := fiveDaySchema()
	s.Levels = append(s.Levels, schema.LevelItem)
	s.MissingValueRatio["date"] = 0.1

	findings := Evaluate(s, mustCap(t, capabilities.TopMembers), "")
	assert.Equal(t, []string{CodeMemberAmountAggregated}, codes(findings))

	findings = Evaluate(s, mustCap(t, capabilities.NewVsReturning), "")
	assert.Equal(t, []string{CodeTimeColumnHasGaps}, codes(findings))
	sev, ok := MaxSeverity(findings)
	assert.True(t, ok)
	assert.Equal(t, SeverityInfo, sev)
}

func TestCustomThresholds(t *testing.T) {
	ev := NewEvaluator(Thresholds{MinTrendBuckets: 5})
	assert.Equal(t, 30, ev.Thresholds().MinRows)

	findings := ev.Evaluate(fiveDaySchema(), mustCap(t, capabilities.TimeTrend), schema.GrainDay)
	assert.Empty(t, findings)
}

func TestSeverityOrderingAndJSON(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityBlock)

	raw, err := json.Marshal(Finding{Severity: SeverityBlock, Code: CodeMissingField, Reason: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"severity":"block","code":"missing_field","reason":"x"}`, string(raw))

	var back Finding
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, SeverityBlock, back.Severity)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)

	_, ok := MaxSeverity(nil)
	assert.False(t, ok)
	assert.NotNil(t, NonBlocking(nil))
}
