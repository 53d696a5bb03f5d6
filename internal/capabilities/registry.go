package capabilities

import (
	"errors"
	"fmt"

	"insight-backend/internal/schema"
)

// ErrUnknownCapability is returned for keys outside the registry.
var ErrUnknownCapability = errors.New("unknown capability")

// Key identifies a capability.
type Key string

const (
	TimeTrend      Key = "time_trend"
	TopProducts    Key = "top_products"
	TopMembers     Key = "top_members"
	AOV            Key = "aov"
	NewVsReturning Key = "new_vs_returning"
)

// Shape is the result envelope a capability always produces.
type Shape string

const (
	ShapeSeries Shape = "series"
	ShapeItems  Shape = "items"
)

// Descriptor is the static description of one capability.
type Descriptor struct {
	Key                 Key              `json:"key"`
	Label               string           `json:"label"`
	Description         string           `json:"description"`
	Chart               string           `json:"chart"`
	Shape               Shape            `json:"shape"`
	RequiredFields      []schema.Feature `json:"requiredFields"`
	SupportsGranularity bool             `json:"supportsGranularity"`
	SupportsLimit       bool             `json:"supportsLimit"`
	SupportsPeriod      bool             `json:"supportsPeriod"`
}

// Requires reports whether the capability depends on feature f.
func (d Descriptor) Requires(f schema.Feature) bool {
	for _, have := range d.RequiredFields {
		if have == f {
			return true
		}
	}
	return false
}

var registry = []Descriptor{
	{
		Key:                 TimeTrend,
		Label:               "Sales trend over time",
		Description:         "Sums order value per day or month to show how sales move over time.",
		Chart:               "line",
		Shape:               ShapeSeries,
		RequiredFields:      []schema.Feature{schema.FeatureTime, schema.FeatureAmount},
		SupportsGranularity: true,
	},
	{
		Key:            TopProducts,
		Label:          "Top products",
		Description:    "Ranks products by total sales amount.",
		Chart:          "bar",
		Shape:          ShapeItems,
		RequiredFields: []schema.Feature{schema.FeatureProduct, schema.FeatureAmount},
		SupportsLimit:  true,
	},
	{
		Key:            TopMembers,
		Label:          "Top members",
		Description:    "Ranks members by the total value of their orders.",
		Chart:          "bar",
		Shape:          ShapeItems,
		RequiredFields: []schema.Feature{schema.FeatureMemberID, schema.FeatureAmount},
		SupportsLimit:  true,
	},
	{
		Key:                 AOV,
		Label:               "Average order value",
		Description:         "Average value of an order per day or month.",
		Chart:               "line",
		Shape:               ShapeSeries,
		RequiredFields:      []schema.Feature{schema.FeatureTime, schema.FeatureAmount},
		SupportsGranularity: true,
	},
	{
		Key:            NewVsReturning,
		Label:          "New vs returning members",
		Description:    "Splits orders into first purchases and repeat purchases.",
		Chart:          "pie",
		Shape:          ShapeItems,
		RequiredFields: []schema.Feature{schema.FeatureTime, schema.FeatureMemberID},
		SupportsPeriod: true,
	},
}

var byKey = func() map[Key]Descriptor {
	m := make(map[Key]Descriptor, len(registry))
	for _, d := range registry {
		m[d.Key] = d
	}
	return m
}()

// List returns the capabilities in their fixed display order.
func List() []Descriptor {
	out := make([]Descriptor, len(registry))
	for i, d := range registry {
		d.RequiredFields = append([]schema.Feature(nil), d.RequiredFields...)
		out[i] = d
	}
	return out
}

// Get looks up a capability by key.
func Get(key string) (Descriptor, error) {
	d, ok := byKey[Key(key)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownCapability, key)
	}
	d.RequiredFields = append([]schema.Feature(nil), d.RequiredFields...)
	return d, nil
}
