// Package synth writes realistic synthetic e-commerce order-item CSV files
// for demos and load tests. Output is deterministic for a given seed.
package synth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRows     = 10000
	DefaultMembers  = 2500
	DefaultProducts = 500
	currency        = "TWD"
)

// Header is the column layout of generated files.
var Header = []string{
	"order_id", "member_id", "store_id", "order_status", "platform", "channel_type",
	"device_type", "traffic_source", "campaign_name", "payment_method", "currency",
	"discount_amount", "shipping_fee", "order_total_amount", "created_at", "paid_at",
	"member_level", "product_id", "product_name", "product_category_name", "brand_name",
	"unit_price", "quantity", "item_subtotal",
}

var (
	platforms      = []string{"web", "ios", "android"}
	deviceTypes    = []string{"desktop", "mobile", "tablet"}
	channelTypes   = []string{"online", "offline", "omo"}
	paymentMethods = []string{"credit_card", "line_pay", "apple_pay", "atm", "cod"}
	trafficSources = []string{"organic", "facebook_ads", "google_ads", "line_oa", "email", "push", "affiliate", "direct"}
	campaigns      = []string{"NewYear_Sale", "Member_Day", "Flash_Deal", "VIP_Exclusive", "Summer_Sale", "11_11", "12_12", "Brand_Collab"}
	categories     = []string{"skincare", "cosmetics", "health_supplement", "fashion", "home_living", "electronics_accessory"}
	brands         = []string{"AURORA", "NEKO LAB", "SUNRISE", "CLOUD NINE", "URBAN LEAF", "NORTHWIND"}
	nameWords      = []string{"Daily", "Glow", "Pure", "Essential", "Classic", "Fresh", "Urban", "Silk", "Prime", "Calm", "Bright", "Nova"}

	itemsPerOrderWeights = []int{48, 30, 12, 7, 3}
	quantityWeights      = []int{70, 18, 7, 3, 2}
)

// Options control the generated dataset. Zero values take defaults.
type Options struct {
	Rows     int
	Members  int
	Products int
	Start    time.Time
	End      time.Time
	Seed     uint64
	Location *time.Location
}

// Stats summarizes what was written.
type Stats struct {
	Rows   int `json:"rows"`
	Orders int `json:"orders"`
}

type product struct {
	id        string
	name      string
	category  string
	brand     string
	basePrice int
}

func (o Options) withDefaults() (Options, error) {
	if o.Rows <= 0 {
		o.Rows = DefaultRows
	}
	if o.Members <= 0 {
		o.Members = DefaultMembers
	}
	if o.Products <= 0 {
		o.Products = DefaultProducts
	}
	if o.Location == nil {
		o.Location = time.FixedZone("UTC+8", 8*60*60)
	}
	if o.Start.IsZero() {
		o.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, o.Location)
	}
	if o.End.IsZero() {
		o.End = time.Date(2025, 12, 31, 0, 0, 0, 0, o.Location)
	}
	if !o.Start.Before(o.End) {
		return o, errors.New("synth: start must be before end")
	}
	return o, nil
}

// Generate writes a header plus opts.Rows order-item rows to w. Orders carry
// one to five items that share order level fields.
func Generate(w io.Writer, opts Options) (Stats, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return Stats{}, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	products := makeProducts(rng, opts.Products)
	span := int64(opts.End.Sub(opts.Start) / time.Second)

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return Stats{}, fmt.Errorf("synth: write header: %w", err)
	}

	var st Stats
	for st.Rows < opts.Rows {
		items := 1 + weighted(rng, itemsPerOrderWeights)
		if st.Rows+items > opts.Rows {
			items = opts.Rows - st.Rows
		}
		st.Orders++

		orderID := fmt.Sprintf("O%08d", st.Orders)
		memberID := fmt.Sprintf("M%08d", 1+rng.IntN(opts.Members))
		platform := pick(rng, platforms)
		device := deviceTypes[weighted(rng, []int{35, 55, 10})]
		if platform != "web" {
			device = deviceTypes[weighted(rng, []int{10, 80, 10})]
		}
		channel := channelTypes[weighted(rng, []int{78, 12, 10})]
		status := chooseStatus(rng)
		payment := paymentMethods[weighted(rng, []int{40, 25, 8, 10, 17})]
		source := pick(rng, trafficSources)
		campaign := campaigns[weighted(rng, []int{55, 15, 10, 8, 3, 3, 3, 3})]

		createdAt := opts.Start.Add(time.Duration(rng.Int64N(span+1)) * time.Second).In(opts.Location)
		paidAt := ""
		if status != "created" && status != "cancelled" {
			paidAt = createdAt.Add(time.Duration(1+rng.IntN(360)) * time.Minute).Format(time.RFC3339)
		}

		type line struct {
			p        product
			unit     int
			qty      int
			subtotal int
		}
		lines := make([]line, 0, items)
		itemsTotal := 0
		for _, idx := range sampleDistinct(rng, len(products), items) {
			p := products[idx]
			unit := roundTo10(float64(p.basePrice) * (0.85 + rng.Float64()*0.23))
			if unit < 10 {
				unit = 10
			}
			qty := 1 + weighted(rng, quantityWeights)
			lines = append(lines, line{p: p, unit: unit, qty: qty, subtotal: unit * qty})
			itemsTotal += unit * qty
		}

		discount := 0
		if rng.Float64() >= 0.55 {
			discount = roundTo10(math.Min(float64(itemsTotal)*(0.05+rng.Float64()*0.2), 5000))
		}
		shipping := 0
		if channel == "online" && itemsTotal < 1500 && rng.Float64() >= 0.25 {
			shipping = []int{60, 80, 100, 120}[rng.IntN(4)]
		}
		total := max(0, itemsTotal-discount+shipping)
		if status == "cancelled" {
			discount, shipping, total = 0, 0, 0
		}

		for _, l := range lines {
			rec := []string{
				orderID, memberID, storeID(rng, channel), status, platform, channel,
				device, source, campaign, payment, currency,
				strconv.Itoa(discount), strconv.Itoa(shipping), strconv.Itoa(total),
				createdAt.Format(time.RFC3339), paidAt,
				memberLevel(memberID), l.p.id, l.p.name, l.p.category, l.p.brand,
				strconv.Itoa(l.unit), strconv.Itoa(l.qty), strconv.Itoa(l.subtotal),
			}
			if err := cw.Write(rec); err != nil {
				return st, fmt.Errorf("synth: write row: %w", err)
			}
		}
		st.Rows += len(lines)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return st, fmt.Errorf("synth: flush: %w", err)
	}
	return st, nil
}

func makeProducts(rng *rand.Rand, n int) []product {
	out := make([]product, n)
	for i := range out {
		category := pick(rng, categories)
		brand := pick(rng, brands)
		// most items are affordable, a long tail is premium
		price := math.Exp(5.3 + 0.55*rng.NormFloat64())
		price = math.Max(100, math.Min(30000, price))
		out[i] = product{
			id:        fmt.Sprintf("P%07d", i+1),
			name:      fmt.Sprintf("%s %s %s", brand, pick(rng, nameWords), titleCase(category)),
			category:  category,
			brand:     brand,
			basePrice: roundTo10(price),
		}
	}
	return out
}

func chooseStatus(rng *rand.Rand) string {
	r := rng.Float64()
	switch {
	case r < 0.03:
		return "created"
	case r < 0.08:
		return "cancelled"
	case r < 0.13:
		return "refunded"
	case r < 0.25:
		return "paid"
	case r < 0.35:
		return "shipped"
	default:
		return "completed"
	}
}

func memberLevel(memberID string) string {
	h := 0
	for _, c := range memberID {
		h += int(c)
	}
	switch h %= 100; {
	case h < 55:
		return "bronze"
	case h < 80:
		return "silver"
	case h < 95:
		return "gold"
	default:
		return "vip"
	}
}

func storeID(rng *rand.Rand, channel string) string {
	switch channel {
	case "online":
		return "STORE_ONLINE"
	case "offline":
		return fmt.Sprintf("STORE_%03d", 1+rng.IntN(120))
	default:
		return fmt.Sprintf("STORE_%03d", 1+rng.IntN(80))
	}
}

func weighted(rng *rand.Rand, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	r := rng.IntN(total)
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

// sampleDistinct draws k distinct indices below n, k capped at n.
func sampleDistinct(rng *rand.Rand, n, k int) []int {
	k = min(k, n)
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for len(out) < k {
		i := rng.IntN(n)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

func roundTo10(v float64) int {
	return int(math.Round(v/10)) * 10
}

func titleCase(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
