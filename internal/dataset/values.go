package dataset

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var nullTokens = map[string]struct{}{
	"null": {},
	"n/a":  {},
	"nan":  {},
	"none": {},
	"na":   {},
	"-":    {},
}

var currencyPrefixes = []string{"NT$", "US$", "$", "€", "£", "¥"}

var groupedNumber = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func normalizeCell(raw string) string {
	v := strings.TrimSpace(raw)
	if _, ok := nullTokens[strings.ToLower(v)]; ok {
		return ""
	}
	return v
}

func normalizeHeader(raw string, pos int) string {
	h := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if h == "" {
		return fmt.Sprintf("column_%d", pos+1)
	}
	return h
}

func dedupeHeader(seen map[string]int, name string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if _, ok := seen[candidate]; !ok {
			return candidate
		}
	}
}

// ParseNumber parses a cell as a finite number. A leading currency symbol and
// comma thousands separators are accepted.
func ParseNumber(raw string) (float64, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(v, "-") {
		neg = true
		v = strings.TrimSpace(v[1:])
	}
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(v, p) {
			v = strings.TrimSpace(v[len(p):])
			break
		}
	}
	if strings.Contains(v, ",") {
		if !groupedNumber.MatchString(v) {
			return 0, false
		}
		v = strings.ReplaceAll(v, ",", "")
	}
	if v == "" || strings.ContainsAny(v, "xX_pP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// ParseTime parses a cell as a date or timestamp using the supported layouts.
// Values without a zone are read as UTC; zoned values keep their offset so
// calendar bucketing follows the wall clock the data was recorded in.
func ParseTime(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	if len(v) < 8 {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
