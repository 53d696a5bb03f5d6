package dataset

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyInput        = errors.New("no header row")
)

// Frame is an immutable column-major table. Cells are trimmed strings; null
// cells are stored as "". Typed views of a column are parsed lazily once and
// may be read by any number of goroutines.
type Frame struct {
	headers     []string
	index       map[string]int
	cols        []*column
	rows        int
	skippedRows int
	released    atomic.Bool
}

type column struct {
	cells []string

	numOnce sync.Once
	nums    []float64
	numOK   []bool

	timeOnce sync.Once
	times    []time.Time
	timeOK   []bool
}

// New builds a frame from a header row and row-major records. Short records
// are padded with nulls and long ones truncated to the header width.
func New(headers []string, records [][]string) *Frame {
	f := &Frame{
		headers: make([]string, len(headers)),
		index:   make(map[string]int, len(headers)),
		cols:    make([]*column, len(headers)),
		rows:    len(records),
	}
	for i, h := range headers {
		name := normalizeHeader(h, i)
		if _, dup := f.index[name]; dup {
			name = dedupeHeader(f.index, name)
		}
		f.headers[i] = name
		f.index[name] = i
		f.cols[i] = &column{cells: make([]string, len(records))}
	}
	for r, rec := range records {
		for c := range f.cols {
			if c < len(rec) {
				f.cols[c].cells[r] = normalizeCell(rec[c])
			}
		}
	}
	return f
}

// Len returns the number of data rows.
func (f *Frame) Len() int { return f.rows }

// SkippedRows reports malformed input rows dropped while reading.
func (f *Frame) SkippedRows() int { return f.skippedRows }

// Headers returns a copy of the column names in declared order.
func (f *Frame) Headers() []string {
	out := make([]string, len(f.headers))
	copy(out, f.headers)
	return out
}

// Index returns the position of a named column.
func (f *Frame) Index(name string) (int, bool) {
	i, ok := f.index[name]
	return i, ok
}

// Value returns the raw cell; "" means null.
func (f *Frame) Value(col, row int) string {
	return f.cols[col].cells[row]
}

// IsNull reports whether the cell is null.
func (f *Frame) IsNull(col, row int) bool {
	return f.cols[col].cells[row] == ""
}

// Numbers returns the numeric view of a column and a validity mask.
func (f *Frame) Numbers(col int) ([]float64, []bool) {
	c := f.cols[col]
	c.numOnce.Do(func() {
		c.nums = make([]float64, len(c.cells))
		c.numOK = make([]bool, len(c.cells))
		for i, v := range c.cells {
			if v == "" {
				continue
			}
			c.nums[i], c.numOK[i] = ParseNumber(v)
		}
	})
	return c.nums, c.numOK
}

// Times returns the datetime view of a column and a validity mask.
func (f *Frame) Times(col int) ([]time.Time, []bool) {
	c := f.cols[col]
	c.timeOnce.Do(func() {
		c.times = make([]time.Time, len(c.cells))
		c.timeOK = make([]bool, len(c.cells))
		for i, v := range c.cells {
			if v == "" {
				continue
			}
			c.times[i], c.timeOK[i] = ParseTime(v)
		}
	})
	return c.times, c.timeOK
}

// Preview returns up to n rows keyed by column name. Null cells are nil.
func (f *Frame) Preview(n int) []map[string]any {
	if n > f.rows {
		n = f.rows
	}
	if n < 0 {
		n = 0
	}
	out := make([]map[string]any, 0, n)
	for r := 0; r < n; r++ {
		row := make(map[string]any, len(f.headers))
		for c, h := range f.headers {
			if v := f.cols[c].cells[r]; v != "" {
				row[h] = v
			} else {
				row[h] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

// ValueCount is a distinct value and its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Distinct returns the non-null distinct values of a column ordered by
// frequency descending, then value ascending, truncated to limit.
func (f *Frame) Distinct(col, limit int) []ValueCount {
	counts := make(map[string]int)
	for _, v := range f.cols[col].cells {
		if v != "" {
			counts[v]++
		}
	}
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Close releases the frame's memory. The frame must not be read afterwards.
func (f *Frame) Close() error {
	if f.released.Swap(true) {
		return nil
	}
	f.cols = nil
	f.index = nil
	return nil
}

// Released reports whether Close has been called.
func (f *Frame) Released() bool { return f.released.Load() }
