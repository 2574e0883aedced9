package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a set of columns sharing one date index, produced by an outer
// join. Missing cells are NaN.
type Frame struct {
	Dates   []time.Time
	columns map[string][]float64
	order   []string
}

// Align outer-joins the series on date.
func Align(ss ...TimeSeries) (*Frame, error) {
	seen := make(map[int64]time.Time)
	for _, s := range ss {
		for _, p := range s.Points {
			seen[p.Date.UnixNano()] = p.Date
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	idx := make(map[int64]int, len(dates))
	for i, d := range dates {
		idx[d.UnixNano()] = i
	}

	f := &Frame{Dates: dates, columns: make(map[string][]float64, len(ss))}
	for _, s := range ss {
		if _, dup := f.columns[s.Name]; dup {
			return nil, &DataAlignmentError{Series: s.Name, Reason: "duplicate series name"}
		}
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, p := range s.Points {
			col[idx[p.Date.UnixNano()]] = p.Value
		}
		f.columns[s.Name] = col
		f.order = append(f.order, s.Name)
	}
	return f, nil
}

// Len returns the row count.
func (f *Frame) Len() int { return len(f.Dates) }

// Names lists columns in insertion order.
func (f *Frame) Names() []string { return append([]string(nil), f.order...) }

// Column returns the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, &DataAlignmentError{Column: name, Reason: "required column absent"}
	}
	return col, nil
}

// ForwardFill applies the gap policy to every column in place.
func (f *Frame) ForwardFill(maxGap int) {
	if maxGap <= 0 {
		return
	}
	for _, name := range f.order {
		fillInto(f.columns[name], maxGap)
	}
}

// Intersect keeps only rows where every required column is present, and
// fails when no such row exists.
func (f *Frame) Intersect(required ...string) (*Frame, error) {
	cols := make([][]float64, len(required))
	for i, name := range required {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	var keep []int
	for row := range f.Dates {
		ok := true
		for _, col := range cols {
			if math.IsNaN(col[row]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, row)
		}
	}
	if len(keep) == 0 {
		return nil, &DataAlignmentError{Reason: fmt.Sprintf("no overlapping dates across %v", required)}
	}

	out := &Frame{Dates: make([]time.Time, len(keep)), columns: make(map[string][]float64, len(f.order)), order: f.Names()}
	for i, row := range keep {
		out.Dates[i] = f.Dates[row]
	}
	for _, name := range f.order {
		src := f.columns[name]
		dst := make([]float64, len(keep))
		for i, row := range keep {
			dst[i] = src[row]
		}
		out.columns[name] = dst
	}
	return out, nil
}
