// Package series provides date-indexed float and label series, outer-join
// alignment and file loaders for the market and sleeve inputs.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point is one dated observation. Missing values are NaN.
type Point struct {
	Date  time.Time
	Value float64
}

// TimeSeries is an ordered sequence of observations with unique, strictly
// increasing dates.
type TimeSeries struct {
	Name   string
	Points []Point
}

// New validates ordering and returns the series.
func New(name string, points []Point) (TimeSeries, error) {
	for i := 1; i < len(points); i++ {
		if !points[i].Date.After(points[i-1].Date) {
			return TimeSeries{}, &DataAlignmentError{
				Series: name,
				Reason: fmt.Sprintf("dates not strictly increasing at %s", points[i].Date.Format(DateLayout)),
			}
		}
	}
	return TimeSeries{Name: name, Points: points}, nil
}

// FromSlices builds a series from parallel date and value slices, sorting
// by date. Duplicate dates are rejected.
func FromSlices(name string, dates []time.Time, values []float64) (TimeSeries, error) {
	if len(dates) != len(values) {
		return TimeSeries{}, &DataAlignmentError{Series: name, Reason: "dates and values differ in length"}
	}
	pts := make([]Point, len(dates))
	for i := range dates {
		pts[i] = Point{Date: dates[i], Value: values[i]}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
	return New(name, pts)
}

// Len returns the number of points.
func (s TimeSeries) Len() int { return len(s.Points) }

// Dates returns the date index.
func (s TimeSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}

// Values returns the observations in date order.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// ForwardFill carries the last valid value across at most maxGap
// consecutive missing observations. Longer gaps stay missing in full so
// that no gap is silently bridged. maxGap <= 0 returns the series as is.
func (s TimeSeries) ForwardFill(maxGap int) TimeSeries {
	out := TimeSeries{Name: s.Name, Points: append([]Point(nil), s.Points...)}
	if maxGap <= 0 {
		return out
	}
	vals := out.Values()
	fillInto(vals, maxGap)
	for i := range out.Points {
		out.Points[i].Value = vals[i]
	}
	return out
}

func fillInto(vals []float64, maxGap int) {
	last := math.NaN()
	for i := 0; i < len(vals); {
		if !math.IsNaN(vals[i]) {
			last = vals[i]
			i++
			continue
		}
		j := i
		for j < len(vals) && math.IsNaN(vals[j]) {
			j++
		}
		if !math.IsNaN(last) && j-i <= maxGap {
			for k := i; k < j; k++ {
				vals[k] = last
			}
		}
		i = j
	}
}

// Labels is a date-indexed sequence of categorical labels such as regime
// names. An empty label means missing.
type Labels struct {
	Name   string
	Dates  []time.Time
	Values []string
}

// At returns the label for date and whether it exists.
func (l Labels) At(date time.Time) (string, bool) {
	i := sort.Search(len(l.Dates), func(i int) bool { return !l.Dates[i].Before(date) })
	if i < len(l.Dates) && l.Dates[i].Equal(date) {
		return l.Values[i], true
	}
	return "", false
}

// Len returns the number of labels.
func (l Labels) Len() int { return len(l.Dates) }
