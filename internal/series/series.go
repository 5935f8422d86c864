// Package series aligns, thresholds, differences and summarizes copies of
// stored aggregates for reporting. Nothing here mutates the store.
package series

import (
	"slices"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

// TimeSeries is a private copy of one area's values for one label, with the
// matching date axis and an integer index axis.
type TimeSeries struct {
	Key   string
	Area  *domain.Area
	Label string

	Values []int64
	Dates  []time.Time
	Index  []int

	// Invalid is set once the series has no data left.
	Invalid bool
}

// New copies values and dates into a new series.
func New(key string, area *domain.Area, label string, dates []time.Time, values []int64) *TimeSeries {
	return &TimeSeries{
		Key:    key,
		Area:   area,
		Label:  label,
		Values: slices.Clone(values),
		Dates:  slices.Clone(dates),
	}
}

// FromArea builds a series from an area's aggregate. A threshold in opts
// cuts values, dates and the index at the same position; the returned flag is
// false when no value reached it. The index holds positions on the world's
// date axis. Detached areas have no dates and are indexed from 0.
func FromArea(key string, area *domain.Area, label string, opts domain.AggregateOptions) (*TimeSeries, bool) {
	values, found := area.Aggregate(label, opts)
	ts := &TimeSeries{Key: key, Area: area, Label: label, Values: values}
	w := area.World()
	if w == nil {
		ts.Index = sequence(0, len(values))
		return ts, found
	}
	dates, index := w.Dates(), w.Index(0)
	cut := max(0, len(dates)-len(values))
	ts.Dates = dates[cut:]
	ts.Index = index[cut:]
	return ts, found
}

// Len is the number of values.
func (ts *TimeSeries) Len() int { return len(ts.Values) }

func (ts *TimeSeries) clip(i int) {
	ts.Values = clipFrom(ts.Values, i)
	ts.Dates = clipFrom(ts.Dates, i)
	ts.Index = clipFrom(ts.Index, i)
}

func (ts *TimeSeries) invalidate() {
	ts.Values = nil
	ts.Dates = nil
	ts.Index = nil
	ts.Invalid = true
}

func clipFrom[T any](s []T, i int) []T {
	if i >= len(s) {
		return s[len(s):]
	}
	return s[i:]
}

func sequence(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}
