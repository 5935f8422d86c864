package series

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

// Group is a set of series, unique by key and iterated in key order.
type Group struct {
	series map[string]*TimeSeries

	// Longest and Shortest are lengths over valid series, with the dates and
	// index axis of the series that set them.
	Longest       int
	LongestDates  []time.Time
	LongestIndex  []int
	Shortest      int
	ShortestDates []time.Time
	ShortestIndex []int

	Sum       []int64
	Average   []float64
	Valid     int
	Threshold int64
	Tightened bool
}

func NewGroup() *Group {
	return &Group{series: make(map[string]*TimeSeries)}
}

// Add inserts ts, replacing any series with the same key.
func (g *Group) Add(ts *TimeSeries) *TimeSeries {
	g.series[ts.Key] = ts
	return ts
}

func (g *Group) Get(key string) (*TimeSeries, bool) {
	ts, ok := g.series[key]
	return ts, ok
}

func (g *Group) Len() int { return len(g.series) }

// Series returns every member sorted by key.
func (g *Group) Series() []*TimeSeries {
	out := make([]*TimeSeries, 0, len(g.series))
	for _, ts := range g.series {
		out = append(out, ts)
	}
	slices.SortFunc(out, func(a, b *TimeSeries) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func (g *Group) valid() []*TimeSeries {
	var out []*TimeSeries
	for _, ts := range g.Series() {
		if !ts.Invalid {
			out = append(out, ts)
		}
	}
	return out
}

// Sequence rebuilds the index axis of every valid series as start, start+1,
// ... and records the longest and shortest of them.
func (g *Group) Sequence(start int) {
	g.Longest, g.LongestDates = 0, nil
	g.Shortest, g.ShortestDates = 0, nil
	first := true
	for _, ts := range g.valid() {
		n := ts.Len()
		ts.Index = sequence(start, n)
		if n > g.Longest {
			g.Longest = n
			g.LongestDates = slices.Clone(ts.Dates)
		}
		if first || n < g.Shortest {
			g.Shortest = n
			g.ShortestDates = slices.Clone(ts.Dates)
			first = false
		}
	}
	g.LongestIndex = sequence(start, g.Longest)
	g.ShortestIndex = sequence(start, g.Shortest)
}

// Tighten clips every series at the earliest index where any series reaches
// threshold, keeping the group on one calendar. A series that never reaches
// it counts as index 0.
func (g *Group) Tighten(threshold int64, start int) {
	valid := g.valid()
	if len(valid) > 0 {
		cut := math.MaxInt
		for _, ts := range valid {
			i, _ := domain.FirstAtOrAbove(ts.Values, threshold)
			cut = min(cut, i)
		}
		for _, ts := range valid {
			ts.clip(cut)
		}
	}
	g.Tightened = true
	g.Sequence(start)
}

// Thresh clips each series at its own first index reaching threshold. Series
// that never reach it are invalidated. The group is tightened at 0 first if
// it was not tightened yet.
func (g *Group) Thresh(threshold int64, start int) {
	if !g.Tightened {
		g.Tighten(0, start)
	}
	g.Valid = 0
	for _, ts := range g.valid() {
		i, found := domain.FirstAtOrAbove(ts.Values, threshold)
		if !found {
			ts.invalidate()
			continue
		}
		ts.clip(i)
		g.Valid++
	}
	g.Threshold = threshold
	g.Sequence(start)
}

// Delta replaces every valid series by its day over day differences. The
// first value has no predecessor and is dropped.
func (g *Group) Delta(start int) {
	for _, ts := range g.valid() {
		if ts.Len() <= 1 {
			ts.invalidate()
			continue
		}
		d := make([]int64, ts.Len()-1)
		for i := range d {
			d[i] = ts.Values[i+1] - ts.Values[i]
		}
		ts.Values = d
		ts.Dates = clipFrom(ts.Dates, 1)
	}
	g.Sequence(start)
}

// Overlay computes the sum and mean lines of the valid series. By default
// series are aligned on their first value; with useDates they are aligned on
// their last value, which for clipped series is the same calendar date. The
// mean covers the span of the shortest series.
func (g *Group) Overlay(useDates bool, start int) {
	g.Sequence(start)
	g.Sum = nil
	g.Average = nil
	g.Valid = 0

	for _, ts := range g.valid() {
		g.Valid++
		if useDates {
			g.Sum = sumRight(g.Sum, ts.Values)
		} else {
			g.Sum = sumLeft(g.Sum, ts.Values)
		}
	}
	if g.Valid == 0 {
		return
	}

	span := g.Sum[:min(g.Shortest, len(g.Sum))]
	if useDates {
		span = g.Sum[len(g.Sum)-len(span):]
	}
	g.Average = make([]float64, len(span))
	for i, v := range span {
		g.Average[i] = float64(v) / float64(g.Valid)
	}
}

// sumLeft adds a and b aligned at index 0; the result has the longer length.
func sumLeft(a, b []int64) []int64 {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := slices.Clone(a)
	for i, v := range b {
		out[i] += v
	}
	return out
}

// sumRight adds a and b aligned at their last element.
func sumRight(a, b []int64) []int64 {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := slices.Clone(a)
	off := len(a) - len(b)
	for i, v := range b {
		out[off+i] += v
	}
	return out
}
