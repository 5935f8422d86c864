package series

import (
	"fmt"
	"math"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

// Children builds a group with one series per direct child of parent, keyed
// by child name.
func Children(parent *domain.Area, label string, opts domain.AggregateOptions) *Group {
	g := NewGroup()
	for _, c := range parent.Children() {
		if opts.IgnorePlaceholders && domain.IsPlaceholder(c.Name()) {
			continue
		}
		ts, _ := FromArea(c.Name(), c, label, opts)
		g.Add(ts)
	}
	return g
}

// Measures builds a group with one series per label for a single area, keyed
// by label.
func Measures(area *domain.Area, labels []string, opts domain.AggregateOptions) *Group {
	g := NewGroup()
	for _, l := range labels {
		ts, _ := FromArea(l, area, l, opts)
		g.Add(ts)
	}
	return g
}

// AddGuides appends one guide series per entry of days to g, each as long as
// the group's longest series and keyed by its guide name.
func AddGuides(g *Group, label string, base int64, start int, days ...int) error {
	guides, err := Guides(label, base, g.Longest, days...)
	if err != nil {
		return err
	}
	for _, a := range guides {
		ts, _ := FromArea(a.Name(), a, label, domain.AggregateOptions{})
		g.Add(ts)
	}
	g.Sequence(start)
	return nil
}

// Guides returns detached areas holding exponential reference lines that
// start at base and double every d days, one per entry of days. Negative
// entries halve instead.
func Guides(label string, base int64, n int, days ...int) ([]*domain.Area, error) {
	out := make([]*domain.Area, 0, len(days))
	for _, d := range days {
		if d == 0 {
			return nil, fmt.Errorf("%w: guide period must be nonzero", domain.ErrUsage)
		}
		name := fmt.Sprintf("Double every %d days", d)
		if d < 0 {
			name = fmt.Sprintf("Halve every %d days", -d)
		}
		data := make([]int64, n)
		for i := range data {
			data[i] = int64(math.RoundToEven(float64(base) * math.Exp2(float64(i)/float64(d))))
		}
		a := domain.NewArea(name, domain.Place{})
		if _, err := a.SetData(label, data, false); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
