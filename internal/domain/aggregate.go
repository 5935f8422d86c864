package domain

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Measure labels carried by both feeds.
const (
	Confirmed = "CONFIRMED"
	Deaths    = "DEATHS"
	Recovered = "RECOVERED"
)

// Measures lists the labels in export order.
var Measures = []string{Confirmed, Deaths, Recovered}

// AggregateOptions controls an aggregate query.
type AggregateOptions struct {
	// Threshold > 0 cuts the result at the first index whose value reaches it.
	Threshold int64
	// Recompute forces the whole subtree to be summed again.
	Recompute bool
	// IgnorePlaceholders leaves "Unassigned..." and "Out of..." children out
	// of the sums.
	IgnorePlaceholders bool
}

type aggregate struct {
	data       []int64
	generation uint64
	ignore     bool
}

// Aggregate returns own data plus the aggregates of all children for label,
// as a copy. With a positive threshold the result starts at the first index
// reaching it. When no index does, the full array is returned and the second
// value is false.
func (a *Area) Aggregate(label string, opts AggregateOptions) ([]int64, bool) {
	unlock := a.lock()
	defer unlock()

	full := a.aggregate(label, opts.Recompute, opts.IgnorePlaceholders)
	i, found := thresholdIndex(full, opts.Threshold)
	return slices.Clone(full[i:]), found
}

// ThresholdIndex returns the index at which Aggregate would cut the series.
func (a *Area) ThresholdIndex(label string, opts AggregateOptions) (int, bool) {
	unlock := a.lock()
	defer unlock()

	return thresholdIndex(a.aggregate(label, opts.Recompute, opts.IgnorePlaceholders), opts.Threshold)
}

// FirstAtOrAbove returns the first index whose value is at least threshold.
// When none is, it returns 0 and false.
func FirstAtOrAbove(data []int64, threshold int64) (int, bool) {
	for i, v := range data {
		if v >= threshold {
			return i, true
		}
	}
	return 0, false
}

func thresholdIndex(data []int64, threshold int64) (int, bool) {
	if threshold <= 0 {
		return 0, true
	}
	return FirstAtOrAbove(data, threshold)
}

func (a *Area) generation() uint64 {
	if a.world == nil {
		return 0
	}
	return a.world.generation
}

func (a *Area) length(label string) int {
	if a.world == nil {
		return len(a.own[label])
	}
	return a.world.days
}

// aggregate expects the world lock to be held.
func (a *Area) aggregate(label string, recompute, ignore bool) []int64 {
	c, ok := a.aggregates[label]
	if ok && !recompute && c.generation == a.generation() && c.ignore == ignore {
		return c.data
	}
	return a.rebuild(label, recompute, ignore)
}

func (a *Area) rebuild(label string, recompute, ignore bool) []int64 {
	sum := make([]int64, a.length(label))
	if own, ok := a.own[label]; ok {
		addInto(sum, own)
	}
	for _, c := range a.children {
		if ignore && IsPlaceholder(c.name) {
			continue
		}
		addInto(sum, c.aggregate(label, recompute, ignore))
	}
	a.aggregates[label] = aggregate{data: sum, generation: a.generation(), ignore: ignore}
	return sum
}

func addInto(dst, src []int64) {
	for i := range min(len(dst), len(src)) {
		dst[i] += src[i]
	}
}

// RecomputeAll rebuilds the aggregate caches of the whole tree for labels.
// Subtrees below the root are summed concurrently, at most workers at a time.
func (w *World) RecomputeAll(ctx context.Context, labels []string, workers int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, c := range w.children {
		g.Go(func() error {
			for _, label := range labels {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("recompute %s: %w", c.key, err)
				}
				c.rebuild(label, true, false)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, label := range labels {
		w.rebuild(label, false, false)
	}
	return nil
}
