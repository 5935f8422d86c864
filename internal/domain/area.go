package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const levelUnset = -1

// Placeholder name prefixes. Children named this way carry bookkeeping rows
// (cases not yet assigned to a county, or reported for residents elsewhere).
var placeholderPrefixes = []string{"Unassigned", "Out of"}

// IsPlaceholder reports whether an area name marks a placeholder node.
func IsPlaceholder(name string) bool {
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Area is one node of the administrative hierarchy. It owns its children;
// parent and world are non-owning back-references.
type Area struct {
	name  string
	level int
	key   string
	place Place
	codes Codes

	parent   *Area
	world    *World
	children map[string]*Area

	own        map[string][]int64
	aggregates map[string]aggregate
}

// NewArea creates a detached area with an unset level. Detached areas can
// hold data (synthetic guide lines, for instance) but cannot have children.
func NewArea(name string, place Place) *Area {
	return newArea(nil, name, place)
}

func newArea(parent *Area, name string, place Place) *Area {
	return &Area{
		name:       name,
		level:      levelUnset,
		key:        name,
		place:      place,
		codes:      DefaultCodes(),
		parent:     parent,
		children:   make(map[string]*Area),
		own:        make(map[string][]int64),
		aggregates: make(map[string]aggregate),
	}
}

// World is the root area. It additionally owns the date axis shared by every
// data array in the tree.
type World struct {
	Area

	start time.Time
	days  int

	// mu guards children, own data, and aggregate caches of every area in
	// the tree. Aggregate reads populate caches, so readers take it too.
	mu sync.Mutex

	// generation increases on every structural or own-data change; caches
	// built at an older generation are stale.
	generation uint64
}

// NewWorld creates an empty root at level 0.
func NewWorld(name string) *World {
	w := &World{}
	w.Area = *newArea(nil, name, Place{})
	w.level = 0
	w.world = w
	return w
}

func (a *Area) lock() func() {
	if a.world == nil {
		return func() {}
	}
	a.world.mu.Lock()
	return a.world.mu.Unlock
}

func (a *Area) touch() {
	if a.world != nil {
		a.world.generation++
	}
}

// GetOrCreate returns the child called name, creating it at the given
// coordinates when absent. Coordinates of an existing child are untouched.
func (a *Area) GetOrCreate(name string, lat, lon float64) (*Area, error) {
	unlock := a.lock()
	defer unlock()

	if c, ok := a.children[name]; ok {
		return c, nil
	}
	if a.level == levelUnset {
		return nil, fmt.Errorf("%w: parent %q level not set", ErrUsage, a.name)
	}

	c := newArea(a, name, NewPlace(lat, lon))
	c.level = a.level + 1
	c.world = a.world
	if c.level > 1 {
		c.key = name + ", " + a.key
	}
	a.children[name] = c
	a.touch()
	return c, nil
}

// SetData stores data as the area's own series for label. When smooth is
// true the series is repaired in place first and the number of altered values
// is returned.
func (a *Area) SetData(label string, data []int64, smooth bool) (int, error) {
	unlock := a.lock()
	defer unlock()

	if a.world != nil && len(data) != a.world.days {
		return 0, fmt.Errorf("%w: %s %q has %d values, date axis has %d",
			ErrUsage, label, a.key, len(data), a.world.days)
	}
	fixes := 0
	if smooth {
		fixes = Smooth(data)
	}
	a.own[label] = data
	a.touch()
	return fixes, nil
}

func (a *Area) Name() string  { return a.name }
func (a *Area) Key() string   { return a.key }
func (a *Area) Level() int    { return a.level }
func (a *Area) Parent() *Area { return a.parent }
func (a *Area) World() *World { return a.world }

// Place returns the area's coordinates.
func (a *Area) Place() Place {
	unlock := a.lock()
	defer unlock()
	return a.place
}

// SetPlace replaces the coordinates wholesale.
func (a *Area) SetPlace(p Place) {
	unlock := a.lock()
	defer unlock()
	a.place = p
}

// Codes returns a copy of the administrative codes.
func (a *Area) Codes() Codes {
	unlock := a.lock()
	defer unlock()
	return a.codes
}

// SetCodes replaces the administrative codes.
func (a *Area) SetCodes(c Codes) {
	unlock := a.lock()
	defer unlock()
	a.codes = c
}

// Child returns the direct child called name.
func (a *Area) Child(name string) (*Area, bool) {
	unlock := a.lock()
	defer unlock()
	c, ok := a.children[name]
	return c, ok
}

// Children returns the direct children sorted by name.
func (a *Area) Children() []*Area {
	unlock := a.lock()
	defer unlock()
	return a.sortedChildren()
}

func (a *Area) sortedChildren() []*Area {
	out := make([]*Area, 0, len(a.children))
	for _, c := range a.children {
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y *Area) int { return strings.Compare(x.name, y.name) })
	return out
}

func (a *Area) NumChildren() int {
	unlock := a.lock()
	defer unlock()
	return len(a.children)
}

func (a *Area) HasChildren() bool {
	return a.NumChildren() > 0
}

// HasData reports whether the area has own data for label.
func (a *Area) HasData(label string) bool {
	unlock := a.lock()
	defer unlock()
	_, ok := a.own[label]
	return ok
}

// Own returns a copy of the area's own data for label.
func (a *Area) Own(label string) ([]int64, bool) {
	unlock := a.lock()
	defer unlock()
	d, ok := a.own[label]
	if !ok {
		return nil, false
	}
	return slices.Clone(d), true
}

// Labels returns the labels the area holds own data for, sorted.
func (a *Area) Labels() []string {
	unlock := a.lock()
	defer unlock()
	out := make([]string, 0, len(a.own))
	for l := range a.own {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

func (a *Area) String() string {
	return fmt.Sprintf("%s[%d:%d]", a.name, a.level, a.NumChildren())
}

// SetDates initializes the date axis: start plus n-1 successive days.
func (w *World) SetDates(start time.Time, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	w.days = n
	w.generation++
}

// Len is the number of dates on the axis.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.days
}

// Start is the first date on the axis.
func (w *World) Start() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.start
}

// Dates returns the full date axis.
func (w *World) Dates() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Time, w.days)
	for i := range out {
		out[i] = w.start.AddDate(0, 0, i)
	}
	return out
}

// Index returns the index axis shift, shift+1, ... with one entry per date.
func (w *World) Index(shift int) []int {
	n := w.Len()
	out := make([]int, n)
	for i := range out {
		out[i] = i + shift
	}
	return out
}

// Find descends from the root of w by child names. An empty path is the root.
func Find(w *World, path ...string) (*Area, bool) {
	a := &w.Area
	for _, name := range path {
		c, ok := a.Child(name)
		if !ok {
			return nil, false
		}
		a = c
	}
	return a, true
}

// Walk visits a and every descendant depth first, parents before children
// and siblings in name order. The hierarchy depth is not bounded.
func Walk(a *Area, fn func(*Area) error) error {
	if err := fn(a); err != nil {
		return err
	}
	for _, c := range a.Children() {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
