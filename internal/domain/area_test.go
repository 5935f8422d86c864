package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T, days int) *World {
	t.Helper()
	w := NewWorld("World")
	w.SetDates(time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC), days)
	return w
}

func TestNewWorld(t *testing.T) {
	w := NewWorld("World")

	assert.Equal(t, 0, w.Level())
	assert.Equal(t, "World", w.Key())
	assert.Same(t, w, w.World())
	assert.Nil(t, w.Parent())
	assert.Equal(t, DefaultCodes(), w.Codes())
	assert.Zero(t, w.Len())
}

func TestGetOrCreate_LevelsAndKeys(t *testing.T) {
	w := newTestWorld(t, 2)

	us, err := w.GetOrCreate("US", 40, -100)
	require.NoError(t, err)
	al, err := us.GetOrCreate("Alabama", 32.8, -86.8)
	require.NoError(t, err)
	autauga, err := al.GetOrCreate("Autauga", 32.5395271, -86.6440824)
	require.NoError(t, err)

	assert.Equal(t, 1, us.Level())
	assert.Equal(t, "US", us.Key())
	assert.Equal(t, 2, al.Level())
	assert.Equal(t, "Alabama, US", al.Key())
	assert.Equal(t, 3, autauga.Level())
	assert.Equal(t, "Autauga, Alabama, US", autauga.Key())
	assert.Equal(t, Place{Lat: 32.539527, Lon: -86.644082}, autauga.Place())
	assert.Same(t, al, autauga.Parent())
	assert.Same(t, w, autauga.World())
}

func TestGetOrCreate_ReturnsExisting(t *testing.T) {
	w := newTestWorld(t, 2)

	first, err := w.GetOrCreate("France", 46.2, 2.2)
	require.NoError(t, err)
	second, err := w.GetOrCreate("France", 0, 0)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, NewPlace(46.2, 2.2), second.Place())
	assert.Equal(t, 1, w.NumChildren())
}

func TestGetOrCreate_DetachedParent(t *testing.T) {
	guide := NewArea("Double Every 5 Days", Place{})

	_, err := guide.GetOrCreate("child", 0, 0)

	assert.True(t, errors.Is(err, ErrUsage))
	assert.Equal(t, -1, guide.Level())
}

func TestSetData_LengthMismatch(t *testing.T) {
	w := newTestWorld(t, 3)
	c, err := w.GetOrCreate("Chile", 0, 0)
	require.NoError(t, err)

	_, err = c.SetData(Confirmed, []int64{1, 2}, false)

	assert.ErrorIs(t, err, ErrUsage)
	assert.False(t, c.HasData(Confirmed))
}

func TestSetData_Smooths(t *testing.T) {
	w := newTestWorld(t, 5)
	c, err := w.GetOrCreate("Chile", 0, 0)
	require.NoError(t, err)

	fixes, err := c.SetData(Confirmed, []int64{31, 71, 77, 0, 102}, true)
	require.NoError(t, err)

	own, ok := c.Own(Confirmed)
	require.True(t, ok)
	assert.Equal(t, 1, fixes)
	assert.Equal(t, []int64{31, 71, 77, 90, 102}, own)
}

func TestOwn_ReturnsCopy(t *testing.T) {
	w := newTestWorld(t, 2)
	c, _ := w.GetOrCreate("Chile", 0, 0)
	_, err := c.SetData(Deaths, []int64{1, 2}, false)
	require.NoError(t, err)

	own, _ := c.Own(Deaths)
	own[0] = 99

	again, _ := c.Own(Deaths)
	assert.Equal(t, []int64{1, 2}, again)
	assert.Equal(t, []string{Deaths}, c.Labels())
}

func TestChildren_SortedByName(t *testing.T) {
	w := newTestWorld(t, 1)
	for _, n := range []string{"Zambia", "Albania", "Mexico"} {
		_, err := w.GetOrCreate(n, 0, 0)
		require.NoError(t, err)
	}

	var names []string
	for _, c := range w.Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"Albania", "Mexico", "Zambia"}, names)
}

func TestDates(t *testing.T) {
	w := newTestWorld(t, 3)

	dates := w.Dates()
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2020, 1, 24, 0, 0, 0, 0, time.UTC), dates[2])
	assert.Equal(t, []int{1, 2, 3}, w.Index(1))
	assert.Equal(t, []int{0, 1, 2}, w.Index(0))
}

func TestWalkAndFind(t *testing.T) {
	w := newTestWorld(t, 1)
	us, _ := w.GetOrCreate("US", 0, 0)
	ny, _ := us.GetOrCreate("New York", 0, 0)
	_, _ = ny.GetOrCreate("Kings", 0, 0)
	_, _ = w.GetOrCreate("Canada", 0, 0)

	var keys []string
	err := Walk(&w.Area, func(a *Area) error {
		keys = append(keys, a.Key())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"World", "Canada", "US", "New York, US", "Kings, New York, US"}, keys)

	kings, ok := Find(w, "US", "New York", "Kings")
	require.True(t, ok)
	assert.Equal(t, 3, kings.Level())

	_, ok = Find(w, "US", "Atlantis")
	assert.False(t, ok)

	root, ok := Find(w)
	require.True(t, ok)
	assert.Equal(t, "World", root.Name())
}

func TestWalk_StopsOnError(t *testing.T) {
	w := newTestWorld(t, 1)
	_, _ = w.GetOrCreate("A", 0, 0)
	_, _ = w.GetOrCreate("B", 0, 0)
	stop := errors.New("stop")

	visited := 0
	err := Walk(&w.Area, func(a *Area) error {
		visited++
		if a.Name() == "A" {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("Unassigned"))
	assert.True(t, IsPlaceholder("Out of NY"))
	assert.False(t, IsPlaceholder("Outagamie"))
	assert.False(t, IsPlaceholder("Kings"))
}
