package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
	name   string
	state  string
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, name, state string) (GeocodingResult, error) {
	m.calls++
	m.name, m.state = name, state
	return m.result, m.err
}

type fakeReference struct {
	counties map[string]Place
	states   map[string]Place
	abbrs    map[string]string
}

func (f fakeReference) County(code string) (Place, bool) {
	p, ok := f.counties[code]
	return p, ok
}

func (f fakeReference) State(name string) (Place, bool) {
	p, ok := f.states[name]
	return p, ok
}

func (f fakeReference) StateAbbr(abbr string) (Place, bool) {
	return f.State(f.abbrs[abbr])
}

func testReference() fakeReference {
	return fakeReference{
		counties: map[string]Place{"01001": NewPlace(32.539527, -86.644082)},
		states: map[string]Place{
			"Alabama":      NewPlace(32.806671, -86.791130),
			"Rhode Island": NewPlace(41.680893, -71.511780),
			"Guam":         NewPlace(13.444304, 144.793731),
		},
		abbrs: map[string]string{"AL": "Alabama", "RI": "Rhode Island", "GU": "Guam"},
	}
}

// --- tests ---

func TestResolvePlace_UnknownCode(t *testing.T) {
	res, err := ResolvePlace(context.Background(), UnknownCode, "Diamond Princess, US",
		NewPlace(1, 1), testReference(), nil)

	require.NoError(t, err)
	assert.Equal(t, SourceUnknown, res.Source)
	assert.True(t, res.Place.IsZero())
	assert.False(t, res.Adjusted)
}

func TestResolvePlace_CountyHit(t *testing.T) {
	ref := testReference()
	tests := []struct {
		name     string
		own      Place
		adjusted bool
	}{
		{"differs from row", NewPlace(32.5, -86.6), true},
		{"matches row", NewPlace(32.539527, -86.644082), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ResolvePlace(context.Background(), "01001", "Autauga, Alabama, US", tt.own, ref, nil)
			require.NoError(t, err)
			assert.Equal(t, SourceCounty, res.Source)
			assert.Equal(t, ref.counties["01001"], res.Place)
			assert.Equal(t, tt.adjusted, res.Adjusted)
		})
	}
}

func TestResolvePlace_PlaceholderKeys(t *testing.T) {
	ref := testReference()
	tests := []struct {
		key    string
		want   Place
		source string
	}{
		{"Out of RI, Rhode Island, US", ref.states["Rhode Island"], SourceState},
		{"Unassigned, Alabama, US", ref.states["Alabama"], SourceState},
		{"Out of RI, US", ref.states["Rhode Island"], SourceState},
		{"Out of ZZ, US", Place{}, SourceUnresolved},
		{"Unassigned, Atlantis, US", Place{}, SourceUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			res, err := ResolvePlace(context.Background(), "80044", tt.key, Place{}, ref, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.source, res.Source)
			assert.Equal(t, tt.want, res.Place)
		})
	}
}

func TestResolvePlace_StateTokens(t *testing.T) {
	ref := testReference()

	res, err := ResolvePlace(context.Background(), "66010", "Guam, US", Place{}, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.states["Guam"], res.Place)
	assert.True(t, res.Adjusted)

	res, err = ResolvePlace(context.Background(), "01999", "Nowhere, Alabama, US", Place{}, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.states["Alabama"], res.Place)
}

func TestResolvePlace_Unresolved(t *testing.T) {
	res, err := ResolvePlace(context.Background(), "12345", "Nowhere, Atlantis, US", NewPlace(5, 5), testReference(), nil)

	require.NoError(t, err)
	assert.Equal(t, SourceUnresolved, res.Source)
	assert.True(t, res.Place.IsZero())
}

func TestResolvePlace_GeocoderFallback(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{Lat: 10.1234567, Lon: -20.5}}

	res, err := ResolvePlace(context.Background(), "12345", "Nowhere, Atlantis, US", Place{}, testReference(), geo)

	require.NoError(t, err)
	assert.Equal(t, SourceGeocoder, res.Source)
	assert.Equal(t, NewPlace(10.123457, -20.5), res.Place)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, "Nowhere", geo.name)
	assert.Equal(t, "Atlantis", geo.state)
}

func TestResolvePlace_GeocoderNotConsultedOnReferenceHit(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{Lat: 1, Lon: 1}}

	res, err := ResolvePlace(context.Background(), "01001", "Autauga, Alabama, US", Place{}, testReference(), geo)

	require.NoError(t, err)
	assert.Equal(t, SourceCounty, res.Source)
	assert.Equal(t, 0, geo.calls)
}

func TestResolvePlace_GeocoderError_GracefulDegradation(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("API timeout")}

	res, err := ResolvePlace(context.Background(), "12345", "Nowhere, Atlantis, US", NewPlace(3, 3), testReference(), geo)

	require.Error(t, err)
	assert.Equal(t, SourceUnresolved, res.Source)
	assert.True(t, res.Place.IsZero())
}

func TestResolvePlace_GeocoderEmptyResult(t *testing.T) {
	geo := &mockGeocoder{}

	res, err := ResolvePlace(context.Background(), "12345", "Nowhere, Atlantis, US", Place{}, testReference(), geo)

	require.NoError(t, err)
	assert.Equal(t, SourceUnresolved, res.Source)
}
