package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
	"github.com/couchcryptid/episeries-etl/internal/pipeline"
	"github.com/couchcryptid/episeries-etl/internal/reference"
)

const feedDir = "testdata/feeds"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReference(t *testing.T) *reference.Tables {
	t.Helper()
	ref, err := reference.Load("testdata/resources/us_counties.csv", "testdata/resources/states.csv")
	require.NoError(t, err)
	return ref
}

func newIngester(t *testing.T, globalDir, nationalDir string, metrics *observability.Metrics) *pipeline.Ingester {
	t.Helper()
	opts := pipeline.IngestOptions{GlobalDir: globalDir, NationalDir: nationalDir, Smooth: true, Workers: 2}
	return pipeline.NewIngester(opts, testReference(t), nil, discardLogger(), metrics)
}

func aggregate(t *testing.T, w *domain.World, label string, path ...string) []int64 {
	t.Helper()
	a, ok := domain.Find(w, path...)
	require.True(t, ok, "area %v", path)
	data, _ := a.Aggregate(label, domain.AggregateOptions{})
	return data
}

// copyFeeds copies the fixture feeds to a temp dir and applies edits, keyed
// by file name, to their contents.
func copyFeeds(t *testing.T, edits map[string]func(string) string) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(feedDir)
	require.NoError(t, err)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(feedDir, e.Name()))
		require.NoError(t, err)
		content := string(b)
		if edit, ok := edits[e.Name()]; ok {
			content = edit(content)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), []byte(content), 0o600))
	}
	return dir
}

func TestIngester_Build(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	w, err := newIngester(t, feedDir, feedDir, metrics).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, w.Len())
	assert.Equal(t, time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC), w.Start())

	assert.Equal(t, []int64{11, 21, 31, 40}, aggregate(t, w, domain.Confirmed))
	assert.Equal(t, []int64{1, 3, 5, 8}, aggregate(t, w, domain.Deaths))
	assert.Equal(t, []int64{0, 1, 2, 3}, aggregate(t, w, domain.Recovered))

	assert.Equal(t, []int64{8, 13, 17, 19}, aggregate(t, w, domain.Confirmed, "US"))
	assert.Equal(t, []int64{0, 1, 2, 4}, aggregate(t, w, domain.Deaths, "US"))
	assert.Equal(t, []int64{1, 3, 6, 8}, aggregate(t, w, domain.Confirmed, "Australia"))
	assert.Equal(t, []int64{2, 4, 6, 10}, aggregate(t, w, domain.Confirmed, "France"))

	assert.InDelta(t, 6, testutil.ToFloat64(metrics.RowsIngested.WithLabelValues("national", domain.Confirmed)), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.RowsIngested.WithLabelValues("global", domain.Confirmed)), 0)
}

func TestIngester_GlobalSmoothingAndUSSkip(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	w, err := newIngester(t, feedDir, feedDir, metrics).Build(context.Background())
	require.NoError(t, err)

	nsw, ok := domain.Find(w, "Australia", "New South Wales")
	require.True(t, ok)
	own, _ := nsw.Own(domain.Confirmed)
	assert.Equal(t, []int64{1, 2, 4, 5}, own)
	assert.Equal(t, domain.Codes{ADM1: "Australia", ADM2: "New South Wales", ADM3: "N/A", FIPS: "N/A"}, nsw.Codes())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SmoothingFixes.WithLabelValues("global", domain.Confirmed)), 0)

	us, ok := domain.Find(w, "US")
	require.True(t, ok)
	assert.False(t, us.HasData(domain.Confirmed))
}

func TestIngester_NationalHierarchy(t *testing.T) {
	w, err := newIngester(t, feedDir, feedDir, observability.NewMetricsForTesting()).Build(context.Background())
	require.NoError(t, err)

	kings, ok := domain.Find(w, "US", "New York", "Kings")
	require.True(t, ok)
	assert.Equal(t, "Kings, New York, US", kings.Key())
	assert.Equal(t, domain.Codes{ADM1: "US", ADM2: "New York", ADM3: "Kings", FIPS: "36047"}, kings.Codes())

	// short rows repeat the last present value
	own, _ := kings.Own(domain.Confirmed)
	assert.Equal(t, []int64{2, 4, 4, 4}, own)
	own, _ = kings.Own(domain.Deaths)
	assert.Equal(t, []int64{0, 1, 1, 1}, own)

	guam, ok := domain.Find(w, "US", "Guam")
	require.True(t, ok)
	assert.True(t, guam.HasData(domain.Confirmed))
	assert.Equal(t, "66010", guam.Codes().FIPS)

	al, ok := domain.Find(w, "US", "Alabama")
	require.True(t, ok)
	assert.False(t, al.HasData(domain.Confirmed))
	withPlaceholders, _ := al.Aggregate(domain.Confirmed, domain.AggregateOptions{})
	without, _ := al.Aggregate(domain.Confirmed, domain.AggregateOptions{IgnorePlaceholders: true})
	assert.Equal(t, []int64{1, 2, 5, 6}, withPlaceholders)
	assert.Equal(t, []int64{1, 2, 4, 5}, without)
}

func TestIngester_CoordinateResolution(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	w, err := newIngester(t, feedDir, feedDir, metrics).Build(context.Background())
	require.NoError(t, err)

	tests := []struct {
		path []string
		want domain.Place
	}{
		{[]string{"US", "Alabama", "Autauga"}, domain.NewPlace(32.5395271, -86.6440824)},
		{[]string{"US", "Alabama", "Baldwin"}, domain.NewPlace(30.72775, -87.72207)},
		{[]string{"US", "Alabama", "Unassigned"}, domain.NewPlace(32.806671, -86.791130)},
		{[]string{"US", "Guam"}, domain.NewPlace(13.444304, 144.793731)},
		{[]string{"US", "Diamond Princess"}, domain.Place{}},
		{[]string{"US", "New York", "Kings"}, domain.NewPlace(40.636182, -73.949356)},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.path, "/"), func(t *testing.T) {
			a, ok := domain.Find(w, tt.path...)
			require.True(t, ok)
			assert.Equal(t, tt.want, a.Place())
		})
	}

	dp, _ := domain.Find(w, "US", "Diamond Princess")
	assert.Equal(t, domain.UnknownCode, dp.Codes().FIPS)

	adjusted := testutil.ToFloat64(metrics.GeoAdjustments.WithLabelValues(domain.Confirmed, domain.SourceCounty)) +
		testutil.ToFloat64(metrics.GeoAdjustments.WithLabelValues(domain.Confirmed, domain.SourceState))
	assert.InDelta(t, 4, adjusted, 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ShortRows.WithLabelValues(domain.Confirmed)), 0)
}

func TestIngester_GeoAdjustmentsPerMeasure(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	_, err := newIngester(t, feedDir, feedDir, metrics).Build(context.Background())
	require.NoError(t, err)

	// Baldwin and Kings differ from the county table, Autauga matches it
	// once rounded. Every measure compares against the row's own coordinates.
	for _, label := range []string{domain.Confirmed, domain.Deaths} {
		t.Run(label, func(t *testing.T) {
			assert.InDelta(t, 2, testutil.ToFloat64(metrics.GeoAdjustments.WithLabelValues(label, domain.SourceCounty)), 0)
			assert.InDelta(t, 2, testutil.ToFloat64(metrics.GeoAdjustments.WithLabelValues(label, domain.SourceState)), 0)
		})
	}
}

func TestIngester_UnequalDateRanges(t *testing.T) {
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.GlobalDeathsFile: func(s string) string {
			lines := strings.Split(strings.TrimSpace(s), "\n")
			for i := range lines {
				lines[i] += ",9"
			}
			lines[0] = strings.TrimSuffix(lines[0], ",9") + ",1/26/20"
			return strings.Join(lines, "\n") + "\n"
		},
	})

	_, err := newIngester(t, dir, dir, observability.NewMetricsForTesting()).Build(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFormat)
	assert.Contains(t, err.Error(), pipeline.GlobalDeathsFile)
}

func TestIngester_NationalAxisMismatch(t *testing.T) {
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.NationalConfirmedFile: func(s string) string {
			return strings.Replace(s, "1/25/20\n", "1/25/20,1/26/20\n", 1)
		},
	})

	_, err := newIngester(t, dir, dir, observability.NewMetricsForTesting()).Build(context.Background())

	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestIngester_MissingState(t *testing.T) {
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.NationalConfirmedFile: func(s string) string {
			return strings.Replace(s, ",Kings,New York,US,", ",Kings,,US,", 1)
		},
	})

	_, err := newIngester(t, dir, dir, observability.NewMetricsForTesting()).Build(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFormat)
	assert.Contains(t, err.Error(), "line 7")
}

func TestIngester_BadLocationCode(t *testing.T) {
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.NationalConfirmedFile: func(s string) string {
			return strings.Replace(s, ",36047.0,", ",360470,", 1)
		},
	})

	_, err := newIngester(t, dir, dir, observability.NewMetricsForTesting()).Build(context.Background())

	assert.ErrorIs(t, err, domain.ErrUsage)
}

func TestIngester_StructureMismatch(t *testing.T) {
	dup := ",Afghanistan,33.93911,67.709953,0,0,2,3\n"
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.GlobalConfirmedFile: func(s string) string { return s + dup },
	})

	_, err := newIngester(t, dir, dir, observability.NewMetricsForTesting()).Build(context.Background())

	assert.ErrorIs(t, err, domain.ErrStructure)
}

func TestIngester_MissingFile(t *testing.T) {
	_, err := newIngester(t, t.TempDir(), feedDir, observability.NewMetricsForTesting()).Build(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngester_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newIngester(t, feedDir, feedDir, observability.NewMetricsForTesting()).Build(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngester_Geocoder(t *testing.T) {
	geo := &stubGeocoder{result: domain.GeocodingResult{Lat: 42.1, Lon: -75.2}}
	dir := copyFeeds(t, map[string]func(string) string{
		pipeline.NationalConfirmedFile: func(s string) string {
			return s + "84036999,US,USA,840,36999.0,Nowhere,Atlantis,US,1,1,\"Nowhere, Atlantis, US\",0,0,0,0\n"
		},
	})
	opts := pipeline.IngestOptions{GlobalDir: dir, NationalDir: dir, Workers: 1}
	in := pipeline.NewIngester(opts, testReference(t), geo, discardLogger(), observability.NewMetricsForTesting())

	w, err := in.Build(context.Background())
	require.NoError(t, err)

	a, ok := domain.Find(w, "US", "Atlantis", "Nowhere")
	require.True(t, ok)
	assert.Equal(t, domain.NewPlace(42.1, -75.2), a.Place())
	assert.Equal(t, []string{"Nowhere/Atlantis"}, geo.calls)
}

type stubGeocoder struct {
	result domain.GeocodingResult
	calls  []string
}

func (s *stubGeocoder) ForwardGeocode(_ context.Context, name, state string) (domain.GeocodingResult, error) {
	s.calls = append(s.calls, name+"/"+state)
	return s.result, nil
}

func TestExpectedGlobalRows(t *testing.T) {
	w := domain.NewWorld("World")
	w.SetDates(time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC), 1)
	mk := func(parent *domain.Area, name string) *domain.Area {
		a, err := parent.GetOrCreate(name, 0, 0)
		require.NoError(t, err)
		return a
	}

	mk(&w.Area, "Chad")
	au := mk(&w.Area, "Australia")
	mk(au, "Victoria")
	mk(au, "Queensland")
	fr := mk(&w.Area, "France")
	_, err := fr.SetData(domain.Confirmed, []int64{1}, false)
	require.NoError(t, err)
	mk(fr, "Reunion")
	us := mk(&w.Area, "US")
	mk(us, "Alabama")

	// Chad 1, Australia 2, France 1+1, US 1
	assert.Equal(t, 6, pipeline.ExpectedGlobalRows(w))
	assert.NoError(t, pipeline.CheckStructure(w, 6))
	assert.ErrorIs(t, pipeline.CheckStructure(w, 7), domain.ErrStructure)
}
