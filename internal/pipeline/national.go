package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

const (
	nationalCode    = 4
	nationalCounty  = 5
	nationalState   = 6
	nationalCountry = 7
	nationalLat     = 8
	nationalLon     = 9
	nationalKey     = 10
)

// nationalTally collects per-file counters of the national feed.
type nationalTally struct {
	rows       int
	fixes      int
	short      int
	adjusts    int
	unresolved int
}

// IngestNational reads the national confirmed and deaths files into w.
// Rows go to the state when no county is given, otherwise to the county.
// Each receiving node gets its normalized location code and resolved
// coordinates.
func (i *Ingester) IngestNational(ctx context.Context, w *domain.World) error {
	axis := &dateAxis{world: w}

	for _, f := range nationalFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(i.opts.NationalDir, f.name)
		var tally nationalTally

		err := readFeed(path,
			func(h []string) error { return axis.check(h, f.dateOffset) },
			func(line int, v []string) error {
				return i.nationalRow(ctx, w, f, axis.n, line, v, &tally)
			})
		if err != nil {
			return fmt.Errorf("national feed: %w", err)
		}

		i.metrics.SmoothingFixes.WithLabelValues("national", f.label).Add(float64(tally.fixes))
		i.logger.Info("national feed ingested",
			"label", f.label,
			"rows", tally.rows,
			"geo_adjustments", tally.adjusts,
			"geo_unresolved", tally.unresolved,
			"short_rows", tally.short,
			"smoothing_fixes", tally.fixes,
		)
	}
	return nil
}

func (i *Ingester) nationalRow(ctx context.Context, w *domain.World, f feedFile, n, line int, v []string, tally *nationalTally) error {
	if len(v) <= f.dateOffset {
		return fmt.Errorf("%w: row has no date columns", domain.ErrFormat)
	}
	country, state, county := v[nationalCountry], v[nationalState], v[nationalCounty]
	if state == "" {
		return fmt.Errorf("%w: state is required", domain.ErrFormat)
	}
	lat, lon, err := parseLatLon(v[nationalLat], v[nationalLon])
	if err != nil {
		return err
	}

	data, short, err := nationalData(v, f.dateOffset, n)
	if err != nil {
		return err
	}
	if short {
		tally.short++
		i.metrics.ShortRows.WithLabelValues(f.label).Inc()
		i.logger.Warn("short row forward-filled",
			"label", f.label,
			"line", line,
			"key", v[nationalKey],
			"columns", len(v),
			"value", data[n-1],
		)
	}

	c, err := w.GetOrCreate(country, lat, lon)
	if err != nil {
		return err
	}
	setCodes(c, country, "", "")

	node, err := c.GetOrCreate(state, lat, lon)
	if err != nil {
		return err
	}
	setCodes(node, country, state, "")

	if county != "" {
		if node, err = node.GetOrCreate(county, lat, lon); err != nil {
			return err
		}
		setCodes(node, country, state, county)
	}

	fixes, err := node.SetData(f.label, data, i.opts.Smooth)
	if err != nil {
		return err
	}
	tally.rows++
	tally.fixes += fixes
	i.metrics.RowsIngested.WithLabelValues("national", f.label).Inc()

	code, err := domain.NormalizeLocationCode(v[nationalCode])
	if err != nil {
		return err
	}
	codes := node.Codes()
	codes.FIPS = code
	node.SetCodes(codes)

	res, err := domain.ResolvePlace(ctx, code, node.Key(), domain.NewPlace(lat, lon), i.ref, i.geocoder)
	if err != nil {
		i.logger.Warn("geocoding failed", "key", node.Key(), "error", err)
	}
	node.SetPlace(res.Place)

	switch {
	case res.Adjusted:
		tally.adjusts++
		i.metrics.GeoAdjustments.WithLabelValues(f.label, res.Source).Inc()
	case res.Source == domain.SourceUnresolved:
		tally.unresolved++
		i.metrics.GeoLookupFailures.WithLabelValues(f.label).Inc()
		i.logger.Warn("no reference coordinates", "label", f.label, "code", code, "key", node.Key())
	}
	return nil
}

// nationalData parses the date columns of a row. Missing trailing dates take
// the row's last present value.
func nationalData(v []string, offset, n int) ([]int64, bool, error) {
	data := make([]int64, n)
	present := min(n, len(v)-offset)
	for j := range present {
		d, err := parseCount(v[offset+j])
		if err != nil {
			return nil, false, err
		}
		data[j] = d
	}
	for j := present; j < n; j++ {
		data[j] = data[present-1]
	}
	return data, present < n, nil
}

func setCodes(a *domain.Area, adm1, adm2, adm3 string) {
	codes := a.Codes()
	codes.ADM1 = adm1
	if adm2 != "" {
		codes.ADM2 = adm2
	}
	if adm3 != "" {
		codes.ADM3 = adm3
	}
	a.SetCodes(codes)
}
