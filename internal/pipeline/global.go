package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

const (
	globalProvince = 0
	globalCountry  = 1
	globalLat      = 2
	globalLon      = 3
)

// IngestGlobal reads the three global measure files into w and returns the
// largest number of data rows found in any of them. Countries get data
// directly unless a province is given. US rows without a province are
// skipped; the national feed carries them at county level.
func (i *Ingester) IngestGlobal(ctx context.Context, w *domain.World) (int, error) {
	axis := &dateAxis{world: w}
	maxRows := 0

	for _, f := range globalFiles {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		path := filepath.Join(i.opts.GlobalDir, f.name)
		rows, fixes := 0, 0

		err := readFeed(path,
			func(h []string) error { return axis.check(h, f.dateOffset) },
			func(_ int, v []string) error {
				n, err := i.globalRow(w, f, axis.n, v)
				if err != nil {
					return err
				}
				rows++
				fixes += n
				return nil
			})
		if err != nil {
			return 0, fmt.Errorf("global feed: %w", err)
		}

		maxRows = max(maxRows, rows)
		i.metrics.SmoothingFixes.WithLabelValues("global", f.label).Add(float64(fixes))
		i.logger.Info("global feed ingested",
			"label", f.label,
			"rows", rows,
			"countries", w.NumChildren(),
			"smoothing_fixes", fixes,
		)
	}
	return maxRows, nil
}

func (i *Ingester) globalRow(w *domain.World, f feedFile, n int, v []string) (int, error) {
	if len(v) < f.dateOffset+n {
		return 0, fmt.Errorf("%w: row has %d columns, want %d", domain.ErrFormat, len(v), f.dateOffset+n)
	}
	lat, lon, err := parseLatLon(v[globalLat], v[globalLon])
	if err != nil {
		return 0, err
	}
	data := make([]int64, n)
	for j := range data {
		if data[j], err = parseCount(v[f.dateOffset+j]); err != nil {
			return 0, err
		}
	}

	country, province := v[globalCountry], v[globalProvince]
	c, err := w.GetOrCreate(country, lat, lon)
	if err != nil {
		return 0, err
	}
	codes := c.Codes()
	codes.ADM1 = country
	c.SetCodes(codes)

	target := c
	switch {
	case province != "":
		p, err := c.GetOrCreate(province, lat, lon)
		if err != nil {
			return 0, err
		}
		codes := p.Codes()
		codes.ADM1, codes.ADM2 = country, province
		p.SetCodes(codes)
		target = p
	case country == "US":
		return 0, nil
	}

	fixes, err := target.SetData(f.label, data, i.opts.Smooth)
	if err != nil {
		return 0, err
	}
	i.metrics.RowsIngested.WithLabelValues("global", f.label).Inc()
	return fixes, nil
}
