package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	shp "github.com/jonas-p/go-shp"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
)

// ShapefileBase is the base name of the .shp, .shx, .dbf and .prj files.
const ShapefileBase = "data_shapefile"

const wgs84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],` +
	`PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`

var shapefileExts = []string{".shp", ".shx", ".dbf", ".prj"}

// Shapefile is a pipeline loader writing one POINT record per area and
// measure, with the standard layout's columns as attributes.
type Shapefile struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewShapefile returns an exporter writing a WGS-84 point shapefile to dir.
func NewShapefile(dir string, logger *slog.Logger, metrics *observability.Metrics) *Shapefile {
	return &Shapefile{dir: dir, logger: logger, metrics: metrics}
}

// Path is the .shp file the exporter writes.
func (s *Shapefile) Path() string { return filepath.Join(s.dir, ShapefileBase+".shp") }

// Load implements pipeline.Loader. The files are written to a scratch
// directory and moved into dir only when the whole world was written.
func (s *Shapefile) Load(ctx context.Context, w *domain.World) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.MkdirTemp(s.dir, ShapefileBase+".*.tmp")
	if err != nil {
		return fmt.Errorf("create shapefile export: %w", err)
	}
	defer os.RemoveAll(tmp) //nolint:errcheck // best effort cleanup

	n, err := WriteShapefile(ctx, filepath.Join(tmp, ShapefileBase), w)
	if err != nil {
		return fmt.Errorf("write shapefile export: %w", err)
	}
	for _, ext := range shapefileExts {
		name := ShapefileBase + ext
		if err := os.Rename(filepath.Join(tmp, name), filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("rename shapefile export: %w", err)
		}
	}

	s.metrics.ExportRecords.WithLabelValues("shapefile").Add(float64(n))
	s.logger.Info("export written", "sink", "shapefile", "path", s.Path(), "records", n)
	return nil
}

// WriteShapefile writes base.shp, base.shx, base.dbf and base.prj. Each area
// gets one point per measure, in depth first order, carrying the attributes
// N, FIPS, ADM3, ADM2, ADM1, KEY, LAT, LON, T and one numeric field per date.
func WriteShapefile(ctx context.Context, base string, w *domain.World) (int, error) {
	sw, err := shp.Create(base+".shp", shp.POINT)
	if err != nil {
		return 0, err
	}

	fields := []shp.Field{
		shp.NumberField("N", 10),
		shp.StringField("FIPS", 5),
		shp.StringField("ADM3", 80),
		shp.StringField("ADM2", 80),
		shp.StringField("ADM1", 80),
		shp.StringField("KEY", 255),
		shp.FloatField("LAT", 12, 6),
		shp.FloatField("LON", 12, 6),
		shp.StringField("T", 1),
	}
	for _, d := range w.Dates() {
		fields = append(fields, shp.NumberField(d.Format(dateLayout), 12))
	}
	if err := sw.SetFields(fields); err != nil {
		sw.Close()
		return 0, err
	}

	n := 0
	err = domain.Walk(&w.Area, func(a *domain.Area) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, p := a.Codes(), a.Place()
		for _, label := range domain.Measures {
			data, _ := a.Aggregate(label, domain.AggregateOptions{})
			n++
			row := int(sw.Write(&shp.Point{X: p.Lon, Y: p.Lat}))
			values := []any{n, c.FIPS, c.ADM3, c.ADM2, c.ADM1, a.Key(), p.Lat, p.Lon, measureTags[label]}
			for _, v := range data {
				values = append(values, int(v))
			}
			for i, v := range values {
				if err := sw.WriteAttribute(row, i, v); err != nil {
					return fmt.Errorf("%s %s: %w", a.Key(), fields[i], err)
				}
			}
		}
		return nil
	})
	sw.Close()
	if err != nil {
		return n, err
	}

	// go-shp writes the attribute table without the dot before its extension.
	if _, statErr := os.Stat(base + "dbf"); statErr == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return n, err
		}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return n, statErr
	}

	if err := os.WriteFile(base+".prj", []byte(wgs84), 0o644); err != nil {
		return n, err
	}
	return n, nil
}
