// Package export writes a world to pipe-delimited text files, one line per
// area and measure (Standard) or one line per area and date (Transposed), and
// to a point shapefile.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
)

const (
	StandardFile   = "data_standard.txt"
	TransposedFile = "data_transposed.txt"

	dateLayout = "01/02/2006"
)

// Short measure tags used in the T column of the standard layout.
var measureTags = map[string]string{
	domain.Confirmed: "C",
	domain.Deaths:    "D",
	domain.Recovered: "R",
}

// WriteFunc writes w to out and returns the number of data lines written.
type WriteFunc func(ctx context.Context, out io.Writer, w *domain.World) (int, error)

// Exporter is a pipeline loader writing one file in dir.
type Exporter struct {
	sink    string
	path    string
	write   WriteFunc
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStandard returns an exporter writing the standard layout to dir.
func NewStandard(dir string, logger *slog.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{
		sink:    "standard",
		path:    filepath.Join(dir, StandardFile),
		write:   WriteStandard,
		logger:  logger,
		metrics: metrics,
	}
}

// NewTransposed returns an exporter writing the transposed layout to dir.
func NewTransposed(dir string, logger *slog.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{
		sink:    "transposed",
		path:    filepath.Join(dir, TransposedFile),
		write:   WriteTransposed,
		logger:  logger,
		metrics: metrics,
	}
}

// Path is the file the exporter writes.
func (e *Exporter) Path() string { return e.path }

// Load implements pipeline.Loader. The file is replaced only when the whole
// world was written.
func (e *Exporter) Load(ctx context.Context, w *domain.World) (err error) {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(e.path), filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s export: %w", e.sink, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck // already failing
			os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		}
	}()

	bw := bufio.NewWriter(tmp)
	n, err := e.write(ctx, bw, w)
	if err != nil {
		return fmt.Errorf("write %s export: %w", e.sink, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush %s export: %w", e.sink, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s export: %w", e.sink, err)
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return fmt.Errorf("rename %s export: %w", e.sink, err)
	}

	e.metrics.ExportRecords.WithLabelValues(e.sink).Add(float64(n))
	e.logger.Info("export written", "sink", e.sink, "path", e.path, "lines", n)
	return nil
}

// WriteStandard writes the header N|FIPS|ADM3|ADM2|ADM1|KEY|LAT|LON|T|dates...
// followed by one line per area and measure, areas in depth first order.
func WriteStandard(ctx context.Context, out io.Writer, w *domain.World) (int, error) {
	dates := w.Dates()
	header := []string{"N", "FIPS", "ADM3", "ADM2", "ADM1", "KEY", "LAT", "LON", "T"}
	for _, d := range dates {
		header = append(header, d.Format(dateLayout))
	}
	if err := writeLine(out, header); err != nil {
		return 0, err
	}

	n := 0
	err := domain.Walk(&w.Area, func(a *domain.Area) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		prefix := areaFields(a)
		for _, label := range domain.Measures {
			data, _ := a.Aggregate(label, domain.AggregateOptions{})
			n++
			fields := make([]string, 0, len(prefix)+2+len(data))
			fields = append(fields, strconv.Itoa(n))
			fields = append(fields, prefix...)
			fields = append(fields, measureTags[label])
			for _, v := range data {
				fields = append(fields, strconv.FormatInt(v, 10))
			}
			if err := writeLine(out, fields); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

// WriteTransposed writes the header
// N|FIPS|ADM3|ADM2|ADM1|DATE|KEY|LAT|LON|CONFIRMED|DEATHS|RECOVERED followed by
// one line per area and date.
func WriteTransposed(ctx context.Context, out io.Writer, w *domain.World) (int, error) {
	dates := w.Dates()
	header := []string{"N", "FIPS", "ADM3", "ADM2", "ADM1", "DATE", "KEY", "LAT", "LON"}
	header = append(header, domain.Measures...)
	if err := writeLine(out, header); err != nil {
		return 0, err
	}

	n := 0
	err := domain.Walk(&w.Area, func(a *domain.Area) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, p := a.Codes(), a.Place()
		series := make([][]int64, len(domain.Measures))
		for i, label := range domain.Measures {
			series[i], _ = a.Aggregate(label, domain.AggregateOptions{})
		}
		for i, d := range dates {
			n++
			fields := []string{
				strconv.Itoa(n), c.FIPS, c.ADM3, c.ADM2, c.ADM1,
				d.Format(dateLayout), a.Key(), formatCoord(p.Lat), formatCoord(p.Lon),
			}
			for _, s := range series {
				fields = append(fields, strconv.FormatInt(s[i], 10))
			}
			if err := writeLine(out, fields); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

func areaFields(a *domain.Area) []string {
	c, p := a.Codes(), a.Place()
	return []string{c.FIPS, c.ADM3, c.ADM2, c.ADM1, a.Key(), formatCoord(p.Lat), formatCoord(p.Lon)}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeLine(out io.Writer, fields []string) error {
	_, err := io.WriteString(out, strings.Join(fields, "|")+"\n")
	return err
}
