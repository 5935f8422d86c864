package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

// Feed file names as published upstream.
const (
	GlobalConfirmedFile   = "time_series_covid19_confirmed_global.csv"
	GlobalDeathsFile      = "time_series_covid19_deaths_global.csv"
	GlobalRecoveredFile   = "time_series_covid19_recovered_global.csv"
	NationalConfirmedFile = "time_series_covid19_confirmed_US.csv"
	NationalDeathsFile    = "time_series_covid19_deaths_US.csv"
)

// feedFile describes one measure file and the column its dates start at.
type feedFile struct {
	label      string
	name       string
	dateOffset int
}

var (
	globalFiles = []feedFile{
		{domain.Confirmed, GlobalConfirmedFile, 4},
		{domain.Deaths, GlobalDeathsFile, 4},
		{domain.Recovered, GlobalRecoveredFile, 4},
	}
	nationalFiles = []feedFile{
		{domain.Confirmed, NationalConfirmedFile, 11},
		{domain.Deaths, NationalDeathsFile, 12},
	}
)

// readFeed calls header once and row for every record after it. Records may
// be shorter or longer than the header.
func readFeed(path string, header func([]string) error, row func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	h, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w: %s: read header: %v", domain.ErrFormat, path, err)
	}
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}
	if err := header(h); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", domain.ErrFormat, path, line, err)
		}
		if err := row(line, rec); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}

// dateAxis validates the header's date count against the count fixed by the
// first file and against the world axis, initializing the axis when unset.
type dateAxis struct {
	world *domain.World
	n     int
}

func (d *dateAxis) check(header []string, offset int) error {
	got := len(header) - offset
	if got <= 0 {
		return fmt.Errorf("%w: header has no date columns after column %d", domain.ErrFormat, offset)
	}
	if d.n == 0 {
		d.n = got
	}
	if got != d.n {
		return fmt.Errorf("%w: unequal date ranges (%d != %d)", domain.ErrFormat, d.n, got)
	}
	if d.world.Len() == 0 {
		start, err := domain.ParseFeedDate(header[offset])
		if err != nil {
			return err
		}
		d.world.SetDates(start, got)
		return nil
	}
	if got != d.world.Len() {
		return fmt.Errorf("%w: unequal date ranges (%d != world %d)", domain.ErrFormat, got, d.world.Len())
	}
	return nil
}

// parseCount accepts integers and whole floats such as "12.0".
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: count %q", domain.ErrFormat, s)
	}
	return int64(f), nil
}

// parseCoord treats a blank coordinate as zero.
func parseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", domain.ErrFormat, s)
	}
	return v, nil
}

func parseLatLon(lat, lon string) (float64, float64, error) {
	la, err := parseCoord(lat)
	if err != nil {
		return 0, 0, err
	}
	lo, err := parseCoord(lon)
	if err != nil {
		return 0, 0, err
	}
	return la, lo, nil
}
