// Command genmock writes a reproducible set of synthetic feeds and reference
// tables in the upstream layouts. The output exercises the same paths real
// data does: provinces, US rows dropped from the global feed, placeholder
// counties, territory codes, the 88888 ship code, short rows, and reporting
// holes for the smoother.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 60 -seed 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/pipeline"
)

// generatedAt fixes the clock so the same flags always produce the same files.
var generatedAt = time.Date(2020, time.March, 31, 6, 0, 0, 0, time.UTC)

type region struct {
	province, country string
	lat, lon          float64
	peak              float64 // final cumulative confirmed count
}

var globalRegions = []region{
	{"", "Afghanistan", 33.93911, 67.709953, 170},
	{"Australian Capital Territory", "Australia", -35.4735, 149.0124, 80},
	{"New South Wales", "Australia", -33.8688, 151.2093, 2000},
	{"Victoria", "Australia", -37.8136, 144.9631, 900},
	{"", "France", 46.2276, 2.2137, 45000},
	{"French Guiana", "France", 3.9339, -53.1258, 40},
	{"", "Italy", 41.87194, 12.56738, 100000},
	{"", "US", 40, -100, 0},
}

type county struct {
	fips       string
	name       string
	lat, lon   float64
	peak       float64
	population int
}

type state struct {
	name, abbr, code string
	lat, lon         float64
	counties         []county
}

var states = []state{
	{"Alabama", "AL", "01", 32.3182, -86.9023, []county{
		{"1001.0", "Autauga", 32.539527, -86.644082, 25, 55869},
		{"1003.0", "Baldwin", 30.72775, -87.722071, 70, 223234},
		{"90001.0", "Unassigned", 0, 0, 12, 0},
	}},
	{"New York", "NY", "36", 43.2994, -74.2179, []county{
		{"36047.0", "Kings", 40.636182, -73.949356, 15000, 2559903},
		{"36061.0", "New York", 40.767273, -73.971526, 14000, 1628706},
		{"", "Out of NY", 0, 0, 60, 0},
	}},
	{"Guam", "GU", "66", 13.4443, 144.7937, []county{
		{"66.0", "", 13.4443, 144.7937, 70, 164229},
	}},
	{"Diamond Princess", "", "", 0, 0, []county{
		{"88888.0", "", 0, 0, 49, 0},
	}},
}

func main() {
	out := flag.String("out", "data/mock", "output directory")
	days := flag.Int("days", 60, "number of dates in every feed")
	seed := flag.Uint64("seed", 7, "random seed for noise and reporting holes")
	holes := flag.Float64("holes", 0.02, "probability of a missing report on any day")
	flag.Parse()

	if err := run(*out, *days, *seed, *holes); err != nil {
		log.Fatal(err)
	}
}

func run(out string, days int, seed uint64, holes float64) error {
	if days < 2 {
		return fmt.Errorf("days must be at least 2, got %d", days)
	}

	clock := clockwork.NewFakeClockAt(generatedAt)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	end := clock.Now().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))
	dates := make([]string, days)
	for i := range dates {
		d := start.AddDate(0, 0, i)
		dates[i] = fmt.Sprintf("%d/%d/%02d", d.Month(), d.Day(), d.Year()%100)
	}
	// The generated header must read back as the same axis.
	if d, err := domain.ParseFeedDate(dates[0]); err != nil || !d.Equal(start) {
		return fmt.Errorf("date header %q does not round trip: %v", dates[0], err)
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	g := &generator{days: days, holes: holes, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}

	if err := writeGlobal(out, g, dates); err != nil {
		return err
	}
	if err := writeNational(out, g, dates); err != nil {
		return err
	}
	if err := writeReferences(out); err != nil {
		return err
	}
	log.Printf("wrote %d days from %s to %s", days, start.Format(time.DateOnly), out)
	return nil
}

type generator struct {
	days  int
	holes float64
	rng   *rand.Rand
}

// curve returns a logistic cumulative series ending near peak, scaled by
// factor and delayed by lag days, with occasional zero holes.
func (g *generator) curve(peak, factor float64, lag int) []int64 {
	out := make([]int64, g.days)
	mid := float64(g.days) * (0.55 + 0.2*g.rng.Float64())
	scale := float64(g.days) / 10
	for i := range out {
		t := float64(i - lag)
		v := peak * factor / (1 + math.Exp(-(t-mid)/scale))
		out[i] = int64(math.Round(v))
		if i > 0 && out[i] < out[i-1] {
			out[i] = out[i-1]
		}
	}
	for i := 1; i < g.days-1; i++ {
		if out[i] > 0 && g.rng.Float64() < g.holes {
			out[i] = 0
		}
	}
	return out
}

func itoa(data []int64) []string {
	out := make([]string, len(data))
	for i, v := range data {
		out[i] = strconv.FormatInt(v, 10)
	}
	return out
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeGlobal(out string, g *generator, dates []string) error {
	measures := []struct {
		file   string
		factor float64
		lag    int
	}{
		{pipeline.GlobalConfirmedFile, 1, 0},
		{pipeline.GlobalDeathsFile, 0.03, 5},
		{pipeline.GlobalRecoveredFile, 0.7, 14},
	}
	for _, m := range measures {
		rows := [][]string{append([]string{"Province/State", "Country/Region", "Lat", "Long"}, dates...)}
		for _, r := range globalRegions {
			row := []string{r.province, r.country, ftoa(r.lat), ftoa(r.lon)}
			rows = append(rows, append(row, itoa(g.curve(r.peak, m.factor, m.lag))...))
		}
		if err := writeCSV(filepath.Join(out, m.file), rows); err != nil {
			return err
		}
		log.Printf("%s: %d rows", m.file, len(rows)-1)
	}
	return nil
}

func writeNational(out string, g *generator, dates []string) error {
	for _, deaths := range []bool{false, true} {
		file, factor, lag := pipeline.NationalConfirmedFile, 1.0, 0
		header := []string{"UID", "iso2", "iso3", "code3", "FIPS", "Admin2", "Province_State", "Country_Region", "Lat", "Long_", "Combined_Key"}
		if deaths {
			file, factor, lag = pipeline.NationalDeathsFile, 0.04, 5
			header = append(header, "Population")
		}
		rows := [][]string{append(header, dates...)}

		uid := 84000000
		for _, s := range states {
			for _, c := range s.counties {
				uid++
				key := s.name + ", US"
				if c.name != "" {
					key = c.name + ", " + key
				}
				row := []string{strconv.Itoa(uid), "US", "USA", "840", c.fips, c.name, s.name, "US", ftoa(c.lat), ftoa(c.lon), key}
				if deaths {
					row = append(row, strconv.Itoa(c.population))
				}
				data := itoa(g.curve(c.peak, factor, lag))
				// Kings reports one day late.
				if c.name == "Kings" {
					data = data[:len(data)-1]
				}
				rows = append(rows, append(row, data...))
			}
		}
		if err := writeCSV(filepath.Join(out, file), rows); err != nil {
			return err
		}
		log.Printf("%s: %d rows", file, len(rows)-1)
	}
	return nil
}

func writeReferences(out string) error {
	counties := [][]string{{"KEY", "NAME", "Lat", "Lon"}}
	statesRows := [][]string{{"KEY", "ABBR", "STATE", "LAT", "LON"}}
	for _, s := range states {
		if s.code == "" {
			continue
		}
		statesRows = append(statesRows, []string{s.code, s.abbr, s.name, ftoa(s.lat), ftoa(s.lon)})
		for _, c := range s.counties {
			code, err := domain.NormalizeLocationCode(c.fips)
			if err != nil || code == domain.UnknownCode || c.name == "" || domain.IsPlaceholder(c.name) {
				continue
			}
			counties = append(counties, []string{code, c.name, ftoa(c.lat), ftoa(c.lon)})
		}
	}
	if err := writeCSV(filepath.Join(out, "us_counties.csv"), counties); err != nil {
		return err
	}
	return writeCSV(filepath.Join(out, "states.csv"), statesRows)
}
