// Command validate checks a set of global and national feeds before a run:
// header date axes, row integrity, location codes, and a full build of the
// hierarchy with the aggregation invariant verified at every area.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -feed-dir data/feeds \
//	  -county-ref data/resources/us_counties.csv \
//	  -state-ref data/resources/states.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
	"github.com/couchcryptid/episeries-etl/internal/pipeline"
	"github.com/couchcryptid/episeries-etl/internal/reference"
)

// feedSpec describes a feed file and the layout of its columns.
type feedSpec struct {
	file       string
	label      string
	national   bool
	dateOffset int
}

var specs = []feedSpec{
	{file: pipeline.GlobalConfirmedFile, label: domain.Confirmed, dateOffset: 4},
	{file: pipeline.GlobalDeathsFile, label: domain.Deaths, dateOffset: 4},
	{file: pipeline.GlobalRecoveredFile, label: domain.Recovered, dateOffset: 4},
	{file: pipeline.NationalConfirmedFile, label: domain.Confirmed, national: true, dateOffset: 11},
	{file: pipeline.NationalDeathsFile, label: domain.Deaths, national: true, dateOffset: 12},
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	feedDir := flag.String("feed-dir", "data/feeds", "directory containing the five feed CSV files")
	countyRef := flag.String("county-ref", "data/resources/us_counties.csv", "county reference table")
	stateRef := flag.String("state-ref", "data/resources/states.csv", "state reference table")
	flag.Parse()

	os.Exit(run(*feedDir, *countyRef, *stateRef))
}

func run(feedDir, countyRef, stateRef string) int {
	fmt.Println("=== Feed Integrity Validation ===")
	fmt.Println()

	feeds := make(map[string]*feed, len(specs))
	for _, s := range specs {
		f, err := loadFeed(filepath.Join(feedDir, s.file), s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", s.file, err)
			return 1
		}
		feeds[s.file] = f
	}

	ref, err := reference.Load(countyRef, stateRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reference tables: %v\n", err)
		return 1
	}

	rows, totals := validateRows(feeds)
	phases := []*phase{
		validateHeaders(feeds),
		rows,
		validateCodes(feeds, ref),
		validateBuild(feedDir, ref, totals),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	for _, s := range specs {
		fmt.Printf("%-44s %d rows\n", s.file, len(feeds[s.file].rows))
	}

	for _, p := range phases {
		if len(p.notes) == 0 && p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for _, n := range p.notes {
			fmt.Printf("  note: %s\n", n)
		}
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

type feed struct {
	spec   feedSpec
	header []string
	rows   []feedRow
}

type feedRow struct {
	lineNum int
	fields  []string
}

func loadFeed(path string, s feedSpec) (*feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	header := all[0]
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	out := &feed{spec: s, header: header}
	for i, rec := range all[1:] {
		out.rows = append(out.rows, feedRow{lineNum: i + 2, fields: rec})
	}
	return out, nil
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

// ── Phase 1: Headers ──
// Every file must carry the same run of consecutive dates.

func validateHeaders(feeds map[string]*feed) *phase {
	p := &phase{name: "Phase 1: Header Date Axes"}

	var first []time.Time
	for _, s := range specs {
		f := feeds[s.file]
		if len(f.header) <= s.dateOffset {
			p.errorf("%s: header has no date columns", s.file)
			continue
		}
		dates := make([]time.Time, 0, len(f.header)-s.dateOffset)
		for _, h := range f.header[s.dateOffset:] {
			d, err := domain.ParseFeedDate(h)
			if err != nil {
				p.errorf("%s: %v", s.file, err)
				break
			}
			if n := len(dates); n > 0 && !d.Equal(dates[n-1].AddDate(0, 0, 1)) {
				p.errorf("%s: date %s does not follow %s", s.file, h, dates[n-1].Format(time.DateOnly))
			}
			dates = append(dates, d)
		}
		if first == nil {
			first = dates
			continue
		}
		if len(dates) != len(first) || (len(dates) > 0 && !dates[0].Equal(first[0])) {
			p.errorf("%s: %d dates from %s, first file has %d", s.file, len(dates), dateOrNone(dates), len(first))
		}
	}
	return p
}

func dateOrNone(dates []time.Time) string {
	if len(dates) == 0 {
		return "none"
	}
	return dates[0].Format(time.DateOnly)
}

// ── Phase 2: Rows ──
// Mandatory fields and numeric counts. Returns the expected world total of
// the last date per label.

func validateRows(feeds map[string]*feed) (*phase, map[string]int64) {
	p := &phase{name: "Phase 2: Row Integrity"}
	totals := make(map[string]int64)

	for _, s := range specs {
		f := feeds[s.file]
		width := len(f.header)
		short, decreasing := 0, 0
		for _, row := range f.rows {
			if !s.national && field(row.fields, 1) == "" {
				p.errorf("%s line %d: empty country", s.file, row.lineNum)
				continue
			}
			if s.national && field(row.fields, 6) == "" {
				p.errorf("%s line %d: empty state", s.file, row.lineNum)
				continue
			}
			if len(row.fields) < width {
				if !s.national || len(row.fields) <= s.dateOffset {
					p.errorf("%s line %d: %d fields, header has %d", s.file, row.lineNum, len(row.fields), width)
					continue
				}
				short++
			}

			var last int64
			for i := s.dateOffset; i < len(row.fields) && i < width; i++ {
				v, err := parseCount(row.fields[i])
				if err != nil {
					p.errorf("%s line %d column %d: invalid count %q", s.file, row.lineNum, i+1, row.fields[i])
					break
				}
				if i > s.dateOffset && v < last {
					decreasing++
				}
				last = v
			}
			// US rows without a province are dropped in favor of the national feed.
			if !s.national && field(row.fields, 1) == "US" && field(row.fields, 0) == "" {
				continue
			}
			totals[s.label] += last
		}
		if short > 0 {
			p.notef("%s: %d short rows will be forward-filled", s.file, short)
		}
		if decreasing > 0 {
			p.notef("%s: %d decreasing values left for smoothing", s.file, decreasing)
		}
	}
	return p, totals
}

// ── Phase 3: Location codes ──

func validateCodes(feeds map[string]*feed, ref *reference.Tables) *phase {
	p := &phase{name: "Phase 3: Location Codes"}

	unknown, stateless := map[string]bool{}, map[string]bool{}
	for _, s := range specs {
		if !s.national {
			continue
		}
		for _, row := range feeds[s.file].rows {
			code, err := domain.NormalizeLocationCode(field(row.fields, 4))
			if err != nil {
				p.errorf("%s line %d: %v", s.file, row.lineNum, err)
				continue
			}
			if code == domain.UnknownCode {
				continue
			}
			if _, ok := ref.County(code); ok {
				continue
			}
			unknown[code] = true
			if _, ok := ref.StateByKey(code[:2]); !ok {
				stateless[code] = true
			}
		}
	}
	if len(unknown) > 0 {
		p.notef("%d codes missing from the county table fall back to state lookup: %s",
			len(unknown), sortedKeys(unknown))
	}
	if len(stateless) > 0 {
		p.notef("%d codes name no known state: %s", len(stateless), sortedKeys(stateless))
	}
	return p
}

func sortedKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}

// ── Phase 4: Build ──
// The unsmoothed build must pass the structure check, and every area must
// equal its own data plus its children.

func validateBuild(feedDir string, ref *reference.Tables, totals map[string]int64) *phase {
	p := &phase{name: "Phase 4: Build and Aggregation"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ing := pipeline.NewIngester(pipeline.IngestOptions{
		GlobalDir:   feedDir,
		NationalDir: feedDir,
		Workers:     4,
	}, ref, nil, logger, observability.NewMetricsForTesting())

	w, err := ing.Build(context.Background())
	if err != nil {
		p.errorf("build: %v", err)
		return p
	}

	areas := 0
	_ = domain.Walk(&w.Area, func(a *domain.Area) error {
		areas++
		for _, label := range domain.Measures {
			checkArea(p, a, label)
		}
		return nil
	})
	p.notef("%d areas over %d days", areas, w.Len())

	for _, label := range domain.Measures {
		got, _ := w.Aggregate(label, domain.AggregateOptions{})
		if len(got) == 0 {
			continue
		}
		if last := got[len(got)-1]; last != totals[label] {
			p.errorf("%s: world total %d, feed rows sum to %d", label, last, totals[label])
		}
		if i, ok := w.ThresholdIndex(label, domain.AggregateOptions{Threshold: 1}); ok {
			p.notef("%s: first reported on %s", label, w.Dates()[i].Format(time.DateOnly))
		}
	}
	return p
}

func checkArea(p *phase, a *domain.Area, label string) {
	want, _ := a.Own(label)
	got, _ := a.Aggregate(label, domain.AggregateOptions{})
	if want == nil {
		want = make([]int64, len(got))
	}
	for _, c := range a.Children() {
		sub, _ := c.Aggregate(label, domain.AggregateOptions{})
		for i := range min(len(want), len(sub)) {
			want[i] += sub[i]
		}
	}
	if !slices.Equal(want, got) {
		p.errorf("%s %q: aggregate %v, own plus children %v", label, a.Key(), got, want)
	}
}
