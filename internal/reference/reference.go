// Package reference loads the static county and state coordinate tables used
// to correct national feed coordinates.
package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

const bom = "\ufeff"

// State is one row of the state and territory table.
type State struct {
	Key   string
	Abbr  string
	Name  string
	Place domain.Place
}

// Tables holds the reference lookups. It is read-only after loading and safe
// for concurrent use.
type Tables struct {
	counties map[string]domain.Place
	byKey    map[string]State
	byAbbr   map[string]State
	byName   map[string]State
}

// Load reads the county table (columns KEY, Lat, Lon) and the state table
// (columns KEY, ABBR, STATE, LAT, LON). Other columns are ignored.
func Load(countyPath, statePath string) (*Tables, error) {
	t := &Tables{
		counties: make(map[string]domain.Place),
		byKey:    make(map[string]State),
		byAbbr:   make(map[string]State),
		byName:   make(map[string]State),
	}

	err := readTable(countyPath, []string{"KEY", "Lat", "Lon"}, func(row map[string]string) error {
		p, err := parsePlace(row["Lat"], row["Lon"])
		if err != nil {
			return err
		}
		t.counties[row["KEY"]] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("county reference: %w", err)
	}

	err = readTable(statePath, []string{"KEY", "ABBR", "STATE", "LAT", "LON"}, func(row map[string]string) error {
		p, err := parsePlace(row["LAT"], row["LON"])
		if err != nil {
			return err
		}
		s := State{Key: row["KEY"], Abbr: row["ABBR"], Name: row["STATE"], Place: p}
		t.byKey[s.Key] = s
		t.byAbbr[s.Abbr] = s
		t.byName[s.Name] = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state reference: %w", err)
	}
	return t, nil
}

// County returns the coordinates of a normalized county code.
func (t *Tables) County(code string) (domain.Place, bool) {
	p, ok := t.counties[code]
	return p, ok
}

// State returns the coordinates of a state or territory by full name.
func (t *Tables) State(name string) (domain.Place, bool) {
	s, ok := t.byName[name]
	return s.Place, ok
}

// StateByKey looks a state up by its two digit code.
func (t *Tables) StateByKey(key string) (State, bool) {
	s, ok := t.byKey[key]
	return s, ok
}

// StateAbbr returns the coordinates of a state or territory by postal
// abbreviation.
func (t *Tables) StateAbbr(abbr string) (domain.Place, bool) {
	s, ok := t.byAbbr[abbr]
	return s.Place, ok
}

// Counts returns the number of counties and states loaded.
func (t *Tables) Counts() (counties, states int) {
	return len(t.counties), len(t.byKey)
}

func readTable(path string, required []string, fn func(map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return fmt.Errorf("%w: %s has no %s column", domain.ErrFormat, path, col)
		}
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}

func parsePlace(lat, lon string) (domain.Place, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return domain.Place{}, fmt.Errorf("%w: latitude %q", domain.ErrFormat, lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return domain.Place{}, fmt.Errorf("%w: longitude %q", domain.ErrFormat, lon)
	}
	return domain.NewPlace(la, lo), nil
}
