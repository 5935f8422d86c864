package http

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/series"
)

var errBadRequest = errors.New("bad request")

type datesResponse struct {
	Start string   `json:"start"`
	Days  int      `json:"days"`
	Dates []string `json:"dates"`
}

type childSummary struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	HasChildren bool   `json:"has_children"`
}

type areaResponse struct {
	Name     string         `json:"name"`
	Key      string         `json:"key"`
	Level    int            `json:"level"`
	Place    domain.Place   `json:"place"`
	Codes    domain.Codes   `json:"codes"`
	Labels   []string       `json:"labels"`
	Children []childSummary `json:"children"`
}

type seriesResponse struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Threshold int64    `json:"threshold"`
	Found     bool     `json:"found"`
	Dates     []string `json:"dates"`
	Values    []int64  `json:"values"`
}

type compareSeries struct {
	Key     string   `json:"key"`
	Invalid bool     `json:"invalid"`
	Dates   []string `json:"dates"`
	Index   []int    `json:"index"`
	Values  []int64  `json:"values"`
}

type compareResponse struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Threshold int64           `json:"threshold"`
	Valid     int             `json:"valid"`
	Longest   int             `json:"longest"`
	Shortest  int             `json:"shortest"`
	Series    []compareSeries `json:"series"`
	Sum       []int64         `json:"sum,omitempty"`
	Average   []float64       `json:"average,omitempty"`
}

func (s *Server) handleDates(w http.ResponseWriter, _ *http.Request) {
	world, ok := s.world(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, datesResponse{
		Start: world.Start().Format(time.DateOnly),
		Days:  world.Len(),
		Dates: formatDates(world.Dates()),
	})
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	a, ok := s.area(w, r)
	if !ok {
		return
	}
	resp := areaResponse{
		Name:     a.Name(),
		Key:      a.Key(),
		Level:    a.Level(),
		Place:    a.Place(),
		Codes:    a.Codes(),
		Labels:   a.Labels(),
		Children: []childSummary{},
	}
	for _, c := range a.Children() {
		resp.Children = append(resp.Children, childSummary{Name: c.Name(), Key: c.Key(), HasChildren: c.HasChildren()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	a, ok := s.area(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	label, err := parseLabel(q.Get("label"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts.Recompute, err = parseFlag(q.Get("recompute"), "recompute"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ts, found := series.FromArea(a.Key(), a, label, opts)
	writeJSON(w, http.StatusOK, seriesResponse{
		Key:       a.Key(),
		Label:     label,
		Threshold: opts.Threshold,
		Found:     found,
		Dates:     formatDates(ts.Dates),
		Values:    ts.Values,
	})
}

// handleCompare windows the children of an area, or its measures when
// measures=true: tighten, add guide lines, then optionally thresh, delta and
// overlay. Guides start at base (default: the threshold, or 1) and span the
// tightened window.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	a, ok := s.area(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	label, err := parseLabel(q.Get("label"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	threshold := opts.Threshold
	opts.Threshold = 0

	var flags [3]bool
	for i, name := range []string{"delta", "overlay", "dates"} {
		if flags[i], err = parseFlag(q.Get(name), name); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	delta, overlay, useDates := flags[0], flags[1], flags[2]
	measures, err := parseFlag(q.Get("measures"), "measures")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	guides, err := parseGuides(q.Get("guides"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(guides) > 0 && overlay {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: guides cannot be overlaid", errBadRequest))
		return
	}
	base := max(threshold, 1)
	if v := q.Get("base"); v != "" {
		if base, err = parseInt(v, "base"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	start, err := parseInt(q.Get("start"), "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tighten, err := parseInt(q.Get("tighten"), "tighten")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var g *series.Group
	if measures {
		g = series.Measures(a, domain.Measures, opts)
	} else {
		g = series.Children(a, label, opts)
	}
	g.Tighten(tighten, int(start))
	if len(guides) > 0 {
		if err := series.AddGuides(g, label, base, int(start), guides...); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if threshold > 0 {
		g.Thresh(threshold, int(start))
	}
	if delta {
		g.Delta(int(start))
	}
	if overlay {
		g.Overlay(useDates, int(start))
	}

	resp := compareResponse{
		Key:       a.Key(),
		Label:     label,
		Threshold: threshold,
		Longest:   g.Longest,
		Shortest:  g.Shortest,
		Series:    []compareSeries{},
		Sum:       g.Sum,
		Average:   g.Average,
	}
	for _, ts := range g.Series() {
		if !ts.Invalid {
			resp.Valid++
		}
		resp.Series = append(resp.Series, compareSeries{
			Key:     ts.Key,
			Invalid: ts.Invalid,
			Dates:   formatDates(ts.Dates),
			Index:   ts.Index,
			Values:  ts.Values,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) world(w http.ResponseWriter) (*domain.World, bool) {
	world := s.worlds.World()
	if world == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("world has not been built yet"))
		return nil, false
	}
	return world, true
}

func (s *Server) area(w http.ResponseWriter, r *http.Request) (*domain.Area, bool) {
	world, ok := s.world(w)
	if !ok {
		return nil, false
	}
	path := splitPath(r.PathValue("path"))
	a, ok := domain.Find(world, path...)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("area %q not found", strings.Join(path, "/")))
		return nil, false
	}
	return a, true
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func parseLabel(s string) (string, error) {
	if s == "" {
		return domain.Confirmed, nil
	}
	label := strings.ToUpper(s)
	if !slices.Contains(domain.Measures, label) {
		return "", fmt.Errorf("%w: unknown label %q", errBadRequest, s)
	}
	return label, nil
}

func parseOptions(r *http.Request) (domain.AggregateOptions, error) {
	q := r.URL.Query()
	threshold, err := parseInt(q.Get("threshold"), "threshold")
	if err != nil {
		return domain.AggregateOptions{}, err
	}
	ignore, err := parseFlag(q.Get("ignore"), "ignore")
	if err != nil {
		return domain.AggregateOptions{}, err
	}
	return domain.AggregateOptions{Threshold: threshold, IgnorePlaceholders: ignore}, nil
}

func parseInt(s, name string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, s)
	}
	return n, nil
}

// parseGuides reads a comma separated list of doubling periods in days.
// Negative periods halve.
func parseGuides(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, f := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || d == 0 {
			return nil, fmt.Errorf("%w: invalid guide period %q", errBadRequest, f)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseFlag(s, name string) (bool, error) {
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, s)
	}
	return v, nil
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
