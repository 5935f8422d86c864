// Package snapshot persists a whole world to a single zstd-compressed JSON
// document and restores it. Loading is all or nothing.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/episeries-etl/internal/domain"
)

const formatVersion = 1

// ErrVersion is returned when a snapshot was written by an incompatible format.
var ErrVersion = errors.New("unsupported snapshot version")

type document struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Start     time.Time `json:"start"`
	Days      int       `json:"days"`
	Root      node      `json:"root"`
}

type node struct {
	Name     string             `json:"name"`
	Place    domain.Place       `json:"place"`
	Codes    domain.Codes       `json:"codes"`
	Own      map[string][]int64 `json:"own,omitempty"`
	Children []node             `json:"children,omitempty"`
}

func encodeArea(a *domain.Area) node {
	n := node{Name: a.Name(), Place: a.Place(), Codes: a.Codes()}
	if labels := a.Labels(); len(labels) > 0 {
		n.Own = make(map[string][]int64, len(labels))
		for _, l := range labels {
			n.Own[l], _ = a.Own(l)
		}
	}
	for _, c := range a.Children() {
		n.Children = append(n.Children, encodeArea(c))
	}
	return n
}

func decodeArea(a *domain.Area, n node) error {
	a.SetPlace(n.Place)
	a.SetCodes(n.Codes)
	for l, data := range n.Own {
		if _, err := a.SetData(l, data, false); err != nil {
			return err
		}
	}
	for _, cn := range n.Children {
		c, err := a.GetOrCreate(cn.Name, cn.Place.Lat, cn.Place.Lon)
		if err != nil {
			return err
		}
		if err := decodeArea(c, cn); err != nil {
			return err
		}
	}
	return nil
}

// Save writes w to path. The file is written next to path and renamed into
// place so a partially written snapshot is never observed.
func Save(path string, w *domain.World) (err error) {
	doc := document{
		Version:   formatVersion,
		CreatedAt: domain.Now().UTC(),
		Start:     w.Start(),
		Days:      w.Len(),
		Root:      encodeArea(&w.Area),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck // already failing
			os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		}
	}()

	if err := write(tmp, doc); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func write(out io.Writer, doc document) error {
	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close() //nolint:errcheck // encode error takes precedence
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Load restores a world from path. Aggregates are not restored; callers
// recompute them. A missing file yields an error wrapping os.ErrNotExist.
func Load(path string) (*domain.World, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var doc document
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", domain.ErrFormat, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, doc.Version, formatVersion)
	}

	w := domain.NewWorld(doc.Root.Name)
	w.SetDates(doc.Start, doc.Days)
	if err := decodeArea(&w.Area, doc.Root); err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	return w, nil
}
