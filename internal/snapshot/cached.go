package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
	"github.com/couchcryptid/episeries-etl/internal/pipeline"
)

// CachedBuilder serves a world from a snapshot when one exists and is newer
// than every source file, and otherwise delegates to the wrapped builder and
// saves the result.
type CachedBuilder struct {
	next    pipeline.Builder
	path    string
	sources []string
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCachedBuilder wraps next. sources are files or directories whose
// modification times invalidate the snapshot.
func NewCachedBuilder(next pipeline.Builder, path string, sources []string, workers int, logger *slog.Logger, metrics *observability.Metrics) *CachedBuilder {
	return &CachedBuilder{
		next:    next,
		path:    path,
		sources: sources,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// Build implements pipeline.Builder.
func (b *CachedBuilder) Build(ctx context.Context) (*domain.World, error) {
	if w, ok := b.load(ctx); ok {
		b.metrics.SnapshotCache.WithLabelValues("hit").Inc()
		return w, nil
	}
	b.metrics.SnapshotCache.WithLabelValues("miss").Inc()

	w, err := b.next.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := Save(b.path, w); err != nil {
		b.logger.Warn("snapshot not saved", "path", b.path, "error", err)
		return w, nil
	}
	b.logger.Info("snapshot saved", "path", b.path)
	return w, nil
}

func (b *CachedBuilder) load(ctx context.Context) (*domain.World, bool) {
	info, err := os.Stat(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		b.logger.Warn("snapshot unreadable", "path", b.path, "error", err)
		return nil, false
	}

	newest, err := newestModTime(b.sources)
	if err != nil {
		b.logger.Warn("snapshot sources unreadable", "error", err)
		return nil, false
	}
	if newest.After(info.ModTime()) {
		b.logger.Info("snapshot older than sources, rebuilding", "path", b.path)
		return nil, false
	}

	w, err := Load(b.path)
	if err != nil {
		b.logger.Warn("discarding snapshot", "path", b.path, "error", err)
		return nil, false
	}
	if err := w.RecomputeAll(ctx, domain.Measures, b.workers); err != nil {
		b.logger.Warn("snapshot recompute failed", "error", err)
		return nil, false
	}
	b.logger.Info("world loaded from snapshot", "path", b.path, "days", w.Len())
	return w, true
}

func newestModTime(paths []string) (time.Time, error) {
	var newest time.Time
	for _, root := range paths {
		err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().After(newest) {
				newest = info.ModTime()
			}
			return nil
		})
		if err != nil {
			return time.Time{}, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	return newest, nil
}
