package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
)

// IngestOptions configures an Ingester.
type IngestOptions struct {
	GlobalDir   string
	NationalDir string
	Smooth      bool
	Workers     int
}

// Ingester builds a world from the global and national feeds.
type Ingester struct {
	opts     IngestOptions
	ref      domain.GeoReference
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewIngester creates an Ingester. Pass a nil geocoder to disable the
// geocoding fallback.
func NewIngester(opts IngestOptions, ref domain.GeoReference, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	return &Ingester{
		opts:     opts,
		ref:      ref,
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build ingests the global feed, checks its structure, merges the national
// feed and recomputes every aggregate. Any error leaves no usable world.
func (i *Ingester) Build(ctx context.Context) (*domain.World, error) {
	start := time.Now()
	w := domain.NewWorld("World")

	rows, err := i.IngestGlobal(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := CheckStructure(w, rows); err != nil {
		return nil, err
	}
	i.logger.Info("structure check passed", "rows", rows)

	if err := i.IngestNational(ctx, w); err != nil {
		return nil, err
	}
	if err := w.RecomputeAll(ctx, domain.Measures, i.opts.Workers); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	i.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	i.logger.Info("world built",
		"countries", w.NumChildren(),
		"days", w.Len(),
		"duration", time.Since(start),
	)
	return w, nil
}
