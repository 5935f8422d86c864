package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
)

// Builder produces a fully merged and recomputed world.
type Builder interface {
	Build(ctx context.Context) (*domain.World, error)
}

// Loader writes a finished world to a destination.
type Loader interface {
	Load(ctx context.Context, w *domain.World) error
}

// Pipeline orchestrates one batch run: build the world, then hand it to
// every loader in order.
type Pipeline struct {
	builder Builder
	loaders []Loader
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	world   atomic.Pointer[domain.World]
}

// New creates a Pipeline with the given stages and observability.
func New(b Builder, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		builder: b,
		loaders: loaders,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a world has been built and loaded, or an
// error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("world has not been built yet")
	}
	return nil
}

// World returns the last successfully loaded world, or nil.
func (p *Pipeline) World() *domain.World {
	return p.world.Load()
}

// Run builds the world and loads it into every sink. The first error stops
// the run and the world is not published.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "loaders", len(p.loaders))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := time.Now()
	w, err := p.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}

	areas := 0
	_ = domain.Walk(&w.Area, func(*domain.Area) error {
		areas++
		return nil
	})
	p.metrics.Areas.Set(float64(areas))

	for _, l := range p.loaders {
		if err := l.Load(ctx, w); err != nil {
			return fmt.Errorf("load world: %w", err)
		}
	}

	p.world.Store(w)
	p.ready.Store(true)
	p.logger.Info("pipeline finished", "areas", areas, "duration", time.Since(start))
	return nil
}
