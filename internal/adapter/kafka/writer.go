package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/episeries-etl/internal/config"
	"github.com/couchcryptid/episeries-etl/internal/domain"
	"github.com/couchcryptid/episeries-etl/internal/observability"
)

const (
	maxAttempts    = 4
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// AreaRecord is the message value published for each area.
type AreaRecord struct {
	Key    string             `json:"key"`
	Name   string             `json:"name"`
	Level  int                `json:"level"`
	Parent string             `json:"parent,omitempty"`
	Place  domain.Place       `json:"place"`
	Codes  domain.Codes       `json:"codes"`
	Start  string             `json:"start"`
	Series map[string][]int64 `json:"series"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes one message per area to a Kafka topic, keyed by area key.
// It implements pipeline.Loader.
type Writer struct {
	writer    messageWriter
	batchSize int
	backoff   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, cfg.KafkaBatchSize, logger, metrics)
}

func newWriter(mw messageWriter, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		writer:    mw,
		batchSize: max(1, batchSize),
		backoff:   initialBackoff,
		logger:    logger,
		metrics:   metrics,
	}
}

// Load walks the world and publishes every area in batches.
func (w *Writer) Load(ctx context.Context, world *domain.World) error {
	start := world.Start()
	batch := make([]kafkago.Message, 0, w.batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.publish(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		w.metrics.ExportRecords.WithLabelValues("kafka").Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	err := domain.Walk(&world.Area, func(a *domain.Area) error {
		msg, err := serializeToMessage(newAreaRecord(a, start))
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) >= w.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	w.logger.Info("areas published", "messages", total)
	return nil
}

// publish writes msgs, retrying with exponential backoff.
func (w *Writer) publish(ctx context.Context, msgs []kafkago.Message) error {
	backoff := w.backoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		w.logger.Warn("kafka write failed, retrying",
			"attempt", attempt, "messages", len(msgs), "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("publish %d messages: %w", len(msgs), err)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func newAreaRecord(a *domain.Area, start time.Time) AreaRecord {
	r := AreaRecord{
		Key:    a.Key(),
		Name:   a.Name(),
		Level:  a.Level(),
		Place:  a.Place(),
		Codes:  a.Codes(),
		Start:  start.Format(time.DateOnly),
		Series: make(map[string][]int64, len(domain.Measures)),
	}
	if p := a.Parent(); p != nil {
		r.Parent = p.Key()
	}
	for _, l := range domain.Measures {
		r.Series[l], _ = a.Aggregate(l, domain.AggregateOptions{})
	}
	return r
}

// serializeToMessage marshals an AreaRecord into a Kafka message.
func serializeToMessage(r AreaRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize area %q: %w", r.Key, err)
	}
	return kafkago.Message{
		Key:   []byte(r.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "level", Value: []byte(fmt.Sprint(r.Level))},
			{Key: "published_at", Value: []byte(domain.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
