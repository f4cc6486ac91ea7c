// Package fanout streams persisted audit records to a message broker.
//
// Fan-out is best-effort: Publish never blocks and never fails the audited
// operation. Records wait in a bounded ring buffer and a background loop
// publishes them in batches. When the broker is unhealthy the circuit
// opens and records stay buffered (oldest dropped first) until it recovers.
package fanout

import (
	"context"
	"log/slog"
	"time"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/platform/kafka"
	"fhiraudit/pkg/platform/circuit"
)

// Producer writes a batch of messages to the broker.
type Producer interface {
	Produce(ctx context.Context, msgs []kafka.Message) error
}

// Publisher buffers records and publishes them from Run.
type Publisher struct {
	producer Producer
	buffer   *RingBuffer
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics

	batchSize     int
	flushInterval time.Duration
	wake          chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer:      producer,
		buffer:        NewRingBuffer(10000),
		breaker:       circuit.New("audit-fanout", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:        slog.Default(),
		batchSize:     100,
		flushInterval: time.Second,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues a persisted record. It never blocks.
func (p *Publisher) Publish(_ context.Context, rec audit.Record) {
	if p.buffer.Enqueue(rec) {
		p.metrics.AddDropped("buffer_full", 1)
	}
	n := p.buffer.Len()
	p.metrics.SetBufferLength(n)
	if n >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run publishes buffered records until ctx is cancelled, then makes one
// last attempt to drain the buffer.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.Flush(drainCtx)
			cancel()
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush publishes buffered records batch by batch and returns how many were
// published. It stops early while the circuit is open.
func (p *Publisher) Flush(ctx context.Context) int {
	published := 0
	for p.buffer.Len() > 0 {
		if !p.breaker.Allow() {
			break
		}
		batch := p.buffer.DequeueBatch(p.batchSize)
		msgs := p.encode(ctx, batch)
		if len(msgs) == 0 {
			continue
		}
		if err := p.producer.Produce(ctx, msgs); err != nil {
			_, change := p.breaker.RecordFailure()
			p.metrics.AddDropped("publish_failed", len(msgs))
			if change.Opened {
				p.metrics.SetCircuitOpen(true)
			}
			p.logger.WarnContext(ctx, "audit fan-out publish failed",
				"records", len(msgs),
				"circuit_open", p.breaker.IsOpen(),
				"error", err,
			)
			break
		}
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.metrics.SetCircuitOpen(false)
			p.logger.InfoContext(ctx, "audit fan-out recovered")
		}
		published += len(msgs)
		p.metrics.AddPublished(len(msgs))
	}
	p.metrics.SetBufferLength(p.buffer.Len())
	return published
}

func (p *Publisher) encode(ctx context.Context, batch []audit.Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, rec := range batch {
		res, err := audit.Encode(rec)
		if err != nil {
			p.metrics.AddDropped("encode_failed", 1)
			p.logger.WarnContext(ctx, "audit fan-out encode failed",
				"record_id", rec.ID,
				"error", err,
			)
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(partitionKey(rec)), Value: res.Body})
	}
	return msgs
}

// partitionKey keeps the records of one case on one partition.
func partitionKey(rec audit.Record) string {
	if rec.HasCase() {
		return rec.Case.String()
	}
	return rec.Entity.String()
}

// Dropped returns how many records were evicted from a full buffer.
func (p *Publisher) Dropped() int64 {
	return p.buffer.Dropped()
}
