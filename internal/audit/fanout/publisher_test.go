package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
	"fhiraudit/internal/platform/kafka"
	"fhiraudit/pkg/platform/circuit"
)

type fakeProducer struct {
	mu      sync.Mutex
	fail    bool
	batches [][]kafka.Message
}

func (f *fakeProducer) Produce(_ context.Context, msgs []kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeProducer) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kafka.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func record(id, caseRef string) audit.Record {
	rec := audit.Record{
		ID:         id,
		Action:     audit.ActionCreate,
		Outcome:    audit.OutcomeSuccess,
		RecordedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Entity:     fhir.NewReference(fhir.TypeProcedure, "p-"+id),
	}
	if caseRef != "" {
		rec.Case = fhir.Reference{Reference: caseRef}
	}
	return rec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlushPublishesInBatches(t *testing.T) {
	producer := &fakeProducer{}
	p := New(producer, WithBatchSize(2), WithLogger(quietLogger()))

	p.Publish(context.Background(), record("1", "Encounter/1"))
	p.Publish(context.Background(), record("2", ""))
	p.Publish(context.Background(), record("3", "Encounter/1"))

	n := p.Flush(context.Background())
	assert.Equal(t, 3, n)
	assert.Len(t, producer.batches, 2)

	msgs := producer.messages()
	assert.Equal(t, "Encounter/1", string(msgs[0].Key))
	assert.Equal(t, "Procedure/p-2", string(msgs[1].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &body))
	assert.Equal(t, "AuditEvent", body["resourceType"])
	assert.Equal(t, "1", body["id"])
}

func TestFlushOpensCircuitOnFailures(t *testing.T) {
	producer := &fakeProducer{fail: true}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	p := New(producer, WithBatchSize(1), WithBreaker(breaker), WithLogger(quietLogger()))

	for i := 0; i < 4; i++ {
		p.Publish(context.Background(), record("r", ""))
	}

	assert.Zero(t, p.Flush(context.Background()))
	assert.False(t, breaker.IsOpen())
	assert.Zero(t, p.Flush(context.Background()))
	assert.True(t, breaker.IsOpen())

	// Open circuit leaves the rest buffered
	assert.Equal(t, 2, p.buffer.Len())
	assert.Zero(t, p.Flush(context.Background()))
	assert.Equal(t, 2, p.buffer.Len())
}

func TestRunDrainsOnShutdown(t *testing.T) {
	producer := &fakeProducer{}
	p := New(producer, WithFlushInterval(time.Hour), WithLogger(quietLogger()))
	p.Publish(context.Background(), record("1", "Encounter/9"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Len(t, producer.messages(), 1)
}
