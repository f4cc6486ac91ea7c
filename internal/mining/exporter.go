package mining

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
)

// Store lists stored audit records in insertion order.
type Store interface {
	SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error)
}

// Workflows resolves the workflow definition a log is exported for.
type Workflows interface {
	WorkflowByRef(ctx context.Context, ref fhir.Reference) (fhir.Reference, error)
}

// Event is one labelled workflow step.
type Event struct {
	Label     StepLabel
	Timestamp time.Time
	RecordID  string
}

// Trace is the ordered steps of one case.
type Trace struct {
	Case   fhir.Reference
	Events []Event
}

// Log is an exported event log for one workflow definition.
type Log struct {
	Workflow fhir.Reference
	Traces   []Trace
}

// Exporter builds event logs from the audit trail. It only reads.
type Exporter struct {
	store     Store
	workflows Workflows
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

type Option func(*Exporter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

func NewExporter(store Store, workflows Workflows, opts ...Option) *Exporter {
	e := &Exporter{
		store:     store,
		workflows: workflows,
		logger:    slog.Default(),
		tracer:    otel.Tracer("fhiraudit/internal/mining"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export builds the event log for workflow, or for the default workflow
// when workflow is zero. Records not based on the workflow, records without
// a case and records that map to no step are left out, so a case with no
// workflow steps has no trace. Traces appear in the order their first step
// is seen in the audit trail; events within a trace are ordered by
// recordedAt, ties keeping trail order.
func (e *Exporter) Export(ctx context.Context, workflow fhir.Reference) (*Log, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "mining.Export")
	defer span.End()

	var (
		resolved fhir.Reference
		snapshot []*fhir.Resource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := e.workflows.WorkflowByRef(gctx, workflow)
		if err != nil {
			return err
		}
		resolved = ref
		return nil
	})
	g.Go(func() error {
		all, err := e.store.SearchAll(gctx, fhir.TypeAuditEvent)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "list audit records")
		}
		snapshot = all
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	log := e.build(ctx, resolved, snapshot)

	events := 0
	for _, t := range log.Traces {
		events += len(t.Events)
	}
	span.SetAttributes(
		attribute.String("mining.workflow", resolved.String()),
		attribute.Int("mining.records", len(snapshot)),
		attribute.Int("mining.traces", len(log.Traces)),
		attribute.Int("mining.events", events),
	)
	e.metrics.ObserveExport(time.Since(start), len(log.Traces), events)
	e.logger.InfoContext(ctx, "event log exported",
		"workflow", resolved.String(),
		"records", len(snapshot),
		"traces", len(log.Traces),
		"events", events,
	)
	return log, nil
}

func (e *Exporter) build(ctx context.Context, workflow fhir.Reference, snapshot []*fhir.Resource) *Log {
	out := &Log{Workflow: workflow}
	index := make(map[string]int)

	for _, res := range snapshot {
		rec, err := audit.Decode(res)
		if err != nil {
			e.metrics.IncSkipped("undecodable")
			e.logger.WarnContext(ctx, "skipping undecodable audit record",
				"record_id", res.ID,
				"error", err,
			)
			continue
		}
		if rec.BasedOn.String() != workflow.String() {
			continue
		}
		if !rec.HasCase() {
			e.metrics.IncSkipped("no_case")
			continue
		}

		label := StepFor(rec)
		if label == NoLabel {
			e.metrics.IncSkipped("no_label")
			continue
		}

		key := rec.Case.String()
		i, ok := index[key]
		if !ok {
			i = len(out.Traces)
			index[key] = i
			out.Traces = append(out.Traces, Trace{Case: rec.Case})
		}
		out.Traces[i].Events = append(out.Traces[i].Events, Event{
			Label:     label,
			Timestamp: rec.RecordedAt,
			RecordID:  rec.ID,
		})
	}

	for i := range out.Traces {
		events := out.Traces[i].Events
		sort.SliceStable(events, func(a, b int) bool {
			return events[a].Timestamp.Before(events[b].Timestamp)
		})
	}
	return out
}
