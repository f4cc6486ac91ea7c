package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fhiraudit/internal/audit/metrics"
	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
	"fhiraudit/pkg/requestcontext"
)

// Store persists audit records and reads the instances case resolution
// needs.
type Store interface {
	Create(ctx context.Context, res *fhir.Resource) (*fhir.Resource, error)
	Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error)
}

// Anchors resolves the device and workflow every record references.
type Anchors interface {
	Device(ctx context.Context) (fhir.Reference, error)
	Workflow(ctx context.Context) (fhir.Reference, error)
}

// Sink receives persisted records for best-effort fan-out. Publish must not
// block the caller.
type Sink interface {
	Publish(ctx context.Context, rec Record)
}

// Service synthesizes exactly one audit record per completed operation.
// Persistence is synchronous and fail-closed: when the record cannot be
// written the audited operation fails.
type Service struct {
	store   Store
	anchors Anchors
	cases   *CaseResolver
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSink sets the fan-out sink for persisted records.
func WithSink(sink Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithClock overrides the clock stamping recordedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, anchors Anchors, opts ...Option) *Service {
	s := &Service{
		store:   store,
		anchors: anchors,
		logger:  slog.Default(),
		tracer:  otel.Tracer("fhiraudit/internal/audit"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cases = NewCaseResolver(store, s.logger)
	return s
}

// OnOperationComplete builds and persists the audit record for op. Errors
// returned here are fatal and must fail the audited operation: unknown
// verbs, missing anchors, and persistence failures. Case and subject
// resolution problems are logged and the record is stored without them.
func (s *Service) OnOperationComplete(ctx context.Context, op OperationContext, outcome Outcome) (Record, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "audit.OnOperationComplete", trace.WithAttributes(
		attribute.String("fhir.resource_type", string(op.ResourceType)),
		attribute.String("http.method", op.Method),
		attribute.String("fhir.operation", op.Operation),
	))
	defer span.End()

	rec, err := s.synthesize(ctx, op, outcome)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncFatalFailure(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		s.logger.ErrorContext(ctx, "audit record synthesis failed",
			"resource_type", op.ResourceType,
			"path", op.Path,
			"code", code,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return Record{}, err
	}

	s.metrics.IncRecordCreated(rec.Action.Name(), string(rec.Outcome))
	s.metrics.ObserveSynthesizeLatency(time.Since(start))
	span.SetAttributes(attribute.String("audit.record_id", rec.ID))
	if s.sink != nil {
		s.sink.Publish(ctx, rec)
	}
	return rec, nil
}

func (s *Service) synthesize(ctx context.Context, op OperationContext, outcome Outcome) (Record, error) {
	action, err := Classify(op)
	if err != nil {
		return Record{}, err
	}

	device, err := s.anchors.Device(ctx)
	if err != nil {
		return Record{}, err
	}
	workflow, err := s.anchors.Workflow(ctx)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Type:         EventTypeFor(op.ResourceType),
		Action:       action,
		Outcome:      OutcomeSuccess,
		Entity:       entityFor(op),
		EntityDetail: op.Path,
		BasedOn:      workflow,
		Source:       device,
		Requestor:    requestorAgent(ctx),
	}
	if op.RawQuery != "" {
		rec.QueryFragment = []byte(op.RawQuery)
	}
	if !outcome.Success {
		rec.Outcome = OutcomeMinorFailure
		rec.OutcomeDesc = outcome.Message
	}

	rec.Case = s.resolveCase(ctx, op)

	subject, err := resolveSubject(op)
	if err != nil {
		s.logger.DebugContext(ctx, "audit subject unresolved",
			"resource_type", op.ResourceType,
			"path", op.Path,
		)
	}
	rec.Subject = subject

	// Stamped last so recordedAt order matches persistence order.
	rec.RecordedAt = s.now().UTC()
	res, err := Encode(rec)
	if err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode audit record")
	}
	stored, err := s.store.Create(ctx, res)
	if err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist audit record")
	}
	rec.ID = stored.ID
	return rec, nil
}

// resolveCase never fails synthesis; every problem is logged and the
// record is stored without a case.
func (s *Service) resolveCase(ctx context.Context, op OperationContext) fhir.Reference {
	rt := string(op.ResourceType)
	ref, applicable, err := s.cases.Resolve(ctx, op)
	switch {
	case dErrors.HasCode(err, dErrors.CodeUnsupportedResourceType):
		s.metrics.IncCaseResolution(rt, "unsupported")
		return fhir.Reference{}
	case errors.Is(err, ErrCaseUnresolved):
		s.metrics.IncCaseResolution(rt, "unresolved")
		s.logger.WarnContext(ctx, "audit case unresolved",
			"resource_type", op.ResourceType,
			"path", op.Path,
			"error", err,
		)
		return fhir.Reference{}
	case err != nil:
		s.metrics.IncCaseResolution(rt, "unresolved")
		s.logger.WarnContext(ctx, "audit case resolution failed",
			"resource_type", op.ResourceType,
			"error", err,
		)
		return fhir.Reference{}
	case !applicable:
		s.metrics.IncCaseResolution(rt, "not_applicable")
		return fhir.Reference{}
	}
	s.metrics.IncCaseResolution(rt, "resolved")
	return ref
}

func entityFor(op OperationContext) fhir.Reference {
	if op.ResourceID != "" {
		return fhir.NewReference(op.ResourceType, op.ResourceID)
	}
	return fhir.TypeReference(op.ResourceType)
}

// requestorAgent describes the caller from request metadata. It returns nil
// for calls with no identity and no client metadata.
func requestorAgent(ctx context.Context) *Agent {
	requestor := requestcontext.RequestorFrom(ctx)
	ip := requestcontext.ClientIP(ctx)
	ua := requestcontext.UserAgent(ctx)
	if requestor.IsZero() && ip == "" && ua == "" {
		return nil
	}

	agent := &Agent{Requestor: true, Address: ip, Name: describeUserAgent(ua)}
	if requestor.Subject != "" {
		agent.Who = fhir.Reference{Reference: requestor.Subject}
		if requestor.ClientID != "" {
			agent.Who.Display = requestor.ClientID
		}
	}
	return agent
}

func describeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	desc := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		desc = fmt.Sprintf("%s (%s)", desc, os)
	}
	return desc
}
