package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
)

// ErrCaseUnresolved is returned when a resource type that carries a case
// has no usable case reference. Synthesis continues without a case.
var ErrCaseUnresolved = errors.New("case reference unresolved")

// caseShape says where a resource type keeps its case reference.
type caseShape int

const (
	// noCaseRef types never belong to a case.
	noCaseRef caseShape = iota
	// directCaseRef types point at the encounter themselves.
	directCaseRef
	// extensionCaseRef types carry the encounter in an extension.
	extensionCaseRef
	// storedCaseRef resolves by re-reading the stored instance.
	storedCaseRef
)

// casePolicy is the resolution table. Supporting a new resource type is a
// new row here.
var casePolicy = map[fhir.ResourceType]caseShape{
	fhir.TypeAuditEvent:       noCaseRef,
	fhir.TypePatient:          noCaseRef,
	fhir.TypeEncounter:        noCaseRef,
	fhir.TypeAppointment:      extensionCaseRef,
	fhir.TypeProcedure:        directCaseRef,
	fhir.TypeMedia:            directCaseRef,
	fhir.TypeDiagnosticReport: directCaseRef,
}

type operationKey struct {
	ResourceType fhir.ResourceType
	Operation    string
}

// operationCasePolicy overrides casePolicy for custom operations, which
// carry no payload.
var operationCasePolicy = map[operationKey]caseShape{
	{fhir.TypeDiagnosticReport, fhir.OperationFHIRToCDA}: storedCaseRef,
}

// ResourceReader reads a single stored resource.
type ResourceReader interface {
	Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error)
}

// CaseResolver finds the case (encounter) an operation belongs to.
type CaseResolver struct {
	store  ResourceReader
	logger *slog.Logger
}

// NewCaseResolver builds a resolver that reads stored instances from store.
func NewCaseResolver(store ResourceReader, logger *slog.Logger) *CaseResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseResolver{store: store, logger: logger}
}

// Supports reports whether a resource type has a row in the policy table.
func Supports(rt fhir.ResourceType) bool {
	_, ok := casePolicy[rt]
	return ok
}

// Resolve returns the case reference for op. applicable is false for
// resource types that never carry a case. Unknown resource types fail with
// CodeUnsupportedResourceType; a missing reference fails with
// ErrCaseUnresolved.
func (r *CaseResolver) Resolve(ctx context.Context, op OperationContext) (ref fhir.Reference, applicable bool, err error) {
	shape, ok := operationCasePolicy[operationKey{op.ResourceType, op.Operation}]
	if !ok {
		shape, ok = casePolicy[op.ResourceType]
	}
	if !ok {
		r.logger.WarnContext(ctx, "case resolution: unsupported resource type",
			"resource_type", op.ResourceType,
			"path", op.Path,
		)
		return fhir.Reference{}, false, dErrors.New(dErrors.CodeUnsupportedResourceType,
			fmt.Sprintf("no case policy for resource type %s", op.ResourceType))
	}

	switch shape {
	case noCaseRef:
		r.logger.DebugContext(ctx, "case resolution: not applicable",
			"resource_type", op.ResourceType,
		)
		return fhir.Reference{}, false, nil
	case directCaseRef:
		ref, err = fromEncounter(op.Payload)
	case extensionCaseRef:
		ref, err = fromExtension(op.Payload, fhir.ExtensionAppointmentEncounter)
	case storedCaseRef:
		ref, err = r.fromStore(ctx, op)
	}
	if err != nil {
		return fhir.Reference{}, true, err
	}
	return ref, true, nil
}

func fromEncounter(payload *fhir.Resource) (fhir.Reference, error) {
	if payload == nil {
		return fhir.Reference{}, fmt.Errorf("no payload: %w", ErrCaseUnresolved)
	}
	env, err := payload.Envelope()
	if err != nil {
		return fhir.Reference{}, fmt.Errorf("%v: %w", err, ErrCaseUnresolved)
	}
	ref, ok := env.EncounterRef()
	if !ok {
		return fhir.Reference{}, fmt.Errorf("%s has no encounter: %w", payload.Type, ErrCaseUnresolved)
	}
	return ref, nil
}

func fromExtension(payload *fhir.Resource, url string) (fhir.Reference, error) {
	if payload == nil {
		return fhir.Reference{}, fmt.Errorf("no payload: %w", ErrCaseUnresolved)
	}
	env, err := payload.Envelope()
	if err != nil {
		return fhir.Reference{}, fmt.Errorf("%v: %w", err, ErrCaseUnresolved)
	}
	ext, ok := fhir.FindExtension(env.Extension, url)
	if !ok || ext.ValueReference == nil || ext.ValueReference.IsZero() {
		return fhir.Reference{}, fmt.Errorf("%s has no encounter extension: %w", payload.Type, ErrCaseUnresolved)
	}
	return *ext.ValueReference, nil
}

func (r *CaseResolver) fromStore(ctx context.Context, op OperationContext) (fhir.Reference, error) {
	if op.ResourceID == "" {
		return fhir.Reference{}, fmt.Errorf("%s has no instance id: %w", op.Path, ErrCaseUnresolved)
	}
	res, err := r.store.Read(ctx, op.ResourceType, op.ResourceID)
	if err != nil {
		return fhir.Reference{}, fmt.Errorf("read %s/%s: %v: %w", op.ResourceType, op.ResourceID, err, ErrCaseUnresolved)
	}
	return fromEncounter(res)
}
