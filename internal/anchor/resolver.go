// Package anchor locates the two well-known resources every audit record
// points at: the Device that observed it and the PlanDefinition of the
// audited workflow.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
	"fhiraudit/pkg/platform/sentinel"
)

// Kind names an anchor. Values are the anchor's resource type.
type Kind = fhir.ResourceType

const (
	KindDevice   Kind = fhir.TypeDevice
	KindWorkflow Kind = fhir.TypePlanDefinition
)

// Store is the resource access the resolver needs.
type Store interface {
	SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error)
	Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error)
}

// Cache holds resolved anchor references. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, kind Kind) (fhir.Reference, bool, error)
	Set(ctx context.Context, kind Kind, ref fhir.Reference) error
	Invalidate(ctx context.Context) error
}

// Resolver looks anchors up in the store, caching the result. Without a
// cache every call re-queries the store. A cached reference is confirmed
// with a point read before it is returned, so a deleted anchor is never
// handed out; the cache only saves the search.
type Resolver struct {
	store      Store
	cache      Cache
	logger     *slog.Logger
	workflowID string
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithCache sets the anchor cache.
func WithCache(cache Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithWorkflowID pins the default workflow to a PlanDefinition id instead
// of the first one stored.
func WithWorkflowID(id string) Option {
	return func(r *Resolver) {
		r.workflowID = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Device returns the reference of the observing device.
func (r *Resolver) Device(ctx context.Context) (fhir.Reference, error) {
	return r.lookup(ctx, KindDevice)
}

// Workflow returns the reference of the default workflow definition.
func (r *Resolver) Workflow(ctx context.Context) (fhir.Reference, error) {
	return r.lookup(ctx, KindWorkflow)
}

// WorkflowByRef checks that a caller-chosen workflow definition exists. A
// zero reference selects the default workflow.
func (r *Resolver) WorkflowByRef(ctx context.Context, ref fhir.Reference) (fhir.Reference, error) {
	if ref.IsZero() {
		return r.Workflow(ctx)
	}
	if ref.ResourceType() != fhir.TypePlanDefinition || ref.ID() == "" {
		return fhir.Reference{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%q is not a PlanDefinition reference", ref.String()))
	}
	res, err := r.store.Read(ctx, fhir.TypePlanDefinition, ref.ID())
	if errors.Is(err, sentinel.ErrNotFound) {
		return fhir.Reference{}, dErrors.New(dErrors.CodeMissingAnchor, fmt.Sprintf("workflow definition %s not found", ref.String()))
	}
	if err != nil {
		return fhir.Reference{}, dErrors.Wrap(err, dErrors.CodeInternal, "read workflow definition")
	}
	return res.Reference(), nil
}

// Invalidate drops cached anchors so the next lookup re-queries the store.
func (r *Resolver) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx)
}

func (r *Resolver) lookup(ctx context.Context, kind Kind) (fhir.Reference, error) {
	if r.cache != nil {
		ref, ok, err := r.cache.Get(ctx, kind)
		if err != nil {
			r.logger.WarnContext(ctx, "anchor cache read failed",
				"kind", kind,
				"error", err,
			)
		} else if ok {
			exists, err := r.exists(ctx, ref)
			if err != nil {
				return fhir.Reference{}, err
			}
			if exists {
				return ref, nil
			}
			r.logger.WarnContext(ctx, "cached anchor no longer exists",
				"kind", kind,
				"ref", ref.String(),
			)
			if err := r.cache.Invalidate(ctx); err != nil {
				r.logger.WarnContext(ctx, "anchor cache invalidation failed",
					"kind", kind,
					"error", err,
				)
			}
		}
	}

	ref, err := r.find(ctx, kind)
	if err != nil {
		return fhir.Reference{}, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, kind, ref); err != nil {
			r.logger.WarnContext(ctx, "anchor cache write failed",
				"kind", kind,
				"error", err,
			)
		}
	}
	return ref, nil
}

func (r *Resolver) exists(ctx context.Context, ref fhir.Reference) (bool, error) {
	_, err := r.store.Read(ctx, ref.ResourceType(), ref.ID())
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("read %s anchor", ref.ResourceType()))
	}
	return true, nil
}

func (r *Resolver) find(ctx context.Context, kind Kind) (fhir.Reference, error) {
	if kind == KindWorkflow && r.workflowID != "" {
		res, err := r.store.Read(ctx, kind, r.workflowID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fhir.Reference{}, r.missing(ctx, kind)
		}
		if err != nil {
			return fhir.Reference{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("read %s anchor", kind))
		}
		return res.Reference(), nil
	}

	all, err := r.store.SearchAll(ctx, kind)
	if err != nil {
		return fhir.Reference{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("search %s anchor", kind))
	}
	if len(all) == 0 {
		return fhir.Reference{}, r.missing(ctx, kind)
	}
	return all[0].Reference(), nil
}

func (r *Resolver) missing(ctx context.Context, kind Kind) error {
	r.logger.ErrorContext(ctx, "anchor missing, bootstrap has not run",
		"kind", kind,
	)
	return dErrors.New(dErrors.CodeMissingAnchor, fmt.Sprintf("no %s anchor resource exists", kind))
}
