package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
	"fhiraudit/internal/mining"
	"fhiraudit/internal/platform/middleware"
	dErrors "fhiraudit/pkg/domain-errors"
	"fhiraudit/pkg/platform/httputil"
	"fhiraudit/pkg/platform/sentinel"
)

const fhirJSON = "application/fhir+json"

// ResourceStore is the persistence the host serves resources from.
type ResourceStore interface {
	Create(ctx context.Context, res *fhir.Resource) (*fhir.Resource, error)
	Read(ctx context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error)
	SearchAll(ctx context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error)
	Update(ctx context.Context, res *fhir.Resource) (*fhir.Resource, bool, error)
	Delete(ctx context.Context, rt fhir.ResourceType, id string) error
}

// AuditHook is called once per resource operation, after the operation ran
// and before the response is written. A returned error fails the request.
type AuditHook interface {
	OnOperationComplete(ctx context.Context, op audit.OperationContext, outcome audit.Outcome) (audit.Record, error)
}

// Exporter builds the process-mining event log.
type Exporter interface {
	Export(ctx context.Context, workflow fhir.Reference) (*mining.Log, error)
}

// AnchorCache drops cached anchor references.
type AnchorCache interface {
	Invalidate(ctx context.Context) error
}

// Handler serves FHIR-style resource routes and the custom operations.
type Handler struct {
	store    ResourceStore
	hook     AuditHook
	exporter Exporter
	anchors  AnchorCache
	logger   *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithAnchorCache makes Device and PlanDefinition writes invalidate the
// anchor cache.
func WithAnchorCache(cache AnchorCache) Option {
	return func(h *Handler) {
		h.anchors = cache
	}
}

// New creates a resource Handler.
func New(store ResourceStore, hook AuditHook, exporter Exporter, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		store:    store,
		hook:     hook,
		exporter: exporter,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the resource and operation routes. Static operation
// routes take precedence over the {type}/{id} patterns in chi.
func (h *Handler) Register(r chi.Router) {
	r.Get("/AuditEvent/"+fhir.OperationXES, h.handleExportXES)
	r.Get("/DiagnosticReport/{id}/"+fhir.OperationFHIRToCDA, h.handleFHIRToCDA)
	r.Post("/DiagnosticReport/{id}/"+fhir.OperationFHIRToCDA, h.handleFHIRToCDA)

	r.Post("/{type}", h.handleCreate)
	r.Get("/{type}", h.handleSearch)
	r.Get("/{type}/{id}", h.handleRead)
	r.Put("/{type}/{id}", h.handleUpdate)
	r.Delete("/{type}/{id}", h.handleDelete)
}

// complete runs the audit hook for op and then writes either the operation
// error or the success response. A hook failure replaces both.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request, op audit.OperationContext, opErr error, respond func(http.ResponseWriter)) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	outcome := audit.Succeeded()
	if opErr != nil {
		outcome = audit.Failed(opErr.Error())
	}
	if _, err := h.hook.OnOperationComplete(ctx, op, outcome); err != nil {
		h.logger.ErrorContext(ctx, "operation failed in audit hook",
			"path", op.Path,
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	if opErr != nil {
		if dErrors.CodeOf(opErr) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "resource operation failed",
				"path", op.Path,
				"error", opErr,
				"request_id", requestID,
			)
		}
		httputil.WriteError(w, opErr)
		return
	}
	respond(w)
}

// anchorChanged drops cached anchors after a successful Device or
// PlanDefinition write. It runs before the audit hook, so the hook resolves
// anchors against the store as it is now.
func (h *Handler) anchorChanged(ctx context.Context, rt fhir.ResourceType) {
	if h.anchors == nil || (rt != fhir.TypeDevice && rt != fhir.TypePlanDefinition) {
		return
	}
	if err := h.anchors.Invalidate(ctx); err != nil {
		h.logger.WarnContext(ctx, "anchor cache invalidation failed",
			"resource_type", rt,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

// resourceType reads and checks the {type} URL parameter. Unknown types are
// rejected before any operation runs, so they are not audited.
func (h *Handler) resourceType(w http.ResponseWriter, r *http.Request) (fhir.ResourceType, bool) {
	rt := fhir.ResourceType(chi.URLParam(r, "type"))
	if !rt.Hosted() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown resource type %q", rt)))
		return "", false
	}
	return rt, true
}

func operationFor(r *http.Request, rt fhir.ResourceType, id, operation string) audit.OperationContext {
	return audit.OperationContext{
		ResourceType: rt,
		ResourceID:   id,
		Method:       r.Method,
		Operation:    operation,
		RawQuery:     r.URL.RawQuery,
		Path:         strings.TrimPrefix(r.URL.Path, "/"),
	}
}

// storeError translates store sentinels into coded errors.
func storeError(err error, rt fhir.ResourceType, id string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s/%s not found", rt, id))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s/%s already exists", rt, id))
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "resource store unavailable")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "resource store failure")
}

func writeResource(w http.ResponseWriter, status int, res *fhir.Resource) {
	w.Header().Set("Content-Type", fhirJSON)
	w.WriteHeader(status)
	_, _ = w.Write(res.Body)
}
