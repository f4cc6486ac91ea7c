package httptransport

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fhiraudit/internal/fhir"
	"fhiraudit/internal/mining"
	dErrors "fhiraudit/pkg/domain-errors"
)

// cdaPlaceholder is returned by $fhirToCDA, which converts nothing.
var cdaPlaceholder = []byte("<CDA/>")

// handleFHIRToCDA answers the report transmission operation. It exists as
// an extension point and only marks the step in the audit trail.
func (h *Handler) handleFHIRToCDA(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op := operationFor(r, fhir.TypeDiagnosticReport, id, fhir.OperationFHIRToCDA)

	h.complete(w, r, op, nil, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cdaPlaceholder)
	})
}

// handleExportXES renders the event log of a workflow definition. The plan
// parameter takes "PlanDefinition/{id}" or a bare id; without it the
// default workflow is exported.
func (h *Handler) handleExportXES(w http.ResponseWriter, r *http.Request) {
	op := operationFor(r, fhir.TypeAuditEvent, "", fhir.OperationXES)
	workflow := planReference(op.QueryParam("plan"))

	var buf bytes.Buffer
	eventLog, err := h.exporter.Export(r.Context(), workflow)
	if err == nil {
		if err = eventLog.WriteXES(&buf); err != nil {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "render event log")
		}
	}

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", mining.XESContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="audit.xes"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	})
}

func planReference(plan string) fhir.Reference {
	plan = strings.TrimSpace(plan)
	switch {
	case plan == "":
		return fhir.Reference{}
	case strings.Contains(plan, "/"):
		return fhir.Reference{Reference: plan}
	default:
		return fhir.NewReference(fhir.TypePlanDefinition, plan)
	}
}
