package httptransport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
)

const maxBodyBytes = 4 << 20

type bundleEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

type bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Entry        []bundleEntry `json:"entry,omitempty"`
}

// readResource parses the request body as a resource of type rt.
func readResource(r *http.Request, rt fhir.ResourceType) (*fhir.Resource, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "read request body")
	}
	res, err := fhir.Parse(body)
	if err != nil {
		return nil, err
	}
	if res.Type != rt {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("resourceType %s does not match endpoint %s", res.Type, rt))
	}
	return res, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.resourceType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	op := operationFor(r, rt, "", "")

	var stored *fhir.Resource
	res, err := readResource(r, rt)
	if err == nil {
		stored, err = h.store.Create(ctx, res)
		if err != nil {
			err = storeError(err, rt, "")
		} else {
			h.anchorChanged(ctx, rt)
		}
		op.Payload = stored
	}

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		w.Header().Set("Location", stored.Reference().String())
		writeResource(w, http.StatusCreated, stored)
	})
}

// handleSearch lists every resource of a type. A subject parameter narrows
// the result to resources whose subject matches it.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.resourceType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	op := operationFor(r, rt, "", "")

	all, err := h.store.SearchAll(ctx, rt)
	if err != nil {
		err = storeError(err, rt, "")
	}
	subject := op.QueryParam("subject")

	out := bundle{ResourceType: "Bundle", Type: "searchset"}
	for _, res := range all {
		if subject != "" {
			env, envErr := res.Envelope()
			if envErr != nil || env.Subject == nil || env.Subject.String() != subject {
				continue
			}
		}
		out.Entry = append(out.Entry, bundleEntry{FullURL: res.Reference().String(), Resource: res.Body})
	}
	out.Total = len(out.Entry)

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", fhirJSON)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	})
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.resourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	op := operationFor(r, rt, id, "")

	res, err := h.store.Read(r.Context(), rt, id)
	if err != nil {
		err = storeError(err, rt, id)
	}
	op.Payload = res

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		writeResource(w, http.StatusOK, res)
	})
}

// handleUpdate upserts the resource under the id in the path.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.resourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	op := operationFor(r, rt, id, "")

	var (
		stored  *fhir.Resource
		created bool
	)
	res, err := readResource(r, rt)
	if err == nil && res.ID != "" && res.ID != id {
		err = dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("body id %q does not match path id %q", res.ID, id))
	}
	if err == nil {
		res.ID = id
		stored, created, err = h.store.Update(r.Context(), res)
		if err != nil {
			err = storeError(err, rt, id)
		} else {
			h.anchorChanged(r.Context(), rt)
		}
		op.Payload = stored
	}

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		status := http.StatusOK
		if created {
			status = http.StatusCreated
			w.Header().Set("Location", stored.Reference().String())
		}
		writeResource(w, status, stored)
	})
}

// handleDelete reads the resource before deleting it so the audit record can
// resolve its case and subject.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.resourceType(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	op := operationFor(r, rt, id, "")

	existing, err := h.store.Read(ctx, rt, id)
	if err == nil {
		op.Payload = existing
		err = h.store.Delete(ctx, rt, id)
	}
	if err != nil {
		err = storeError(err, rt, id)
	} else {
		h.anchorChanged(ctx, rt)
	}

	h.complete(w, r, op, err, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusNoContent)
	})
}
