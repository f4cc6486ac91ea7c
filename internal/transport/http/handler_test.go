package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
	"fhiraudit/internal/mining"
	"fhiraudit/internal/transport/http/mocks"
	dErrors "fhiraudit/pkg/domain-errors"
	"fhiraudit/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/transport-mocks.go -package=mocks ResourceStore,AuditHook,Exporter,AnchorCache
type HandlerSuite struct {
	suite.Suite
	store    *mocks.MockResourceStore
	hook     *mocks.MockAuditHook
	exporter *mocks.MockExporter
	anchors  *mocks.MockAnchorCache
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.store = mocks.NewMockResourceStore(ctrl)
	s.hook = mocks.NewMockAuditHook(ctrl)
	s.exporter = mocks.NewMockExporter(ctrl)
	s.anchors = mocks.NewMockAnchorCache(ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.store, s.hook, s.exporter, logger, WithAnchorCache(s.anchors)).Register(s.router)
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, target, reader))
	return w
}

// expectHook captures the operation and outcome handed to the audit hook.
func (s *HandlerSuite) expectHook(hookErr error) (*audit.OperationContext, *audit.Outcome) {
	var (
		op      audit.OperationContext
		outcome audit.Outcome
	)
	s.hook.EXPECT().OnOperationComplete(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, o audit.OperationContext, out audit.Outcome) (audit.Record, error) {
			op, outcome = o, out
			return audit.Record{}, hookErr
		})
	return &op, &outcome
}

func media(id string) *fhir.Resource {
	return &fhir.Resource{
		Type: fhir.TypeMedia,
		ID:   id,
		Body: json.RawMessage(`{"resourceType":"Media","id":"` + id + `","subject":{"reference":"Patient/p1"},"encounter":{"reference":"Encounter/e1"}}`),
	}
}

func (s *HandlerSuite) errorCode(w *httptest.ResponseRecorder) string {
	var body map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func (s *HandlerSuite) TestRead() {
	s.Run("success reports payload to the hook", func() {
		res := media("m1")
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeMedia, "m1").Return(res, nil)
		op, outcome := s.expectHook(nil)

		w := s.do(http.MethodGet, "/Media/m1?_format=json", "")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(fhirJSON, w.Header().Get("Content-Type"))
		s.JSONEq(string(res.Body), w.Body.String())
		s.True(outcome.Success)
		s.Equal(fhir.TypeMedia, op.ResourceType)
		s.Equal("m1", op.ResourceID)
		s.Equal(http.MethodGet, op.Method)
		s.Equal("Media/m1", op.Path)
		s.Equal("_format=json", op.RawQuery)
		s.Empty(op.Operation)
		s.Same(res, op.Payload)
	})

	s.Run("not found is audited as a failure", func() {
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeMedia, "missing").Return(nil, sentinel.ErrNotFound)
		_, outcome := s.expectHook(nil)

		w := s.do(http.MethodGet, "/Media/missing", "")

		s.Equal(http.StatusNotFound, w.Code)
		s.Equal("not_found", s.errorCode(w))
		s.False(outcome.Success)
		s.Contains(outcome.Message, "Media/missing not found")
	})

	s.Run("fatal hook error replaces the response", func() {
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeMedia, "m1").Return(media("m1"), nil)
		s.expectHook(dErrors.New(dErrors.CodeMissingAnchor, "no Device anchor"))

		w := s.do(http.MethodGet, "/Media/m1", "")

		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("missing_anchor", s.errorCode(w))
	})
}

func (s *HandlerSuite) TestUnknownTypeIsNotAudited() {
	w := s.do(http.MethodGet, "/Observation/1", "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.errorCode(w))
}

func (s *HandlerSuite) TestCreate() {
	s.Run("stores and returns location", func() {
		stored := media("new-id")
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, res *fhir.Resource) (*fhir.Resource, error) {
				s.Equal(fhir.TypeMedia, res.Type)
				return stored, nil
			})
		op, outcome := s.expectHook(nil)

		w := s.do(http.MethodPost, "/Media", `{"resourceType":"Media","encounter":{"reference":"Encounter/e1"}}`)

		s.Equal(http.StatusCreated, w.Code)
		s.Equal("Media/new-id", w.Header().Get("Location"))
		s.True(outcome.Success)
		s.Equal(http.MethodPost, op.Method)
		s.Empty(op.ResourceID)
		s.Equal("Media", op.Path)
		s.Same(stored, op.Payload)
	})

	s.Run("mismatched resourceType is a bad request", func() {
		op, outcome := s.expectHook(nil)

		w := s.do(http.MethodPost, "/Media", `{"resourceType":"Procedure"}`)

		s.Equal(http.StatusBadRequest, w.Code)
		s.False(outcome.Success)
		s.Nil(op.Payload)
	})

	s.Run("invalid json is a bad request", func() {
		s.expectHook(nil)
		w := s.do(http.MethodPost, "/Media", `{not json`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("store failure hides details", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full"))
		s.expectHook(nil)

		w := s.do(http.MethodPost, "/Media", `{"resourceType":"Media"}`)

		s.Equal(http.StatusInternalServerError, w.Code)
		s.NotContains(w.Body.String(), "disk full")
	})
}

func (s *HandlerSuite) TestUpdate() {
	s.Run("creates when absent", func() {
		stored := media("m2")
		s.store.EXPECT().Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, res *fhir.Resource) (*fhir.Resource, bool, error) {
				s.Equal("m2", res.ID)
				return stored, true, nil
			})
		op, _ := s.expectHook(nil)

		w := s.do(http.MethodPut, "/Media/m2", `{"resourceType":"Media"}`)

		s.Equal(http.StatusCreated, w.Code)
		s.Equal("Media/m2", w.Header().Get("Location"))
		s.Equal(http.MethodPut, op.Method)
		s.Same(stored, op.Payload)
	})

	s.Run("replaces when present", func() {
		s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(media("m2"), false, nil)
		s.expectHook(nil)

		w := s.do(http.MethodPut, "/Media/m2", `{"resourceType":"Media","id":"m2"}`)

		s.Equal(http.StatusOK, w.Code)
		s.Empty(w.Header().Get("Location"))
	})

	s.Run("body id must match path", func() {
		_, outcome := s.expectHook(nil)

		w := s.do(http.MethodPut, "/Media/m2", `{"resourceType":"Media","id":"other"}`)

		s.Equal(http.StatusBadRequest, w.Code)
		s.False(outcome.Success)
	})
}

func (s *HandlerSuite) TestDeleteReadsPayloadFirst() {
	res := media("m3")
	gomock.InOrder(
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeMedia, "m3").Return(res, nil),
		s.store.EXPECT().Delete(gomock.Any(), fhir.TypeMedia, "m3").Return(nil),
	)
	op, outcome := s.expectHook(nil)

	w := s.do(http.MethodDelete, "/Media/m3", "")

	s.Equal(http.StatusNoContent, w.Code)
	s.True(outcome.Success)
	s.Equal(http.MethodDelete, op.Method)
	s.Same(res, op.Payload)
}

func (s *HandlerSuite) TestAnchorWritesInvalidateCache() {
	plan := &fhir.Resource{
		Type: fhir.TypePlanDefinition,
		ID:   "rad-wf",
		Body: json.RawMessage(`{"resourceType":"PlanDefinition","id":"rad-wf","status":"active"}`),
	}

	s.Run("deleting the workflow drops cached anchors before the hook", func() {
		gomock.InOrder(
			s.store.EXPECT().Read(gomock.Any(), fhir.TypePlanDefinition, "rad-wf").Return(plan, nil),
			s.store.EXPECT().Delete(gomock.Any(), fhir.TypePlanDefinition, "rad-wf").Return(nil),
			s.anchors.EXPECT().Invalidate(gomock.Any()).Return(nil),
			s.hook.EXPECT().OnOperationComplete(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(audit.Record{}, dErrors.New(dErrors.CodeMissingAnchor, "no PlanDefinition anchor resource exists")),
		)

		w := s.do(http.MethodDelete, "/PlanDefinition/rad-wf", "")

		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("missing_anchor", s.errorCode(w))
	})

	s.Run("creating a device drops cached anchors", func() {
		device := &fhir.Resource{Type: fhir.TypeDevice, ID: "d2", Body: json.RawMessage(`{"resourceType":"Device","id":"d2"}`)}
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(device, nil)
		s.anchors.EXPECT().Invalidate(gomock.Any()).Return(nil)
		s.expectHook(nil)

		w := s.do(http.MethodPost, "/Device", `{"resourceType":"Device"}`)

		s.Equal(http.StatusCreated, w.Code)
	})

	s.Run("updating the workflow drops cached anchors", func() {
		s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(plan, false, nil)
		s.anchors.EXPECT().Invalidate(gomock.Any()).Return(nil)
		s.expectHook(nil)

		w := s.do(http.MethodPut, "/PlanDefinition/rad-wf", string(plan.Body))

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("invalidation failure does not fail the request", func() {
		s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(plan, false, nil)
		s.anchors.EXPECT().Invalidate(gomock.Any()).Return(errors.New("redis down"))
		s.expectHook(nil)

		w := s.do(http.MethodPut, "/PlanDefinition/rad-wf", string(plan.Body))

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("failed anchor delete keeps the cache", func() {
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeDevice, "gone").Return(nil, sentinel.ErrNotFound)
		s.expectHook(nil)

		w := s.do(http.MethodDelete, "/Device/gone", "")

		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("clinical resources leave the cache alone", func() {
		res := media("m9")
		s.store.EXPECT().Read(gomock.Any(), fhir.TypeMedia, "m9").Return(res, nil)
		s.store.EXPECT().Delete(gomock.Any(), fhir.TypeMedia, "m9").Return(nil)
		s.expectHook(nil)

		w := s.do(http.MethodDelete, "/Media/m9", "")

		s.Equal(http.StatusNoContent, w.Code)
	})
}

func (s *HandlerSuite) TestSearch() {
	other := &fhir.Resource{
		Type: fhir.TypeMedia,
		ID:   "m9",
		Body: json.RawMessage(`{"resourceType":"Media","id":"m9","subject":{"reference":"Patient/p2"}}`),
	}
	s.store.EXPECT().SearchAll(gomock.Any(), fhir.TypeMedia).Return([]*fhir.Resource{media("m1"), other}, nil)
	op, _ := s.expectHook(nil)

	w := s.do(http.MethodGet, "/Media?subject=Patient/p1", "")

	s.Require().Equal(http.StatusOK, w.Code)
	var got bundle
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal("searchset", got.Type)
	s.Equal(1, got.Total)
	s.Require().Len(got.Entry, 1)
	s.Equal("Media/m1", got.Entry[0].FullURL)
	s.Equal("subject=Patient/p1", op.RawQuery)
	s.Nil(op.Payload)
}

func (s *HandlerSuite) TestFHIRToCDA() {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		s.Run(method, func() {
			op, outcome := s.expectHook(nil)

			w := s.do(method, "/DiagnosticReport/r1/$fhirToCDA", "")

			s.Equal(http.StatusOK, w.Code)
			s.Equal("<CDA/>", w.Body.String())
			s.True(outcome.Success)
			s.Equal(fhir.TypeDiagnosticReport, op.ResourceType)
			s.Equal("r1", op.ResourceID)
			s.Equal(fhir.OperationFHIRToCDA, op.Operation)
			s.Equal("DiagnosticReport/r1/$fhirToCDA", op.Path)
		})
	}
}

func (s *HandlerSuite) TestExportXES() {
	s.Run("plan by bare id", func() {
		log := &mining.Log{
			Workflow: fhir.NewReference(fhir.TypePlanDefinition, "rad-wf"),
			Traces: []mining.Trace{{
				Case:   fhir.Reference{Reference: "Encounter/e1"},
				Events: []mining.Event{{Label: mining.StepImageAcquisition, Timestamp: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}},
			}},
		}
		s.exporter.EXPECT().Export(gomock.Any(), fhir.NewReference(fhir.TypePlanDefinition, "rad-wf")).Return(log, nil)
		op, outcome := s.expectHook(nil)

		w := s.do(http.MethodGet, "/AuditEvent/$xes?plan=rad-wf", "")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(mining.XESContentType, w.Header().Get("Content-Type"))
		s.Contains(w.Body.String(), `value="Image Acquisition"`)
		s.True(outcome.Success)
		s.Equal(fhir.TypeAuditEvent, op.ResourceType)
		s.Equal(fhir.OperationXES, op.Operation)
	})

	s.Run("default workflow", func() {
		s.exporter.EXPECT().Export(gomock.Any(), fhir.Reference{}).Return(&mining.Log{}, nil)
		s.expectHook(nil)

		w := s.do(http.MethodGet, "/AuditEvent/$xes", "")
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing workflow surfaces", func() {
		s.exporter.EXPECT().Export(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeMissingAnchor, "no PlanDefinition anchor"))
		_, outcome := s.expectHook(nil)

		w := s.do(http.MethodGet, "/AuditEvent/$xes?plan=PlanDefinition/unknown", "")

		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("missing_anchor", s.errorCode(w))
		s.False(outcome.Success)
	})
}

func TestPlanReference(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"rad-wf":                 "PlanDefinition/rad-wf",
		"PlanDefinition/rad-wf":  "PlanDefinition/rad-wf",
		" PlanDefinition/other ": "PlanDefinition/other",
	}
	for in, want := range cases {
		if got := planReference(in).String(); got != want {
			t.Errorf("planReference(%q) = %q, want %q", in, got, want)
		}
	}
}
