package httptransport_test

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhiraudit/internal/anchor"
	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
	"fhiraudit/internal/fhir/store"
	jwttoken "fhiraudit/internal/jwt_token"
	"fhiraudit/internal/mining"
	"fhiraudit/internal/platform/metrics"
	httptransport "fhiraudit/internal/transport/http"
	"fhiraudit/pkg/testutil"
)

type host struct {
	store   *store.InMemory
	router  http.Handler
	tokens  *jwttoken.JWTService
	anchors anchor.Anchors
}

func newHost(t *testing.T) *host {
	t.Helper()
	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewInMemory()
	anchors, err := anchor.Bootstrap(ctx, s, anchor.BootstrapConfig{})
	require.NoError(t, err)

	resolver := anchor.NewResolver(s, anchor.WithLogger(logger), anchor.WithCache(anchor.NewMemoryCache(time.Minute)))
	service := audit.NewService(s, resolver, audit.WithLogger(logger))
	exporter := mining.NewExporter(s, resolver, mining.WithLogger(logger))
	tokens := jwttoken.NewJWTService("test-key", "fhiraudit")

	reg := prometheus.NewRegistry()
	handler := httptransport.New(s, service, exporter, logger, httptransport.WithAnchorCache(resolver))
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Logger:       logger,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		JWTValidator: jwttoken.NewJWTServiceAdapter(tokens),
	})
	return &host{store: s, router: router, tokens: tokens, anchors: anchors}
}

func (h *host) send(t *testing.T, method, path, body string) map[string]any {
	t.Helper()
	rr := testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, method, path, body))
	require.Less(t, rr.Code, 300, "%s %s: %s", method, path, rr.Body.String())
	if rr.Body.Len() == 0 || !strings.Contains(rr.Header().Get("Content-Type"), "json") {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func (h *host) records(t *testing.T) []audit.Record {
	t.Helper()
	all, err := h.store.SearchAll(t.Context(), fhir.TypeAuditEvent)
	require.NoError(t, err)
	out := make([]audit.Record, 0, len(all))
	for _, res := range all {
		rec, err := audit.Decode(res)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

type xesLog struct {
	Traces []struct {
		Strings []struct {
			Value string `xml:"value,attr"`
		} `xml:"string"`
		Events []struct {
			Strings []struct {
				Key   string `xml:"key,attr"`
				Value string `xml:"value,attr"`
			} `xml:"string"`
		} `xml:"event"`
	} `xml:"trace"`
}

func TestRadiologyWorkflowExport(t *testing.T) {
	h := newHost(t)
	enc := `{"reference":"Encounter/e1"}`

	testutil.Given(t, "a radiology case worked through the host", func(t *testing.T) {
		appt := h.send(t, http.MethodPost, "/Appointment", `{"resourceType":"Appointment",
			"extension":[{"url":"`+fhir.ExtensionAppointmentEncounter+`","valueReference":`+enc+`}],
			"participant":[{"actor":{"reference":"Patient/p1"}}]}`)
		apptID := appt["id"].(string)
		h.send(t, http.MethodPut, "/Appointment/"+apptID, `{"resourceType":"Appointment","id":"`+apptID+`",
			"extension":[{"url":"`+fhir.ExtensionAppointmentEncounter+`","valueReference":`+enc+`}],
			"status":"arrived"}`)

		media := h.send(t, http.MethodPost, "/Media", `{"resourceType":"Media","subject":{"reference":"Patient/p1"},"encounter":`+enc+`}`)
		h.send(t, http.MethodGet, "/Media/"+media["id"].(string), "")

		h.send(t, http.MethodPost, "/Procedure", `{"resourceType":"Procedure","subject":{"reference":"Patient/p1"},"encounter":`+enc+`}`)
		h.send(t, http.MethodPut, "/DiagnosticReport/r1", `{"resourceType":"DiagnosticReport","subject":{"reference":"Patient/p1"},"encounter":`+enc+`}`)
		h.send(t, http.MethodGet, "/DiagnosticReport/r1", "")
		h.send(t, http.MethodPost, "/DiagnosticReport/r1/$fhirToCDA", "")

		// Off-workflow noise: no case, and a step with no label
		h.send(t, http.MethodGet, "/Patient", "")
		h.send(t, http.MethodDelete, "/Media/"+media["id"].(string), "")
	})

	testutil.Then(t, "every operation left exactly one audit record", func(t *testing.T) {
		recs := h.records(t)
		require.Len(t, recs, 10)
		for _, rec := range recs {
			assert.Equal(t, h.anchors.Workflow, rec.BasedOn)
			assert.Equal(t, h.anchors.Device, rec.Source)
			assert.Equal(t, audit.OutcomeSuccess, rec.Outcome)
		}
		assert.Equal(t, "Encounter/e1", recs[7].Case.String(), "$fhirToCDA resolves its case from the stored report")
		assert.Equal(t, audit.ActionExecute, recs[7].Action)
		assert.False(t, recs[8].HasCase())
	})

	testutil.When(t, "the event log is exported", func(t *testing.T) {
		rr := testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodGet, "/AuditEvent/$xes", ""))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var doc xesLog
		require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &doc))
		require.Len(t, doc.Traces, 1)
		assert.Equal(t, "Encounter/e1", doc.Traces[0].Strings[0].Value)

		var got []string
		for _, ev := range doc.Traces[0].Events {
			got = append(got, ev.Strings[0].Value)
		}
		assert.Equal(t, []string{
			string(mining.StepAppointmentScheduling),
			string(mining.StepPatientAdmission),
			string(mining.StepImageAcquisition),
			string(mining.StepImageReview),
			string(mining.StepReportWriting),
			string(mining.StepReportAttestation),
			string(mining.StepReportReview),
			string(mining.StepReportTransmission),
		}, got)
	})

	testutil.Then(t, "the export itself is audited", func(t *testing.T) {
		recs := h.records(t)
		last := recs[len(recs)-1]
		assert.Equal(t, audit.ActionExecute, last.Action)
		assert.Equal(t, fhir.OperationXES, last.Operation())
	})
}

func TestRequestorFromBearerToken(t *testing.T) {
	h := newHost(t)
	token, err := h.tokens.GenerateAccessToken("Practitioner/7", "ris", time.Hour)
	require.NoError(t, err)

	req := testutil.NewFHIRRequest(t, http.MethodGet, "/Patient", "")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	testutil.AssertStatus(t, testutil.DoRequest(h.router, req), http.StatusOK)

	anon := testutil.NewFHIRRequest(t, http.MethodGet, "/Patient", "")
	anon.Header.Set("Authorization", "Bearer not-a-token")
	testutil.AssertStatus(t, testutil.DoRequest(h.router, anon), http.StatusOK)

	recs := h.records(t)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].Requestor)
	assert.Equal(t, "Practitioner/7", recs[0].Requestor.Who.Reference)
	assert.Equal(t, "ris", recs[0].Requestor.Who.Display)
	require.NotNil(t, recs[1].Requestor, "client metadata still describes the caller")
	assert.True(t, recs[1].Requestor.Who.IsZero())
}

func TestContextRequestorWithoutToken(t *testing.T) {
	h := newHost(t)
	req := testutil.WithRequestor(testutil.NewFHIRRequest(t, http.MethodGet, "/Encounter", ""), "Device/modality-3", "")
	testutil.AssertStatus(t, testutil.DoRequest(h.router, req), http.StatusOK)

	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "Device/modality-3", recs[0].Requestor.Who.Reference)
}

func TestFatalAnchorErrorFailsOperation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewInMemory()
	resolver := anchor.NewResolver(s, anchor.WithLogger(logger))
	router := httptransport.NewRouter(
		httptransport.New(s, audit.NewService(s, resolver, audit.WithLogger(logger)), mining.NewExporter(s, resolver), logger),
		httptransport.RouterConfig{Logger: logger, Gatherer: prometheus.NewRegistry()},
	)

	rr := testutil.DoRequest(router, testutil.NewFHIRRequest(t, http.MethodPost, "/Procedure", `{"resourceType":"Procedure"}`))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "missing_anchor")

	audits, err := s.SearchAll(t.Context(), fhir.TypeAuditEvent)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestDeletedWorkflowAnchorIsNeverServedFromCache(t *testing.T) {
	h := newHost(t)
	// Warms the anchor cache
	h.send(t, http.MethodGet, "/Patient", "")
	require.Len(t, h.records(t), 1)

	rr := testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodDelete, "/"+h.anchors.Workflow.String(), ""))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "missing_anchor")

	_, err := h.store.Read(t.Context(), fhir.TypePlanDefinition, h.anchors.Workflow.ID())
	require.Error(t, err, "the delete itself went through")

	rr = testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodGet, "/AuditEvent/$xes", ""))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "missing_anchor")

	rr = testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodGet, "/Patient", ""))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "missing_anchor")

	recs := h.records(t)
	require.Len(t, recs, 1, "no record references the deleted workflow")
	assert.Equal(t, h.anchors.Workflow.String(), recs[0].BasedOn.String())
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHost(t)
	h.send(t, http.MethodGet, "/Patient", "")

	health := testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodGet, "/health", ""))
	testutil.AssertStatus(t, health, http.StatusOK)
	body := testutil.UnmarshalResponse[map[string]any](t, health)
	assert.Equal(t, "ok", (*body)["status"])

	m := testutil.DoRequest(h.router, testutil.NewFHIRRequest(t, http.MethodGet, "/metrics", ""))
	testutil.AssertStatus(t, m, http.StatusOK)
	assert.Contains(t, m.Body.String(), `fhiraudit_http_requests_total{method="GET",route="/{type}",status="200"} 1`)
}
