package workflow

import (
	"context"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

const appointmentEncounterURL = "http://aist.fh-hagenberg.at/fhir/extensions/appointment-encounter-extension"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, body string) error
	LastStatus() int
	LastBody() []byte
	CaseRef() string
	RememberCreated(rt string) error
	Created(rt string) (string, bool)
}

// RegisterSteps registers radiology workflow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	ctx.Step(`^I schedule an appointment for the case$`, steps.scheduleAppointment)
	ctx.Step(`^the patient is admitted$`, steps.admitPatient)
	ctx.Step(`^I create a "(Media|Procedure)" for the case$`, steps.createForCase)
	ctx.Step(`^I read the "(Media|Procedure)"$`, steps.readCreated)
	ctx.Step(`^I attest report "([^"]*)" for the case$`, steps.attestReport)
	ctx.Step(`^I read report "([^"]*)"$`, steps.readReport)
	ctx.Step(`^I transmit report "([^"]*)"$`, steps.transmitReport)
	ctx.Step(`^I export the event log$`, steps.exportLog)
	ctx.Step(`^the case trace should have steps "([^"]*)"$`, steps.caseTraceShouldHave)
	ctx.Step(`^the case should have no trace$`, steps.caseShouldHaveNoTrace)
}

type workflowSteps struct {
	tc TestContext
}

func (s *workflowSteps) expectOK() error {
	if s.tc.LastStatus() >= 300 {
		return fmt.Errorf("unexpected status %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *workflowSteps) appointmentBody(id, status string) string {
	idField := ""
	if id != "" {
		idField = fmt.Sprintf(`"id":%q,`, id)
	}
	return fmt.Sprintf(`{"resourceType":"Appointment",%s"status":%q,
		"extension":[{"url":%q,"valueReference":{"reference":%q}}],
		"participant":[{"actor":{"reference":"Patient/e2e"}}]}`,
		idField, status, appointmentEncounterURL, s.tc.CaseRef())
}

func (s *workflowSteps) scheduleAppointment(context.Context) error {
	if err := s.tc.Do("POST", "/Appointment", s.appointmentBody("", "booked")); err != nil {
		return err
	}
	if err := s.expectOK(); err != nil {
		return err
	}
	return s.tc.RememberCreated("Appointment")
}

func (s *workflowSteps) admitPatient(context.Context) error {
	id, ok := s.tc.Created("Appointment")
	if !ok {
		return fmt.Errorf("no appointment scheduled")
	}
	if err := s.tc.Do("PUT", "/Appointment/"+id, s.appointmentBody(id, "arrived")); err != nil {
		return err
	}
	return s.expectOK()
}

func (s *workflowSteps) createForCase(_ context.Context, rt string) error {
	body := fmt.Sprintf(`{"resourceType":%q,"subject":{"reference":"Patient/e2e"},"encounter":{"reference":%q}}`, rt, s.tc.CaseRef())
	if err := s.tc.Do("POST", "/"+rt, body); err != nil {
		return err
	}
	if err := s.expectOK(); err != nil {
		return err
	}
	return s.tc.RememberCreated(rt)
}

func (s *workflowSteps) readCreated(_ context.Context, rt string) error {
	id, ok := s.tc.Created(rt)
	if !ok {
		return fmt.Errorf("no %s created in this scenario", rt)
	}
	if err := s.tc.Do("GET", "/"+rt+"/"+id, ""); err != nil {
		return err
	}
	return s.expectOK()
}

// reportID scopes report ids to the case so reruns do not collide.
func (s *workflowSteps) reportID(id string) string {
	return id + "-" + strings.TrimPrefix(s.tc.CaseRef(), "Encounter/")
}

func (s *workflowSteps) attestReport(_ context.Context, id string) error {
	body := fmt.Sprintf(`{"resourceType":"DiagnosticReport","status":"final","subject":{"reference":"Patient/e2e"},"encounter":{"reference":%q}}`, s.tc.CaseRef())
	if err := s.tc.Do("PUT", "/DiagnosticReport/"+s.reportID(id), body); err != nil {
		return err
	}
	return s.expectOK()
}

func (s *workflowSteps) readReport(_ context.Context, id string) error {
	if err := s.tc.Do("GET", "/DiagnosticReport/"+s.reportID(id), ""); err != nil {
		return err
	}
	return s.expectOK()
}

func (s *workflowSteps) transmitReport(_ context.Context, id string) error {
	if err := s.tc.Do("POST", "/DiagnosticReport/"+s.reportID(id)+"/$fhirToCDA", ""); err != nil {
		return err
	}
	return s.expectOK()
}

func (s *workflowSteps) exportLog(context.Context) error {
	if err := s.tc.Do("GET", "/AuditEvent/$xes", ""); err != nil {
		return err
	}
	return s.expectOK()
}

type xesAttr struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type xesLog struct {
	Traces []struct {
		Strings []xesAttr `xml:"string"`
		Events  []struct {
			Strings []xesAttr `xml:"string"`
		} `xml:"event"`
	} `xml:"trace"`
}

// caseTrace returns the step labels of the scenario's case, and whether the
// export holds a trace for it.
func (s *workflowSteps) caseTrace() ([]string, bool, error) {
	var doc xesLog
	if err := xml.Unmarshal(s.tc.LastBody(), &doc); err != nil {
		return nil, false, fmt.Errorf("decode xes: %w", err)
	}
	for _, trace := range doc.Traces {
		idx := slices.IndexFunc(trace.Strings, func(a xesAttr) bool {
			return a.Key == "concept:name" && a.Value == s.tc.CaseRef()
		})
		if idx < 0 {
			continue
		}
		var labels []string
		for _, ev := range trace.Events {
			for _, a := range ev.Strings {
				if a.Key == "concept:name" {
					labels = append(labels, a.Value)
				}
			}
		}
		return labels, true, nil
	}
	return nil, false, nil
}

func (s *workflowSteps) caseTraceShouldHave(_ context.Context, steps string) error {
	got, ok, err := s.caseTrace()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("export has no trace for %s", s.tc.CaseRef())
	}
	want := strings.Split(steps, ",")
	for i := range want {
		want[i] = strings.TrimSpace(want[i])
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("trace %s: expected %v, got %v", s.tc.CaseRef(), want, got)
	}
	return nil
}

func (s *workflowSteps) caseShouldHaveNoTrace(context.Context) error {
	_, ok, err := s.caseTrace()
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("unexpected trace for %s", s.tc.CaseRef())
	}
	return nil
}
