package audit

import (
	"errors"
	"net/http"
	"strings"

	"fhiraudit/internal/fhir"
)

var errSubjectUnresolved = errors.New("subject unresolved")

type subjectSource int

const (
	subjectFromInstance subjectSource = iota
	subjectFromParticipant
	subjectFromSubjectField
)

var subjectPolicy = map[fhir.ResourceType]subjectSource{
	fhir.TypePatient:          subjectFromInstance,
	fhir.TypeAppointment:      subjectFromParticipant,
	fhir.TypeProcedure:        subjectFromSubjectField,
	fhir.TypeMedia:            subjectFromSubjectField,
	fhir.TypeDiagnosticReport: subjectFromSubjectField,
}

// resolveSubject finds the patient the operation acted for. A search with
// a "subject" parameter wins over the resource content.
func resolveSubject(op OperationContext) (fhir.Reference, error) {
	if strings.EqualFold(op.Method, http.MethodGet) {
		if subject := op.QueryParam("subject"); subject != "" {
			return fhir.Reference{Reference: subject}, nil
		}
	}

	source, ok := subjectPolicy[op.ResourceType]
	if !ok {
		return fhir.Reference{}, errSubjectUnresolved
	}

	if source == subjectFromInstance {
		id := op.ResourceID
		if id == "" && op.Payload != nil {
			id = op.Payload.ID
		}
		if id == "" {
			return fhir.Reference{}, errSubjectUnresolved
		}
		return fhir.NewReference(fhir.TypePatient, id), nil
	}

	if op.Payload == nil {
		return fhir.Reference{}, errSubjectUnresolved
	}
	env, err := op.Payload.Envelope()
	if err != nil {
		return fhir.Reference{}, errSubjectUnresolved
	}

	switch source {
	case subjectFromParticipant:
		if len(env.Participant) > 0 && env.Participant[0].Actor != nil && !env.Participant[0].Actor.IsZero() {
			return *env.Participant[0].Actor, nil
		}
	case subjectFromSubjectField:
		if env.Subject != nil && !env.Subject.IsZero() {
			return *env.Subject, nil
		}
	}
	return fhir.Reference{}, errSubjectUnresolved
}
