package audit

import (
	"net/url"
	"strings"
	"time"

	"fhiraudit/internal/fhir"
)

// Action is the audited action, using the FHIR AuditEvent action codes.
type Action string

const (
	ActionCreate  Action = "C"
	ActionRead    Action = "R"
	ActionUpdate  Action = "U"
	ActionDelete  Action = "D"
	ActionExecute Action = "E"
)

var actionNames = map[Action]string{
	ActionCreate:  "Create",
	ActionRead:    "Read",
	ActionUpdate:  "Update",
	ActionDelete:  "Delete",
	ActionExecute: "Execute",
}

// Name returns the human readable action name ("Create", ...).
func (a Action) Name() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return string(a)
}

// OutcomeCode is the FHIR AuditEvent outcome code.
type OutcomeCode string

const (
	OutcomeSuccess      OutcomeCode = "0"
	OutcomeMinorFailure OutcomeCode = "4"
)

// Outcome is what the host reports when an operation completes.
type Outcome struct {
	Success bool
	Message string
}

// Succeeded is the outcome of a successful operation.
func Succeeded() Outcome { return Outcome{Success: true} }

// Failed is the outcome of a failed operation with its error description.
func Failed(msg string) Outcome { return Outcome{Message: msg} }

// OperationContext describes one completed operation. It is built by the
// host, read-only for the audit core, and discarded after synthesis.
type OperationContext struct {
	ResourceType fhir.ResourceType
	// ResourceID is empty for collection-level operations.
	ResourceID string
	Method     string
	// Operation is the custom operation name including its "$" prefix.
	Operation string
	RawQuery  string
	// Path is the request path below the server base, e.g.
	// "DiagnosticReport/42/$fhirToCDA".
	Path string
	// Payload is the resource written, or the resource returned by an
	// instance-level read.
	Payload *fhir.Resource
}

// QueryParam returns the first value of a query parameter.
func (op OperationContext) QueryParam(name string) string {
	if op.RawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(op.RawQuery)
	if err != nil {
		return ""
	}
	return values.Get(name)
}

// Coding is a FHIR coding.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

const dicomSystem = "http://dicom.nema.org/resources/ontology/DCM"

var (
	typeAuditLogUsed  = Coding{System: dicomSystem, Code: "110101", Display: "Audit Log Used"}
	typePatientRecord = Coding{System: dicomSystem, Code: "110110", Display: "Patient Record"}
	typeQuery         = Coding{System: dicomSystem, Code: "110112", Display: "Query"}
)

// eventTypes maps resource types onto the audit event type. Everything
// absent is a Query event.
var eventTypes = map[fhir.ResourceType]Coding{
	fhir.TypeAuditEvent: typeAuditLogUsed,
	fhir.TypePatient:    typePatientRecord,
}

// EventTypeFor returns the audit event type coding for a resource type.
func EventTypeFor(rt fhir.ResourceType) Coding {
	if c, ok := eventTypes[rt]; ok {
		return c
	}
	return typeQuery
}

// Agent is a participant in the audited operation.
type Agent struct {
	Who       fhir.Reference
	Name      string
	Requestor bool
	Address   string
}

// Record is one persisted audit record. Records are never mutated after
// creation.
type Record struct {
	ID          string
	Type        Coding
	RecordedAt  time.Time
	Action      Action
	Outcome     OutcomeCode
	OutcomeDesc string
	// Subject is the entity the operation acted for (the patient). Zero when
	// it could not be resolved.
	Subject   fhir.Reference
	Requestor *Agent
	// Entity is "Type/id" for instance operations and the type alone for
	// collection-level operations.
	Entity fhir.Reference
	// EntityDetail is the request path, including any operation name.
	EntityDetail string
	// QueryFragment is the raw query string, absent when there was none.
	QueryFragment []byte
	BasedOn       fhir.Reference
	// Case is zero when the resource type carries no case.
	Case   fhir.Reference
	Source fhir.Reference
}

// HasCase reports whether the record is linked to a case.
func (r Record) HasCase() bool {
	return !r.Case.IsZero()
}

// EntityType returns the resource type the record is about.
func (r Record) EntityType() fhir.ResourceType {
	return r.Entity.ResourceType()
}

// Operation returns the custom operation recorded in the entity detail, or
// "" for plain REST interactions.
func (r Record) Operation() string {
	i := strings.LastIndex(r.EntityDetail, "$")
	if i < 0 {
		return ""
	}
	return r.EntityDetail[i:]
}
