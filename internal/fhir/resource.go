// Package fhir holds the minimal clinical resource model shared by the host,
// the resource stores, and the audit core. Resources are kept as raw JSON;
// only the fields the audit core reads are decoded, through Envelope.
package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dErrors "fhiraudit/pkg/domain-errors"
)

// ResourceType names a kind of clinical resource ("Procedure", "Patient", ...).
type ResourceType string

const (
	TypeAuditEvent       ResourceType = "AuditEvent"
	TypePatient          ResourceType = "Patient"
	TypeEncounter        ResourceType = "Encounter"
	TypeAppointment      ResourceType = "Appointment"
	TypeProcedure        ResourceType = "Procedure"
	TypeMedia            ResourceType = "Media"
	TypeDiagnosticReport ResourceType = "DiagnosticReport"
	TypeDevice           ResourceType = "Device"
	TypePlanDefinition   ResourceType = "PlanDefinition"
)

var hostedTypes = map[ResourceType]bool{
	TypeAuditEvent:       true,
	TypePatient:          true,
	TypeEncounter:        true,
	TypeAppointment:      true,
	TypeProcedure:        true,
	TypeMedia:            true,
	TypeDiagnosticReport: true,
	TypeDevice:           true,
	TypePlanDefinition:   true,
}

// Hosted reports whether the server stores resources of this type.
func (rt ResourceType) Hosted() bool {
	return hostedTypes[rt]
}

func (rt ResourceType) String() string { return string(rt) }

// Extension URLs. The AuditEvent extensions are the canonical link between an
// audit record, the audited workflow, and the case it belongs to.
const (
	extensionBase = "http://aist.fh-hagenberg.at/fhir/extensions/"

	ExtensionAuditEventBasedOn    = extensionBase + "auditevent-basedon-extension"
	ExtensionAuditEventEncounter  = extensionBase + "auditevent-encounter-extension"
	ExtensionAppointmentEncounter = extensionBase + "appointment-encounter-extension"
)

// Custom operations hosted by the server.
const (
	OperationFHIRToCDA = "$fhirToCDA"
	OperationXES       = "$xes"
)

// Resource is a stored clinical resource. Body is the complete JSON document
// including resourceType and id.
type Resource struct {
	Type      ResourceType
	ID        string
	Body      json.RawMessage
	CreatedAt time.Time
}

// Reference returns "Type/id" for the resource.
func (r *Resource) Reference() Reference {
	return NewReference(r.Type, r.ID)
}

// Envelope decodes the subset of fields the audit core reads.
func (r *Resource) Envelope() (Envelope, error) {
	var env Envelope
	if len(r.Body) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s envelope: %w", r.Type, err)
	}
	return env, nil
}

// Parse reads a resource document and checks its resourceType.
func Parse(body []byte) (*Resource, error) {
	var head struct {
		ResourceType ResourceType `json:"resourceType"`
		ID           string       `json:"id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid resource body")
	}
	if head.ResourceType == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "resource body has no resourceType")
	}
	return &Resource{Type: head.ResourceType, ID: head.ID, Body: append(json.RawMessage(nil), body...)}, nil
}

// WithID returns a copy of the resource whose body carries id.
func (r *Resource) WithID(id string) (*Resource, error) {
	fields := map[string]json.RawMessage{}
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, &fields); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid resource body")
		}
	}
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	rawType, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}
	fields["id"] = rawID
	fields["resourceType"] = rawType
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := *r
	out.ID = id
	out.Body = body
	return &out, nil
}

// Envelope is the decoded view of a resource used for case and subject
// resolution. Fields absent from a resource type simply stay empty.
type Envelope struct {
	ResourceType ResourceType  `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Extension    []Extension   `json:"extension,omitempty"`
	Subject      *Reference    `json:"subject,omitempty"`
	Encounter    *Reference    `json:"encounter,omitempty"`
	Context      *Reference    `json:"context,omitempty"`
	Participant  []Participant `json:"participant,omitempty"`
}

// Participant is an Appointment participant.
type Participant struct {
	Actor *Reference `json:"actor,omitempty"`
}

// EncounterRef returns the encounter reference, falling back to the older
// "context" field name.
func (e Envelope) EncounterRef() (Reference, bool) {
	if e.Encounter != nil && !e.Encounter.IsZero() {
		return *e.Encounter, true
	}
	if e.Context != nil && !e.Context.IsZero() {
		return *e.Context, true
	}
	return Reference{}, false
}

// Extension is a FHIR extension carrying either a reference or a string.
type Extension struct {
	URL            string     `json:"url"`
	ValueReference *Reference `json:"valueReference,omitempty"`
	ValueString    string     `json:"valueString,omitempty"`
}

// FindExtension returns the first extension with the given URL.
func FindExtension(exts []Extension, url string) (Extension, bool) {
	for _, ext := range exts {
		if ext.URL == url {
			return ext, true
		}
	}
	return Extension{}, false
}

// Reference points at another resource. Either Reference ("Type/id") or, for
// collection-level entities, Type alone is set.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// NewReference builds a "Type/id" reference.
func NewReference(rt ResourceType, id string) Reference {
	return Reference{Reference: string(rt) + "/" + id}
}

// TypeReference builds a reference naming a resource type only.
func TypeReference(rt ResourceType) Reference {
	return Reference{Type: string(rt)}
}

// IsZero reports whether the reference points nowhere.
func (r Reference) IsZero() bool {
	return r.Reference == "" && r.Type == ""
}

// String returns the literal reference, or the type name for type-only
// references.
func (r Reference) String() string {
	if r.Reference != "" {
		return r.Reference
	}
	return r.Type
}

// ResourceType returns the referenced type, from the literal reference when
// present.
func (r Reference) ResourceType() ResourceType {
	if r.Reference != "" {
		if i := strings.Index(r.Reference, "/"); i > 0 {
			return ResourceType(r.Reference[:i])
		}
	}
	return ResourceType(r.Type)
}

// ID returns the id part of a literal "Type/id" reference.
func (r Reference) ID() string {
	parts := strings.Split(r.Reference, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
