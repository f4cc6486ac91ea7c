package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"fhiraudit/internal/fhir"
)

// auditEventJSON is the stored AuditEvent document. The workflow and case
// links travel as resource-contained extensions so a record is
// self-describing without a side table.
type auditEventJSON struct {
	ResourceType fhir.ResourceType `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Extension    []fhir.Extension  `json:"extension,omitempty"`
	Type         Coding            `json:"type"`
	Action       Action            `json:"action,omitempty"`
	Recorded     time.Time         `json:"recorded"`
	Outcome      OutcomeCode       `json:"outcome,omitempty"`
	OutcomeDesc  string            `json:"outcomeDesc,omitempty"`
	Agent        []agentJSON       `json:"agent"`
	Source       sourceJSON        `json:"source"`
	Entity       []entityJSON      `json:"entity,omitempty"`
}

type agentJSON struct {
	Role      []codeableConcept `json:"role,omitempty"`
	Who       *fhir.Reference   `json:"who,omitempty"`
	Name      string            `json:"name,omitempty"`
	Requestor bool              `json:"requestor"`
	Network   *networkJSON      `json:"network,omitempty"`
}

type codeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type networkJSON struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

type sourceJSON struct {
	Observer fhir.Reference `json:"observer"`
}

type entityJSON struct {
	What        *fhir.Reference `json:"what,omitempty"`
	Description string          `json:"description,omitempty"`
	// Query is base64 encoded by encoding/json.
	Query []byte `json:"query,omitempty"`
}

var patientRole = codeableConcept{
	Coding: []Coding{{
		System:  "http://terminology.hl7.org/CodeSystem/v3-RoleClass",
		Code:    "PAT",
		Display: "patient",
	}},
	Text: "Patient",
}

// networkTypeIP is the AuditEvent network type code for an IP address.
const networkTypeIP = "2"

// Encode renders a record as an AuditEvent resource ready to be stored.
func Encode(rec Record) (*fhir.Resource, error) {
	doc := auditEventJSON{
		ResourceType: fhir.TypeAuditEvent,
		ID:           rec.ID,
		Type:         rec.Type,
		Action:       rec.Action,
		Recorded:     rec.RecordedAt.UTC(),
		Outcome:      rec.Outcome,
		OutcomeDesc:  rec.OutcomeDesc,
		Source:       sourceJSON{Observer: rec.Source},
	}

	if !rec.BasedOn.IsZero() {
		ref := rec.BasedOn
		doc.Extension = append(doc.Extension, fhir.Extension{URL: fhir.ExtensionAuditEventBasedOn, ValueReference: &ref})
	}
	if rec.HasCase() {
		ref := rec.Case
		doc.Extension = append(doc.Extension, fhir.Extension{URL: fhir.ExtensionAuditEventEncounter, ValueReference: &ref})
	}

	subject := agentJSON{Role: []codeableConcept{patientRole}}
	if !rec.Subject.IsZero() {
		ref := rec.Subject
		subject.Who = &ref
	}
	doc.Agent = append(doc.Agent, subject)

	if rec.Requestor != nil {
		agent := agentJSON{Name: rec.Requestor.Name, Requestor: true}
		if !rec.Requestor.Who.IsZero() {
			ref := rec.Requestor.Who
			agent.Who = &ref
		}
		if rec.Requestor.Address != "" {
			agent.Network = &networkJSON{Address: rec.Requestor.Address, Type: networkTypeIP}
		}
		doc.Agent = append(doc.Agent, agent)
	}

	entity := entityJSON{Description: rec.EntityDetail, Query: rec.QueryFragment}
	if !rec.Entity.IsZero() {
		ref := rec.Entity
		entity.What = &ref
	}
	doc.Entity = []entityJSON{entity}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &fhir.Resource{Type: fhir.TypeAuditEvent, ID: rec.ID, Body: body}, nil
}

// Decode reads a stored AuditEvent resource back into a record.
func Decode(res *fhir.Resource) (Record, error) {
	var doc auditEventJSON
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		return Record{}, fmt.Errorf("decode audit event %s: %w", res.ID, err)
	}
	if doc.ResourceType != fhir.TypeAuditEvent {
		return Record{}, fmt.Errorf("decode audit event %s: unexpected resourceType %q", res.ID, doc.ResourceType)
	}

	rec := Record{
		ID:          res.ID,
		Type:        doc.Type,
		RecordedAt:  doc.Recorded,
		Action:      doc.Action,
		Outcome:     doc.Outcome,
		OutcomeDesc: doc.OutcomeDesc,
		Source:      doc.Source.Observer,
	}
	if rec.ID == "" {
		rec.ID = doc.ID
	}

	if ext, ok := fhir.FindExtension(doc.Extension, fhir.ExtensionAuditEventBasedOn); ok && ext.ValueReference != nil {
		rec.BasedOn = *ext.ValueReference
	}
	if ext, ok := fhir.FindExtension(doc.Extension, fhir.ExtensionAuditEventEncounter); ok && ext.ValueReference != nil {
		rec.Case = *ext.ValueReference
	}

	for _, agent := range doc.Agent {
		if agent.Requestor {
			a := &Agent{Name: agent.Name, Requestor: true}
			if agent.Who != nil {
				a.Who = *agent.Who
			}
			if agent.Network != nil {
				a.Address = agent.Network.Address
			}
			rec.Requestor = a
			continue
		}
		if agent.Who != nil && rec.Subject.IsZero() {
			rec.Subject = *agent.Who
		}
	}

	if len(doc.Entity) > 0 {
		entity := doc.Entity[0]
		if entity.What != nil {
			rec.Entity = *entity.What
		}
		rec.EntityDetail = entity.Description
		rec.QueryFragment = entity.Query
	}
	return rec, nil
}
