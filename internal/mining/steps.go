// Package mining turns the audit trail into a process-mining event log:
// audit records are mapped onto named workflow steps and grouped into one
// trace per case.
package mining

import (
	"strings"

	"fhiraudit/internal/audit"
	"fhiraudit/internal/fhir"
)

// StepLabel names a step of the radiology practice workflow.
type StepLabel string

const (
	StepAppointmentScheduling StepLabel = "Appointment Scheduling"
	StepPatientAdmission      StepLabel = "Patient Admission"
	StepImageAcquisition      StepLabel = "Image Acquisition"
	StepImageReview           StepLabel = "Image Review"
	StepReportWriting         StepLabel = "Report Writing"
	StepReportAttestation     StepLabel = "Report Attestation"
	StepReportReview          StepLabel = "Report Review"
	StepReportTransmission    StepLabel = "Report Transmission"

	// NoLabel marks records that are not a workflow step.
	NoLabel StepLabel = ""
)

type stepKey struct {
	Action       audit.Action
	ResourceType fhir.ResourceType
	Operation    string
}

// stepTable is the whole mapping; anything absent is NoLabel. Operation is
// only part of the key for Execute actions.
var stepTable = map[stepKey]StepLabel{
	{audit.ActionCreate, fhir.TypeAppointment, ""}:                             StepAppointmentScheduling,
	{audit.ActionUpdate, fhir.TypeAppointment, ""}:                             StepPatientAdmission,
	{audit.ActionCreate, fhir.TypeMedia, ""}:                                   StepImageAcquisition,
	{audit.ActionRead, fhir.TypeMedia, ""}:                                     StepImageReview,
	{audit.ActionCreate, fhir.TypeProcedure, ""}:                               StepReportWriting,
	{audit.ActionUpdate, fhir.TypeDiagnosticReport, ""}:                        StepReportAttestation,
	{audit.ActionRead, fhir.TypeDiagnosticReport, ""}:                          StepReportReview,
	{audit.ActionExecute, fhir.TypeDiagnosticReport, fhir.OperationFHIRToCDA}: StepReportTransmission,
}

// knownOperations are matched against the end of an entity detail when the
// operation name is not given separately.
var knownOperations = []string{fhir.OperationFHIRToCDA}

// MapToStep labels an audited action. For Execute actions the operation
// decides the step; when operation is empty it is taken from the suffix of
// detail.
func MapToStep(action audit.Action, rt fhir.ResourceType, operation, detail string) StepLabel {
	key := stepKey{Action: action, ResourceType: rt}
	if action == audit.ActionExecute {
		if operation == "" {
			operation = operationSuffix(detail)
		}
		if operation == "" {
			return NoLabel
		}
		key.Operation = operation
	}
	return stepTable[key]
}

// StepFor labels a stored audit record.
func StepFor(rec audit.Record) StepLabel {
	return MapToStep(rec.Action, rec.EntityType(), "", rec.EntityDetail)
}

func operationSuffix(detail string) string {
	for _, op := range knownOperations {
		if strings.HasSuffix(detail, op) {
			return op
		}
	}
	return ""
}
