package audit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhiraudit/internal/fhir"
	dErrors "fhiraudit/pkg/domain-errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		op   OperationContext
		want Action
	}{
		{"post creates", OperationContext{Method: http.MethodPost}, ActionCreate},
		{"get reads", OperationContext{Method: http.MethodGet}, ActionRead},
		{"put updates", OperationContext{Method: http.MethodPut}, ActionUpdate},
		{"delete deletes", OperationContext{Method: http.MethodDelete}, ActionDelete},
		{"lower case verb", OperationContext{Method: "get"}, ActionRead},
		{"custom operation over GET executes", OperationContext{Method: http.MethodGet, Operation: fhir.OperationFHIRToCDA}, ActionExecute},
		{"custom operation over POST executes", OperationContext{Method: http.MethodPost, Operation: fhir.OperationFHIRToCDA}, ActionExecute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyRejectsUnknownVerbs(t *testing.T) {
	for _, method := range []string{http.MethodPatch, http.MethodHead, ""} {
		_, err := Classify(OperationContext{Method: method})
		require.Error(t, err, method)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedAction))
	}
}

func TestEventTypeFor(t *testing.T) {
	assert.Equal(t, "110101", EventTypeFor(fhir.TypeAuditEvent).Code)
	assert.Equal(t, "110110", EventTypeFor(fhir.TypePatient).Code)
	assert.Equal(t, "110112", EventTypeFor(fhir.TypeProcedure).Code)
	assert.Equal(t, "Query", EventTypeFor(fhir.TypeMedia).Display)
}
