package audit

import (
	"net/http"
	"strings"

	dErrors "fhiraudit/pkg/domain-errors"
)

var verbActions = map[string]Action{
	http.MethodPost:   ActionCreate,
	http.MethodGet:    ActionRead,
	http.MethodPut:    ActionUpdate,
	http.MethodDelete: ActionDelete,
}

// Classify maps an operation onto its audit action. A named custom
// operation is always Execute, whatever verb carried it.
func Classify(op OperationContext) (Action, error) {
	if op.Operation != "" {
		return ActionExecute, nil
	}
	if action, ok := verbActions[strings.ToUpper(op.Method)]; ok {
		return action, nil
	}
	return "", dErrors.New(dErrors.CodeUnsupportedAction, "unsupported request method "+op.Method)
}
