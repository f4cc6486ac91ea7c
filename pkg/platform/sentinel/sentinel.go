package sentinel

import "errors"

// Sentinel errors for storage facts. Resource stores and infrastructure
// clients return these (optionally wrapped); services translate them into
// domain errors.
//
//   - ErrNotFound: no resource with that type and id
//   - ErrConflict: a resource with that id already exists
//   - ErrUnavailable: backing service unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
