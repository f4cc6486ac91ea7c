package testutil

import (
	"net/http"

	"fhiraudit/pkg/requestcontext"
)

// WithRequestor marks the request as issued by subject, as the bearer token
// middleware would.
func WithRequestor(req *http.Request, subject, clientID string) *http.Request {
	ctx := requestcontext.WithRequestor(req.Context(), requestcontext.Requestor{Subject: subject, ClientID: clientID})
	return req.WithContext(ctx)
}
