// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; the audit synthesizer reads them when it
// builds the requestor agent of a record. Keeping this package free of
// net/http lets services import it without transport code.
//
//	requestID := requestcontext.RequestID(ctx)
//	ctx = requestcontext.WithRequestor(ctx, requestcontext.Requestor{Subject: "Practitioner/7"})
package requestcontext

import "context"

type (
	requestIDKey struct{}
	requestorKey struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyRequestID = requestIDKey{}
	ContextKeyRequestor = requestorKey{}
	ContextKeyClientIP  = clientIPKey{}
	ContextKeyUserAgent = userAgentKey{}
)

// Requestor is the authenticated party that issued the request, taken from
// a bearer token. The zero value means the request was anonymous.
type Requestor struct {
	Subject  string
	ClientID string
}

// IsZero reports whether no requestor was established.
func (r Requestor) IsZero() bool {
	return r.Subject == ""
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestorFrom retrieves the requestor, or the zero value when anonymous.
func RequestorFrom(ctx context.Context) Requestor {
	if r, ok := ctx.Value(ContextKeyRequestor).(Requestor); ok {
		return r
	}
	return Requestor{}
}

// WithRequestor injects the authenticated requestor into the context.
func WithRequestor(ctx context.Context, r Requestor) context.Context {
	return context.WithValue(ctx, ContextKeyRequestor, r)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}
