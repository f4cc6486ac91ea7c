package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"fhiraudit/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	Subject  string
	ClientID string
}

// IdentifyRequestor attaches the bearer token's subject to the request
// context as the requestor. Authentication is not enforced: requests
// without a token, or with one that fails validation, continue anonymously
// and their audit records carry no requestor agent.
func IdentifyRequestor(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "ignoring invalid bearer token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx = requestcontext.WithRequestor(ctx, requestcontext.Requestor{
				Subject:  claims.Subject,
				ClientID: claims.ClientID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
