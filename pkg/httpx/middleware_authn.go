package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

// Authenticator validates a bearer token and returns who it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, bearer string) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	return f(ctx, bearer)
}

// AuthnMiddleware rejects requests without a valid bearer token. Failures
// are 401 unless forbidden reports the error as a 403 case. The response
// never says which check failed.
func AuthnMiddleware(a Authenticator, forbidden func(error) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w, "missing bearer token")
				return
			}

			id, err := a.Authenticate(ctx, raw)
			if err != nil {
				log.Warn("bearer rejected", "err", err)
				if forbidden != nil && forbidden(err) {
					WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden"})
					return
				}
				WriteBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[len("Bearer "):])
	return raw, raw != ""
}

// WriteBearerError writes an RFC 6750 401 for a rejected bearer token.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, ErrorBody{Error: "unauthorized"})
}
