package httpx

import (
	"net/http"
)

// RequireAnyRole the caller must hold one of the listed roles. Must run
// after AuthnMiddleware.
func RequireAnyRole(roles ...string) Middleware {
	want := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		want[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := want[roleFromCtx(r.Context())]; ok {
				next.ServeHTTP(w, r)
				return
			}
			WriteJSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden"})
		})
	}
}
