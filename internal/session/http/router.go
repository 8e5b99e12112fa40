package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/pkg/httpx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"

	_ "github.com/aussiebroadwan/tokenkeeper/api/session" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Limits are the per-endpoint rate limits. A zero config disables that
// limit.
type Limits struct {
	Login    httpx.RateLimitConfig
	Refresh  httpx.RateLimitConfig
	Validate httpx.RateLimitConfig
	Logout   httpx.RateLimitConfig
	Admin    httpx.RateLimitConfig
	Health   httpx.RateLimitConfig
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		Login:    httpx.StrictLimit,
		Refresh:  httpx.ModerateLimit,
		Validate: httpx.LenientLimit,
		Logout:   httpx.ModerateLimit,
		Admin:    httpx.ModerateLimit,
		Health:   httpx.LenientLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	SessionService *service.SessionService
	LoginService   *service.LoginService
	AdminService   *service.AdminService

	// DeactivationCheck is an optional readiness probe for an external
	// deactivation backend.
	DeactivationCheck func(ctx context.Context) error

	Limits Limits
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       DefaultLimits(),
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Tokenkeeper Session Service API
//	@version		0.1.0
//	@description	Issues, validates, rotates and revokes paired access/refresh tokens.
//	@description	Each subject holds at most one active pair; logging in again ends the previous session.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tokenkeeper
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// guard is the request-auth middleware: every request under it has its
// bearer validated against the session store.
func (r *Router) guard() httpx.Middleware {
	authn := httpx.AuthenticatorFunc(func(ctx context.Context, bearer string) (httpx.Identity, error) {
		p, err := r.SessionService.Validate(ctx, bearer)
		if err != nil {
			return httpx.Identity{}, err
		}
		return httpx.Identity{SubjectID: p.SubjectID, Role: p.Role.String()}, nil
	})
	return httpx.AuthnMiddleware(authn, service.IsForbidden)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Sessions: r.SessionService,
		Login:    r.LoginService,
	}

	// POST /login - strict, keyed by IP and login name so one address
	// can't spray a single account
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Login, "login"),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Refresh),
		),
	)

	// GET /validate - called by downstream services on every request
	r.Mux.Handle("GET /v1/auth/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(r.Limits.Validate),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.Limits.Logout),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Admin: r.AdminService}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			r.guard(),
			httpx.RequireAnyRole(domain.RoleAdmin.String(), domain.RoleSuperadmin.String()),
			httpx.RateLimitBySubject(r.Limits.Admin),
		)
	}

	r.Mux.Handle("POST /v1/admin/subjects/{id}/deactivate", secured(h.HandleDeactivate))
	r.Mux.Handle("POST /v1/admin/subjects/{id}/reactivate", secured(h.HandleReactivate))
	r.Mux.Handle("GET /v1/admin/subjects/{id}/sessions", secured(h.HandleListSessions))
	r.Mux.Handle("POST /v1/admin/sweep", secured(h.HandleSweep))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Health),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.DeactivationCheck),
			httpx.RateLimitByIP(r.Limits.Health),
		),
	)

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}
