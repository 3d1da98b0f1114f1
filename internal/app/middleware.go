package app

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderOrgID        = "X-Org-ID"
	HeaderBranchID     = "X-Branch-ID"
	HeaderActorID      = "X-Actor-ID"
	HeaderGatewayToken = "X-Gateway-Token"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// MiddlewareStack installs the Meridian middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		GatewayAuth(cfg.Logger, cfg.Config),
		TenantScope(cfg.Logger),
	}
}

// GatewayAuth verifies the shared gateway token. Core performs no user
// authentication; identity arrives pre-authenticated in headers.
func GatewayAuth(logger *slog.Logger, cfg *Config) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		accepted string
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			if cfg == nil || cfg.GatewayTokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(HeaderGatewayToken)
			if token == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			// bcrypt comparison is expensive; remember the last accepted
			// token so steady-state requests only do a constant-time compare.
			mu.Lock()
			cached := accepted
			mu.Unlock()
			if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(cfg.GatewayTokenHash), []byte(token)); err != nil {
				logger.Warn("gateway token rejected", slog.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			mu.Lock()
			accepted = token
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// TenantScope extracts {org, branch, actor} identity headers into context.
func TenantScope(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			orgID, err := strconv.ParseInt(r.Header.Get(HeaderOrgID), 10, 64)
			if err != nil || orgID <= 0 {
				http.Error(w, "missing org header", http.StatusBadRequest)
				return
			}
			actorID, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
			if err != nil || actorID <= 0 {
				http.Error(w, "missing actor header", http.StatusBadRequest)
				return
			}
			var branchID int64
			if raw := r.Header.Get(HeaderBranchID); raw != "" {
				branchID, err = strconv.ParseInt(raw, 10, 64)
				if err != nil || branchID < 0 {
					http.Error(w, "invalid branch header", http.StatusBadRequest)
					return
				}
			}
			scope := shared.Scope{OrgID: orgID, BranchID: branchID, ActorID: actorID}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithScope(r.Context(), scope)))
		})
	}
}
