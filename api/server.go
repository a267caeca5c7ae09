/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. ProxyRealIP: Client address from proxy headers, only when the peer is
                 a trusted proxy (lockout keys use it)
  3. AccessLog:  zerolog request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /health               Liveness, no auth
  /api/*                Viewer routes, bearer token required
  /api/admin/session    Passcode login, no token
  /api/admin/*          Admin routes, X-Admin-Token required

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: RequireViewer, RequireAdmin
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Auth           ViewerAuth

	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP
	// headers are believed. Empty means the headers are ignored.
	TrustedProxies []netip.Prefix
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(ProxyRealIP(opts.TrustedProxies))
	r.Use(AccessLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminTokenHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/session", h.CreateAdminSession)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(h.Sessions))
				r.Delete("/session", h.DeleteAdminSession)
				r.Get("/approvers", h.ListApprovers)
				r.Post("/approvers", h.CreateApprover)
				r.Delete("/approvers/{id}", h.DeleteApprover)
			})
		})

		// Viewer routes
		r.Group(func(r chi.Router) {
			r.Use(opts.Auth.RequireViewer)

			r.Get("/me", h.GetMe)

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Get("/export", h.ExportRequests)
				r.Get("/{id}", h.GetRequest)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Post("/{id}/reject", h.RejectRequest)
				r.Get("/{id}/actions", h.ListActions)
			})
		})
	})

	return r
}

// ProxyRealIP applies middleware.RealIP only to requests whose direct peer
// is inside one of trusted. Other peers keep their socket address.
func ProxyRealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		viaProxy := middleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peerTrusted(r.RemoteAddr, trusted) {
				viaProxy.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(remoteAddr string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AccessLog logs one line per request.
func AccessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := log.Info()
				if status >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("remote", r.RemoteAddr).
					Msg("http request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
