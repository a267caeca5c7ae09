/*
auth.go - Who is calling

VIEWER TOKENS:
  The dashboard sends the backend-issued JWT as "Authorization: Bearer".
  The viewer id is read from the "user_id" claim, falling back to "sub".
  With auth.jwt_secret set the signature is verified (HS256); without it
  the claims are read unverified and the backend, which receives the same
  token on every forwarded call, stays the one that rejects bad tokens.

ADMIN TOKENS:
  Admin routes take the token from POST /api/admin/session in the
  "X-Admin-Token" header. See lockout/session.go.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/backend"
	"github.com/warp/approval-desk/lockout"
)

const AdminTokenHeader = "X-Admin-Token"

var errNoViewer = errors.New("token carries no user id")

type ctxKey int

const (
	viewerKey ctxKey = iota
	adminKey
)

// ViewerAuth extracts the viewer from the bearer token.
type ViewerAuth struct {
	// Secret verifies token signatures. Empty skips verification.
	Secret []byte
}

func (a ViewerAuth) viewerID(token string) (approval.UserID, error) {
	claims := jwt.MapClaims{}
	if len(a.Secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return 0, err
		}
	} else {
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.Secret, nil
		})
		if err != nil {
			return 0, err
		}
	}

	for _, name := range []string{"user_id", "sub"} {
		if id, ok := claimID(claims[name]); ok {
			return id, nil
		}
	}
	return 0, errNoViewer
}

// claimID accepts numeric claims and numeric strings.
func claimID(v any) (approval.UserID, bool) {
	switch x := v.(type) {
	case float64:
		if x >= 1 && x == float64(int64(x)) {
			return approval.UserID(x), true
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil && n >= 1 {
			return approval.UserID(n), true
		}
	}
	return 0, false
}

// RequireViewer rejects requests without a usable bearer token and forwards
// the token to backend calls made with the request context.
func (a ViewerAuth) RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		id, err := a.viewerID(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), viewerKey, id)
		ctx = backend.WithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ViewerID returns the viewer set by RequireViewer.
func ViewerID(ctx context.Context) (approval.UserID, bool) {
	id, ok := ctx.Value(viewerKey).(approval.UserID)
	return id, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// =============================================================================
// ADMIN
// =============================================================================

// RequireAdmin rejects requests without a live admin session.
func RequireAdmin(sessions *lockout.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions == nil {
				writeError(w, http.StatusForbidden, "Admin access is not configured", nil)
				return
			}
			token := r.Header.Get(AdminTokenHeader)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Missing admin token", nil)
				return
			}
			claims, err := sessions.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid admin token", err)
				return
			}
			ctx := context.WithValue(r.Context(), adminKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminClaims(ctx context.Context) (*lockout.AdminClaims, bool) {
	c, ok := ctx.Value(adminKey).(*lockout.AdminClaims)
	return c, ok
}

// clientKey identifies the caller for lockout purposes. RemoteAddr is the
// socket peer unless ProxyRealIP trusted a proxy header.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "admin:" + host
}
