package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/backend"
	"github.com/warp/approval-desk/lockout"
	"github.com/warp/approval-desk/sandbox"
	"github.com/warp/approval-desk/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testJWTSecret   = "viewer-secret"
	testAdminSecret = "admin-secret"
	testPasscode    = "correct horse"
)

// testEnv is the desk API in front of a seeded sandbox backend, with a
// SQLite journal.
type testEnv struct {
	t       *testing.T
	srv     *httptest.Server
	sandbox *sandbox.Backend
	store   *sqlite.Store
	handler *Handler
}

func newTestEnv(t *testing.T, opts ...func(*RouterOptions)) *testEnv {
	t.Helper()

	sb := sandbox.NewSeeded()
	br := chi.NewRouter()
	br.Mount("/api", sb.Router())
	backendSrv := httptest.NewServer(br)
	t.Cleanup(backendSrv.Close)

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := backend.NewClient(backendSrv.URL+"/api", "", 5*time.Second)
	h := NewHandler(client, store, zerolog.Nop())

	hash, err := bcrypt.GenerateFromPassword([]byte(testPasscode), bcrypt.MinCost)
	require.NoError(t, err)
	gate, err := lockout.NewGate(lockout.NewGuard(store, 3, time.Minute), string(hash))
	require.NoError(t, err)
	h.Gate = gate
	h.Sessions = lockout.NewSessions(store, testAdminSecret, time.Minute)

	ro := RouterOptions{Auth: ViewerAuth{Secret: []byte(testJWTSecret)}}
	for _, o := range opts {
		o(&ro)
	}
	router := NewRouter(h, ro)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{t: t, srv: srv, sandbox: sb, store: store, handler: h}
}

// tokenFor signs a viewer token the way the backend would.
func tokenFor(t *testing.T, id approval.UserID) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": int64(id),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path string, headers map[string]string, body any) *http.Response {
	e.t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// as performs a request as the given viewer.
func (e *testEnv) as(viewer approval.UserID, method, path string, body any) *http.Response {
	e.t.Helper()
	return e.do(method, path, map[string]string{"Authorization": "Bearer " + tokenFor(e.t, viewer)}, body)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func findRequest(list []RequestDTO, id approval.RequestID) (RequestDTO, bool) {
	for _, r := range list {
		if r.ID == id {
			return r, true
		}
	}
	return RequestDTO{}, false
}
