package api

import (
	"net/http"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/approval/store"
	"github.com/warp/approval-desk/sandbox"
)

// =============================================================================
// ADMIN SESSION
// =============================================================================

func TestAdminSession_LocksAfterFailedAttempts(t *testing.T) {
	// GIVEN: A gate allowing 3 attempts
	env := newTestEnv(t)
	login := func(passcode string) *http.Response {
		return env.do(http.MethodPost, "/api/admin/session", nil, AdminSessionRequest{Passcode: passcode})
	}

	// WHEN: Guessing wrong
	resp := login("wrong")

	// THEN: 401 with the attempts left
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, map[string]any{"remaining_attempts": float64(2)}, body.Details)

	// WHEN: Guessing wrong until the limit
	login("wrong")
	resp = login("wrong")

	// THEN: The client is locked out, even with the right passcode
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	resp = login(testPasscode)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestAdminSession_ForwardedHeadersIgnoredFromUntrustedPeers(t *testing.T) {
	// GIVEN: No trusted proxies
	env := newTestEnv(t)

	// WHEN: Each wrong guess claims a different client address
	var last *http.Response
	for i := 0; i < 3; i++ {
		ip := "203.0.113." + strconv.Itoa(i+1)
		last = env.do(http.MethodPost, "/api/admin/session",
			map[string]string{"X-Forwarded-For": ip, "X-Real-IP": ip},
			AdminSessionRequest{Passcode: "wrong"})
	}

	// THEN: All attempts count against the socket address
	assert.Equal(t, http.StatusLocked, last.StatusCode)

	resp := env.do(http.MethodPost, "/api/admin/session",
		map[string]string{"X-Forwarded-For": "198.51.100.7"},
		AdminSessionRequest{Passcode: testPasscode})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestAdminSession_TrustedProxyForwardsClientAddress(t *testing.T) {
	// GIVEN: The test client's loopback address is a trusted proxy
	env := newTestEnv(t, func(o *RouterOptions) {
		o.TrustedProxies = []netip.Prefix{
			netip.MustParsePrefix("127.0.0.0/8"),
			netip.MustParsePrefix("::1/128"),
		}
	})
	login := func(ip, passcode string) *http.Response {
		return env.do(http.MethodPost, "/api/admin/session",
			map[string]string{"X-Forwarded-For": ip}, AdminSessionRequest{Passcode: passcode})
	}

	// WHEN: One forwarded client exhausts its attempts
	for i := 0; i < 3; i++ {
		login("203.0.113.1", "wrong")
	}

	// THEN: That client is locked, another behind the same proxy is not
	assert.Equal(t, http.StatusLocked, login("203.0.113.1", testPasscode).StatusCode)
	assert.Equal(t, http.StatusCreated, login("203.0.113.2", testPasscode).StatusCode)
}

func TestProxyRealIP_PeerTrusted(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	assert.True(t, peerTrusted("10.1.2.3:5555", trusted))
	assert.True(t, peerTrusted("[::ffff:10.1.2.3]:5555", trusted))
	assert.False(t, peerTrusted("203.0.113.1:5555", trusted))
	assert.False(t, peerTrusted("10.1.2.3:5555", nil))
	assert.False(t, peerTrusted("garbage", trusted))
}

func TestAdminSession_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Login
	resp := env.do(http.MethodPost, "/api/admin/session", nil, AdminSessionRequest{Passcode: testPasscode})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decode[AdminSessionResponse](t, resp)
	require.NotEmpty(t, session.Token)
	admin := map[string]string{AdminTokenHeader: session.Token}

	// Admin routes accept the token
	resp = env.do(http.MethodGet, "/api/admin/approvers", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Logout revokes it
	resp = env.do(http.MethodDelete, "/api/admin/session", admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/admin/approvers", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminSession_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Gate = nil

	resp := env.do(http.MethodPost, "/api/admin/session", nil, AdminSessionRequest{Passcode: testPasscode})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/api/admin/approvers", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A viewer token is not an admin token.
	resp = env.do(http.MethodGet, "/api/admin/approvers",
		map[string]string{AdminTokenHeader: tokenFor(t, sandbox.UserRavi)}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// =============================================================================
// APPROVERS
// =============================================================================

func adminHeaders(t *testing.T, env *testEnv) map[string]string {
	t.Helper()
	resp := env.do(http.MethodPost, "/api/admin/session", nil, AdminSessionRequest{Passcode: testPasscode})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return map[string]string{AdminTokenHeader: decode[AdminSessionResponse](t, resp).Token}
}

func TestApprovers_ListCreateDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := adminHeaders(t, env)

	// List is enriched
	resp := env.do(http.MethodGet, "/api/admin/approvers", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]approval.EnrichedApprover](t, resp)
	require.Len(t, list, 4)
	assert.Equal(t, "Ravi Kumar", list[0].UserName)
	assert.Equal(t, "Operations", list[0].DepartmentName)
	assert.Equal(t, "Retail", list[0].BusinessUnitName)

	// Create
	resp = env.do(http.MethodPost, "/api/admin/approvers", admin, CreateApproverRequest{
		User:         int64(sandbox.UserPriya),
		BusinessUnit: int64(sandbox.BURetail),
		Department:   int64(sandbox.DeptMarketing),
		Level:        1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[approval.Approver](t, resp)
	assert.NotZero(t, created.ID)

	// Invalid level is rejected before reaching the backend
	resp = env.do(http.MethodPost, "/api/admin/approvers", admin, CreateApproverRequest{
		User: int64(sandbox.UserPriya), BusinessUnit: 1, Department: 3, Level: 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Delete
	resp = env.do(http.MethodDelete, "/api/admin/approvers/"+strconv.FormatInt(int64(created.ID), 10), admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(http.MethodDelete, "/api/admin/approvers/"+strconv.FormatInt(int64(created.ID), 10), admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// SWEEPER
// =============================================================================

func TestExpirySweeper_Sweep(t *testing.T) {
	// GIVEN: One expired and one live entry
	clock := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	mem.Now = func() time.Time { return clock }

	require.NoError(t, mem.Set(t.Context(), "lockout:a", []byte("x"), time.Minute))
	require.NoError(t, mem.Set(t.Context(), "session:b", []byte("y"), time.Hour))
	clock = clock.Add(2 * time.Minute)

	// WHEN: Sweeping
	s := NewExpirySweeper(mem, zerolog.Nop())
	n := s.Sweep(t.Context())

	// THEN: Only the expired entry is purged
	assert.Equal(t, 1, n)
	_, err := mem.Get(t.Context(), "session:b")
	assert.NoError(t, err)
}

func TestExpirySweeper_StartStop(t *testing.T) {
	s := NewExpirySweeper(store.NewMemory(), zerolog.Nop())
	s.Interval = 10 * time.Millisecond

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
