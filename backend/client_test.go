package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/approval-desk/approval"
	"github.com/warp/approval-desk/backend"
	"github.com/warp/approval-desk/sandbox"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// tokenRecorder keeps the Authorization headers the sandbox received.
type tokenRecorder struct {
	mu      sync.Mutex
	headers []string
}

func (tr *tokenRecorder) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr.mu.Lock()
		tr.headers = append(tr.headers, r.Header.Get("Authorization"))
		tr.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (tr *tokenRecorder) last() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.headers) == 0 {
		return ""
	}
	return tr.headers[len(tr.headers)-1]
}

func newTestClient(t *testing.T) (*backend.Client, *sandbox.Backend, *tokenRecorder) {
	t.Helper()
	sb := sandbox.NewSeeded()
	rec := &tokenRecorder{}

	r := chi.NewRouter()
	r.Use(rec.wrap)
	r.Mount("/api", sb.Router())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return backend.NewClient(srv.URL+"/api", "service-token", 5*time.Second), sb, rec
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestClient_Lists(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	users, err := c.ListUsers(ctx) // paginated
	require.NoError(t, err)
	assert.Len(t, users, 6)

	depts, err := c.ListDepartments(ctx) // bare
	require.NoError(t, err)
	assert.Len(t, depts, 3)

	bus, err := c.ListBusinessUnits(ctx)
	require.NoError(t, err)
	assert.Len(t, bus, 2)

	desigs, err := c.ListDesignations(ctx)
	require.NoError(t, err)
	require.Len(t, desigs, 4)
	assert.Equal(t, 4, desigs[3].Level)
}

func TestClient_FollowsNextLinks(t *testing.T) {
	// GIVEN: A page size smaller than the user count
	c, sb, _ := newTestClient(t)
	sb.PageSize = 2

	// WHEN: Listing users
	users, err := c.ListUsers(context.Background())

	// THEN: All pages are collected in order
	require.NoError(t, err)
	require.Len(t, users, 6)
	assert.Equal(t, sandbox.UserAsha, users[0].ID)
	assert.Equal(t, sandbox.UserVikram, users[5].ID)
}

func TestClient_MaxPagesBoundsPagination(t *testing.T) {
	c, sb, _ := newTestClient(t)
	sb.PageSize = 2
	c.MaxPages = 2

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestClient_RefusesNextLinkToAnotherHost(t *testing.T) {
	// GIVEN: A backend whose first page links to a different server
	foreign := &tokenRecorder{}
	other := httptest.NewServer(foreign.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})))
	t.Cleanup(other.Close)

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 2, "next": "` + other.URL + `/api/userInfo/?page=2", "previous": null,
			"results": [{"id": 1, "name": "Asha Nair", "email": "asha@example.com"}]}`))
	}))
	t.Cleanup(primary.Close)

	c := backend.NewClient(primary.URL+"/api", "service-token", 5*time.Second)

	// WHEN: Listing users with a viewer token
	_, err := c.ListUsers(backend.WithToken(context.Background(), "viewer-token"))

	// THEN: The link is refused and the other server never sees the token
	assert.ErrorIs(t, err, backend.ErrForeignLink)
	assert.Empty(t, foreign.headers)
}

func TestClient_FollowsRelativeNextLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`{"count": 2, "next": null, "previous": null,
				"results": [{"id": 2, "name": "Ravi Kumar", "email": "ravi@example.com"}]}`))
			return
		}
		w.Write([]byte(`{"count": 2, "next": "/api/userInfo/?page=2", "previous": null,
			"results": [{"id": 1, "name": "Asha Nair", "email": "asha@example.com"}]}`))
	}))
	t.Cleanup(srv.Close)

	c := backend.NewClient(srv.URL+"/api", "", 5*time.Second)

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ravi Kumar", users[1].Name)
}

func TestClient_Details(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	u, err := c.GetUser(ctx, sandbox.UserRavi)
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", u.Name)
	require.NotNil(t, u.Designation)
	assert.Equal(t, sandbox.DesigManager, *u.Designation)

	d, err := c.GetDepartment(ctx, sandbox.DeptFinance)
	require.NoError(t, err)
	assert.Equal(t, sandbox.BUCorporate, d.BusinessUnit)

	_, err = c.GetDepartment(ctx, 999)
	assert.ErrorIs(t, err, approval.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, backend.StatusCode(err))
}

// =============================================================================
// AUTH
// =============================================================================

func TestClient_ForwardsContextToken(t *testing.T) {
	c, _, rec := newTestClient(t)

	_, err := c.GetUser(context.Background(), sandbox.UserAsha)
	require.NoError(t, err)
	assert.Equal(t, "Bearer service-token", rec.last())

	ctx := backend.WithToken(context.Background(), "viewer-token")
	_, err = c.GetUser(ctx, sandbox.UserAsha)
	require.NoError(t, err)
	assert.Equal(t, "Bearer viewer-token", rec.last())
}

// =============================================================================
// WORKFLOW
// =============================================================================

func TestClient_ApproveAdvancesLevel(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	err := c.ApproveRequest(ctx, sandbox.ReqLaptops, approval.ActionPayload{Level: 2, Designation: sandbox.DesigManager})
	require.NoError(t, err)

	r, err := c.GetRequest(ctx, sandbox.ReqLaptops)
	require.NoError(t, err)
	assert.Equal(t, 3, r.CurrentLevel)
	assert.Equal(t, approval.StatusPending, r.CurrentStatus)
}

func TestClient_ActionOnTerminalRequestConflicts(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.RejectRequest(context.Background(), sandbox.ReqRejected, approval.ActionPayload{Level: 2, Reason: "Still not needed"})

	var httpErr *backend.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, http.MethodPost, httpErr.Method)
	assert.Contains(t, httpErr.Path, "/reject/")
}

func TestClient_ListRequestsFilters(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	pending, err := c.ListRequests(ctx, backend.RequestFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	ops, err := c.ListRequests(ctx, backend.RequestFilter{Department: sandbox.DeptOperations})
	require.NoError(t, err)
	assert.Len(t, ops, 4)
}

func TestClient_RequestDetails(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	items, err := c.ListItems(ctx, sandbox.ReqLaptops)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	attachments, err := c.ListAttachments(ctx, sandbox.ReqLaptops)
	require.NoError(t, err)
	assert.Len(t, attachments, 1)

	comments, err := c.ListComments(ctx, sandbox.ReqLaptops)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	posted, err := c.PostComment(ctx, approval.Comment{
		Request: sandbox.ReqLaptops, Author: sandbox.UserRavi, Text: "Checked the quote", Level: 2,
	})
	require.NoError(t, err)
	assert.NotZero(t, posted.ID)

	comments, err = c.ListComments(ctx, sandbox.ReqLaptops)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Checked the quote", comments[1].Text)
}

func TestClient_Approvers(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateApprover(ctx, approval.Approver{
		User: sandbox.UserPriya, BusinessUnit: sandbox.BURetail, Department: sandbox.DeptMarketing, Level: 1,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	list, err := c.ListApprovers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	require.NoError(t, c.DeleteApprover(ctx, created.ID))
	assert.ErrorIs(t, c.DeleteApprover(ctx, created.ID), approval.ErrNotFound)

	_, err = c.CreateApprover(ctx, approval.Approver{User: sandbox.UserPriya, Level: 0})
	assert.True(t, approval.IsValidation(err))
}
