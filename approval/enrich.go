/*
enrich.go - Attach display names to raw records

PIPELINE:
  1. Collect the UNIQUE foreign ids of the batch, per entity type
  2. Drop ids already known (registries built from bulk lists, or this
     enricher's own cache)
  3. Fetch each remaining id exactly once, in parallel
  4. Map every record to its enriched form, in input order

FAILURES:
  A failed fetch is logged and that id falls back to its label
  ("Department #7"). Nothing aborts the batch.

SCOPE:
  An Enricher and its cache belong to one page load / one API request.
  Build a new one per request; nothing is shared between requests.
*/
package approval

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultEnrichConcurrency = 8

// =============================================================================
// ENRICHED RECORDS
// =============================================================================

// EnrichedRequest keeps every raw field and adds display fields.
type EnrichedRequest struct {
	ApprovalRequest

	UserName         string `json:"user_name"`
	UserEmail        string `json:"user_email"`
	DepartmentName   string `json:"department_name"`
	BusinessUnitName string `json:"business_unit_name"`
	DesignationName  string `json:"designation_name"`
	FormattedDate    string `json:"formatted_date"`
	FormattedTotal   string `json:"formatted_total"`
	TotalInWords     string `json:"total_in_words"`
}

type EnrichedApprover struct {
	Approver

	UserName         string `json:"user_name"`
	UserEmail        string `json:"user_email"`
	DepartmentName   string `json:"department_name"`
	BusinessUnitName string `json:"business_unit_name"`
}

type EnrichedComment struct {
	Comment

	AuthorName    string `json:"author_name"`
	FormattedTime string `json:"formatted_time"`
}

// =============================================================================
// ENRICHER
// =============================================================================

type Enricher struct {
	Directory   Directory
	Registries  *Registries
	Dates       DateFormatter
	Concurrency int
	Log         zerolog.Logger

	mu    sync.Mutex
	cache *Registries
}

// NewEnricher returns an enricher over regs. A nil regs behaves as empty
// registries: every id will be fetched.
func NewEnricher(dir Directory, regs *Registries, log zerolog.Logger) *Enricher {
	if regs == nil {
		regs = EmptyRegistries()
	}
	return &Enricher{
		Directory:   dir,
		Registries:  regs,
		Concurrency: DefaultEnrichConcurrency,
		Log:         log,
		cache:       EmptyRegistries(),
	}
}

// refs is the set of foreign ids a batch references.
type refs struct {
	users         []UserID
	departments   []DepartmentID
	businessUnits []BusinessUnitID
	designations  []DesignationID
}

// Requests enriches a batch of requests.
func (e *Enricher) Requests(ctx context.Context, reqs []ApprovalRequest) []EnrichedRequest {
	var ids refs
	for _, r := range reqs {
		ids.users = append(ids.users, r.User)
		ids.departments = append(ids.departments, r.Department)
		ids.businessUnits = append(ids.businessUnits, r.BusinessUnit)
		ids.designations = append(ids.designations, r.Designation)
	}
	e.resolve(ctx, ids)

	out := make([]EnrichedRequest, len(reqs))
	for i, r := range reqs {
		out[i] = e.request(r)
	}
	return out
}

// Request enriches a single request.
func (e *Enricher) Request(ctx context.Context, r ApprovalRequest) EnrichedRequest {
	return e.Requests(ctx, []ApprovalRequest{r})[0]
}

// Approvers enriches approver assignments.
func (e *Enricher) Approvers(ctx context.Context, list []Approver) []EnrichedApprover {
	var ids refs
	for _, a := range list {
		ids.users = append(ids.users, a.User)
		ids.departments = append(ids.departments, a.Department)
		ids.businessUnits = append(ids.businessUnits, a.BusinessUnit)
	}
	e.resolve(ctx, ids)

	out := make([]EnrichedApprover, len(list))
	for i, a := range list {
		out[i] = EnrichedApprover{
			Approver:         a,
			UserName:         e.userName(a.User),
			UserEmail:        e.userEmail(a.User),
			DepartmentName:   e.departmentName(a.Department),
			BusinessUnitName: e.businessUnitName(a.BusinessUnit),
		}
	}
	return out
}

// Comments enriches chat messages with author names.
func (e *Enricher) Comments(ctx context.Context, list []Comment) []EnrichedComment {
	var ids refs
	for _, c := range list {
		ids.users = append(ids.users, c.Author)
	}
	e.resolve(ctx, ids)

	out := make([]EnrichedComment, len(list))
	for i, c := range list {
		out[i] = EnrichedComment{
			Comment:       c,
			AuthorName:    e.userName(c.Author),
			FormattedTime: FormatTime(c.Timestamp.In(e.Dates.location())),
		}
	}
	return out
}

// Viewer resolves the viewer's designation level, fetching the designation
// when the registries do not have it.
func (e *Enricher) Viewer(ctx context.Context, u User) Viewer {
	if u.Designation != nil {
		e.resolve(ctx, refs{designations: []DesignationID{*u.Designation}})
	}
	v := ViewerFor(u, e.Registries)
	if !v.HasDesignation() {
		e.mu.Lock()
		v = ViewerFor(u, e.cache)
		e.mu.Unlock()
	}
	return v
}

func (e *Enricher) request(r ApprovalRequest) EnrichedRequest {
	return EnrichedRequest{
		ApprovalRequest:  r,
		UserName:         e.userName(r.User),
		UserEmail:        e.userEmail(r.User),
		DepartmentName:   e.departmentName(r.Department),
		BusinessUnitName: e.businessUnitName(r.BusinessUnit),
		DesignationName:  e.designationName(r.Designation),
		FormattedDate:    e.Dates.Format(r.Date),
		FormattedTotal:   FormatCurrency(r.Total),
		TotalInWords:     AmountInWords(r.Total),
	}
}

// =============================================================================
// RESOLUTION
// =============================================================================

// resolve fetches every id in ids that neither the registries nor the cache
// know. Each id is fetched once; fetches run in parallel.
func (e *Enricher) resolve(ctx context.Context, ids refs) {
	e.mu.Lock()
	users := unknown(ids.users, e.Registries.Users, e.cache.Users)
	departments := unknown(ids.departments, e.Registries.Departments, e.cache.Departments)
	businessUnits := unknown(ids.businessUnits, e.Registries.BusinessUnits, e.cache.BusinessUnits)
	designations := unknown(ids.designations, e.Registries.Designations, e.cache.Designations)
	e.mu.Unlock()

	if len(users)+len(departments)+len(businessUnits)+len(designations) == 0 {
		return
	}

	var g errgroup.Group
	limit := e.Concurrency
	if limit <= 0 {
		limit = DefaultEnrichConcurrency
	}
	g.SetLimit(limit)

	fetchInto(ctx, e, &g, users, e.Directory.GetUser, e.cache.Users)
	fetchInto(ctx, e, &g, departments, e.Directory.GetDepartment, e.cache.Departments)
	fetchInto(ctx, e, &g, businessUnits, e.Directory.GetBusinessUnit, e.cache.BusinessUnits)
	fetchInto(ctx, e, &g, designations, e.Directory.GetDesignation, e.cache.Designations)

	_ = g.Wait()
}

// unknown returns the distinct ids, in first-seen order, that none of the
// registries contain. Zero ids are skipped: they mean "not set".
func unknown[K ~int64, V any](ids []K, known ...*Registry[K, V]) []K {
	seen := make(map[K]struct{}, len(ids))
	var out []K
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		found := false
		for _, r := range known {
			if r.Has(id) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

func fetchInto[K ~int64, V any](
	ctx context.Context,
	e *Enricher,
	g *errgroup.Group,
	ids []K,
	fetch func(context.Context, K) (*V, error),
	cache *Registry[K, V],
) {
	for _, id := range ids {
		g.Go(func() error {
			v, err := fetch(ctx, id)
			if err != nil {
				e.Log.Warn().Err(err).
					Str("kind", cache.Kind()).
					Int64("id", int64(id)).
					Msg("enrich: lookup failed, using fallback label")
				return nil
			}
			if v == nil {
				return nil
			}
			e.mu.Lock()
			cache.Put(*v)
			e.mu.Unlock()
			return nil
		})
	}
}

// =============================================================================
// LABELS
// =============================================================================

func lookup[K ~int64, V any](id K, regs ...*Registry[K, V]) (V, bool) {
	for _, r := range regs {
		if v, ok := r.Get(id); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (e *Enricher) userName(id UserID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if u, ok := lookup(id, e.Registries.Users, e.cache.Users); ok {
		return u.Name
	}
	return FallbackLabel(KindUser, int64(id))
}

func (e *Enricher) userEmail(id UserID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if u, ok := lookup(id, e.Registries.Users, e.cache.Users); ok {
		return u.Email
	}
	return ""
}

func (e *Enricher) departmentName(id DepartmentID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := lookup(id, e.Registries.Departments, e.cache.Departments); ok {
		return d.Name
	}
	return FallbackLabel(KindDepartment, int64(id))
}

func (e *Enricher) businessUnitName(id BusinessUnitID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := lookup(id, e.Registries.BusinessUnits, e.cache.BusinessUnits); ok {
		return b.Name
	}
	return FallbackLabel(KindBusinessUnit, int64(id))
}

func (e *Enricher) designationName(id DesignationID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := lookup(id, e.Registries.Designations, e.cache.Designations); ok {
		return d.Name
	}
	return FallbackLabel(KindDesignation, int64(id))
}
