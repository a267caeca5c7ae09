/*
registry.go - id -> entity lookups built from bulk list responses

BEHAVIOUR:
  - Build is last-write-wins on duplicate ids
  - No referential checks against requests
  - Lookups never fail: a miss yields the label "<Type> #<id>"
  - A registry is rebuilt wholesale when its list is refetched

LOADING:
  LoadRegistries fetches the four lists concurrently and waits for all of
  them. Each fetch is guarded on its own: a failure logs and yields an
  empty registry, so every lookup against it falls back to labels.
*/
package approval

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	KindUser         = "User"
	KindDepartment   = "Department"
	KindBusinessUnit = "Business Unit"
	KindDesignation  = "Designation"
)

// FallbackLabel is the display value used when an id cannot be resolved.
func FallbackLabel(kind string, id int64) string {
	return fmt.Sprintf("%s #%d", kind, id)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps ids to entities. It is not safe for concurrent writes.
type Registry[K ~int64, V any] struct {
	kind    string
	key     func(V) K
	name    func(V) string
	entries map[K]V
}

// NewRegistry builds a registry from list. Later duplicates overwrite
// earlier ones.
func NewRegistry[K ~int64, V any](kind string, key func(V) K, name func(V) string, list []V) *Registry[K, V] {
	r := &Registry[K, V]{
		kind:    kind,
		key:     key,
		name:    name,
		entries: make(map[K]V, len(list)),
	}
	for _, v := range list {
		r.entries[key(v)] = v
	}
	return r
}

func (r *Registry[K, V]) Kind() string { return r.kind }
func (r *Registry[K, V]) Len() int     { return len(r.entries) }

func (r *Registry[K, V]) Get(id K) (V, bool) {
	v, ok := r.entries[id]
	return v, ok
}

func (r *Registry[K, V]) Has(id K) bool {
	_, ok := r.entries[id]
	return ok
}

// Put adds or replaces an entity.
func (r *Registry[K, V]) Put(v V) {
	r.entries[r.key(v)] = v
}

// Label returns the entity's display name, or the fallback label on a miss.
func (r *Registry[K, V]) Label(id K) string {
	if v, ok := r.entries[id]; ok {
		return r.name(v)
	}
	return FallbackLabel(r.kind, int64(id))
}

// =============================================================================
// PER-ENTITY CONSTRUCTORS
// =============================================================================

func NewUserRegistry(list []User) *Registry[UserID, User] {
	return NewRegistry(KindUser,
		func(u User) UserID { return u.ID },
		func(u User) string { return u.Name },
		list)
}

func NewDepartmentRegistry(list []Department) *Registry[DepartmentID, Department] {
	return NewRegistry(KindDepartment,
		func(d Department) DepartmentID { return d.ID },
		func(d Department) string { return d.Name },
		list)
}

func NewBusinessUnitRegistry(list []BusinessUnit) *Registry[BusinessUnitID, BusinessUnit] {
	return NewRegistry(KindBusinessUnit,
		func(b BusinessUnit) BusinessUnitID { return b.ID },
		func(b BusinessUnit) string { return b.Name },
		list)
}

func NewDesignationRegistry(list []Designation) *Registry[DesignationID, Designation] {
	return NewRegistry(KindDesignation,
		func(d Designation) DesignationID { return d.ID },
		func(d Designation) string { return d.Name },
		list)
}

// =============================================================================
// REGISTRIES - The four lookups a page needs
// =============================================================================

type Registries struct {
	Users         *Registry[UserID, User]
	Departments   *Registry[DepartmentID, Department]
	BusinessUnits *Registry[BusinessUnitID, BusinessUnit]
	Designations  *Registry[DesignationID, Designation]
}

// EmptyRegistries returns registries with no entries.
func EmptyRegistries() *Registries {
	return &Registries{
		Users:         NewUserRegistry(nil),
		Departments:   NewDepartmentRegistry(nil),
		BusinessUnits: NewBusinessUnitRegistry(nil),
		Designations:  NewDesignationRegistry(nil),
	}
}

// LoadRegistries fetches all four lists in parallel and builds the lookups.
// It never fails; see the file comment.
func LoadRegistries(ctx context.Context, dir Directory, log zerolog.Logger) *Registries {
	var (
		users         []User
		departments   []Department
		businessUnits []BusinessUnit
		designations  []Designation
		g             errgroup.Group
	)

	g.Go(func() error {
		users = guardedList(ctx, log, "users", dir.ListUsers)
		return nil
	})
	g.Go(func() error {
		departments = guardedList(ctx, log, "departments", dir.ListDepartments)
		return nil
	})
	g.Go(func() error {
		businessUnits = guardedList(ctx, log, "business_units", dir.ListBusinessUnits)
		return nil
	})
	g.Go(func() error {
		designations = guardedList(ctx, log, "designations", dir.ListDesignations)
		return nil
	})
	_ = g.Wait()

	return &Registries{
		Users:         NewUserRegistry(users),
		Departments:   NewDepartmentRegistry(departments),
		BusinessUnits: NewBusinessUnitRegistry(businessUnits),
		Designations:  NewDesignationRegistry(designations),
	}
}

func guardedList[T any](ctx context.Context, log zerolog.Logger, name string, fetch func(context.Context) ([]T, error)) []T {
	list, err := fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("list", name).Msg("registry: list fetch failed, using empty list")
		return nil
	}
	return list
}
