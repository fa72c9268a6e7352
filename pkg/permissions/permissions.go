// Package permissions implements the resource/action model every pharmacy
// operation is gated on.
//
// Permission Format:
//   - "resource.action" - a single grant, e.g. "orders.change"
//   - "resource.*" - every action on a resource, expanded on load
//   - "*" - everything, expanded on load
//
// Superusers bypass every check. Inactive principals and principals with no
// role are denied.
package permissions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// Resource is a guarded entity family.
type Resource string

const (
	Products  Resource = "products"
	Lots      Resource = "lots"
	Movements Resource = "movements"
	Suppliers Resource = "suppliers"
	Orders    Resource = "orders"
	Locations Resource = "locations"
	Services  Resource = "services"
	Users     Resource = "users"
	Roles     Resource = "roles"
	Dashboard Resource = "dashboard"
	Journal   Resource = "journal"
)

// Action is what is done to a resource.
type Action string

const (
	View   Action = "view"
	Add    Action = "add"
	Change Action = "change"
	Delete Action = "delete"
)

// Resources lists every resource in display order.
var Resources = []Resource{
	Products, Lots, Movements, Suppliers, Orders, Locations,
	Services, Users, Roles, Dashboard, Journal,
}

// Actions lists every action in display order.
var Actions = []Action{View, Add, Change, Delete}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Permission is one resource/action grant.
type Permission struct {
	Resource Resource
	Action   Action
}

// String renders "resource.action".
func (p Permission) String() string {
	return string(p.Resource) + "." + string(p.Action)
}

// Key renders the flag name exposed to clients, e.g. can_change_orders.
func (p Permission) Key() string {
	return "can_" + string(p.Action) + "_" + string(p.Resource)
}

// Parse reads a single "resource.action" grant.
func Parse(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
	p := Permission{Resource: Resource(resource), Action: Action(action)}
	if !p.Resource.Valid() {
		return Permission{}, fmt.Errorf("unknown resource %q", resource)
	}
	if !p.Action.Valid() {
		return Permission{}, fmt.Errorf("unknown action %q", action)
	}
	return p, nil
}

// Expand turns a grant pattern into concrete permissions. Supports "*" and
// "resource.*".
func Expand(pattern string) ([]Permission, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		out := make([]Permission, 0, len(Resources)*len(Actions))
		for _, r := range Resources {
			for _, a := range Actions {
				out = append(out, Permission{Resource: r, Action: a})
			}
		}
		return out, nil
	}

	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		r := Resource(prefix)
		if !r.Valid() {
			return nil, fmt.Errorf("unknown resource %q", prefix)
		}
		out := make([]Permission, 0, len(Actions))
		for _, a := range Actions {
			out = append(out, Permission{Resource: r, Action: a})
		}
		return out, nil
	}

	p, err := Parse(pattern)
	if err != nil {
		return nil, err
	}
	return []Permission{p}, nil
}

// Set is a collection of granted permissions.
type Set map[Permission]struct{}

// NewSet builds a set from perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// ParseSet expands and merges every pattern. Duplicates collapse.
func ParseSet(patterns []string) (Set, error) {
	s := make(Set)
	for _, pattern := range patterns {
		perms, err := Expand(pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			s[p] = struct{}{}
		}
	}
	return s, nil
}

// Has reports whether the set grants action on resource.
func (s Set) Has(resource Resource, action Action) bool {
	_, ok := s[Permission{Resource: resource, Action: action}]
	return ok
}

// Strings returns the grants sorted, for storage and events.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// Principal is a user as seen by authorization.
type Principal struct {
	ID          string  `db:"id" json:"id"`
	Username    string  `db:"username" json:"username"`
	RoleID      *string `db:"role_id" json:"role_id,omitempty"`
	IsSuperuser bool    `db:"is_superuser" json:"is_superuser"`
	IsActive    bool    `db:"is_active" json:"is_active"`
	ServiceID   *string `db:"service_id" json:"service_id,omitempty"`
	Permissions Set     `db:"-" json:"-"`
}

// Can reports whether p may perform action on resource.
func (p *Principal) Can(resource Resource, action Action) bool {
	if p == nil {
		return false
	}
	if p.IsSuperuser {
		return true
	}
	if !p.IsActive || p.RoleID == nil {
		return false
	}
	return p.Permissions.Has(resource, action)
}

// Check returns an InsufficientAuthorization error unless p may perform
// action on resource.
func Check(p *Principal, resource Resource, action Action) error {
	if p.Can(resource, action) {
		return nil
	}
	return errors.InsufficientAuthorization(string(resource), string(action))
}

// PermissionMap returns a can_<action>_<resource> flag for every pair.
func PermissionMap(p *Principal) map[string]bool {
	out := make(map[string]bool, len(Resources)*len(Actions))
	for _, r := range Resources {
		for _, a := range Actions {
			out[Permission{Resource: r, Action: a}.Key()] = p.Can(r, a)
		}
	}
	return out
}
