package auth

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RoleDefinition is a named, flattened permission set. Parent roles listed in
// InheritsFrom were copied in when the role was defined; later edits to a
// parent do not propagate.
type RoleDefinition struct {
	Name         string
	Description  string
	Permissions  map[Permission]struct{}
	InheritsFrom []string
}

// HasPermission reports whether the role grants the given permission.
func (r RoleDefinition) HasPermission(perm Permission) bool {
	_, ok := r.Permissions[perm]
	return ok
}

// Registry resolves effective permission sets for users from role assignments
// and direct grants. All state is in-memory and safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	roles      map[string]RoleDefinition
	userRoles  map[string]map[string]struct{}
	userGrants map[string]map[Permission]struct{}
	effective  map[string]map[Permission]struct{}
}

// NewRegistry constructs a registry seeded with the built-in role hierarchy.
// Each built-in role inherits the previous tier; super_admin is the union of
// the whole catalog as it exists now and does not absorb permissions
// registered later.
func NewRegistry() *Registry {
	r := &Registry{
		roles:      make(map[string]RoleDefinition),
		userRoles:  make(map[string]map[string]struct{}),
		userGrants: make(map[string]map[Permission]struct{}),
		effective:  make(map[string]map[Permission]struct{}),
	}
	r.seedDefaults()
	return r
}

func (r *Registry) seedDefaults() {
	must := func(err error) {
		if err != nil {
			panic(fmt.Sprintf("auth: seed default roles: %v", err))
		}
	}

	must(r.DefineRole(RoleGuest, "Unauthenticated API consumer", []Permission{
		PermAPIAccess,
	}))
	must(r.DefineRole(RoleViewer, "Read-only access to business records", []Permission{
		PermCustomerRead, PermCustomerList,
		PermProductRead, PermProductList,
		PermOrderRead, PermOrderList,
		PermSearchVector,
		PermRecommendationRead,
	}, RoleGuest))
	must(r.DefineRole(RoleOperator, "Day-to-day record handling", []Permission{
		PermCustomerCreate, PermCustomerUpdate,
		PermOrderCreate, PermOrderUpdate,
		PermSearchSemantic,
	}, RoleViewer))
	must(r.DefineRole(RoleAnalyst, "Analytics and reporting", []Permission{
		PermSearchAdvanced,
		PermAnalyticsRead, PermAnalyticsExport, PermAnalyticsAdvanced,
		PermClientPreferencesRead,
		PermSuggestionRead,
	}, RoleOperator))
	must(r.DefineRole(RoleManager, "Team management and curation", []Permission{
		PermUserRead, PermUserList,
		PermCustomerDelete,
		PermProductCreate, PermProductUpdate, PermProductDelete,
		PermOrderDelete,
		PermRecommendationManage,
		PermClientPreferencesCreate, PermClientPreferencesUpdate, PermClientPreferencesDelete,
		PermActionPlanUpdate,
	}, RoleAnalyst))
	must(r.DefineRole(RoleAdmin, "System administration", []Permission{
		PermUserCreate, PermUserUpdate, PermUserDelete,
		PermAPIAdmin,
		PermSystemConfig, PermSystemLogs,
	}, RoleManager))
	must(r.DefineRole(RoleSuperAdmin, "All permissions", AllPermissions()))
}

// DefineRole stores a role whose permission set is the given permissions
// unioned with the current sets of the named parent roles. Flattening happens
// once, here; no reference to the parents is kept.
func (r *Registry) DefineRole(name, description string, perms []Permission, inheritsFrom ...string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	for _, parent := range inheritsFrom {
		def, ok := r.roles[parent]
		if !ok {
			return fmt.Errorf("%w: parent role %q", ErrNotFound, parent)
		}
		for p := range def.Permissions {
			set[p] = struct{}{}
		}
	}

	r.roles[name] = RoleDefinition{
		Name:         name,
		Description:  strings.TrimSpace(description),
		Permissions:  set,
		InheritsFrom: append([]string(nil), inheritsFrom...),
	}
	return nil
}

// AssignRole adds a role to the user's role set and recomputes the cached
// effective permissions.
func (r *Registry) AssignRole(userID, roleName string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[roleName]; !ok {
		return fmt.Errorf("%w: role %q", ErrNotFound, roleName)
	}
	set, ok := r.userRoles[userID]
	if !ok {
		set = make(map[string]struct{})
		r.userRoles[userID] = set
	}
	set[roleName] = struct{}{}
	r.recompute(userID)
	return nil
}

// RemoveRole removes a role from the user's role set and recomputes the
// cached effective permissions.
func (r *Registry) RemoveRole(userID, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userRoles[userID]
	if !ok {
		return fmt.Errorf("%w: user %q has no roles", ErrNotFound, userID)
	}
	if _, ok := set[roleName]; !ok {
		return fmt.Errorf("%w: role %q not assigned", ErrNotFound, roleName)
	}
	delete(set, roleName)
	if len(set) == 0 {
		delete(r.userRoles, userID)
	}
	r.recompute(userID)
	return nil
}

// GrantPermission adds a direct grant, independent of any role.
func (r *Registry) GrantPermission(userID string, perm Permission) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userGrants[userID]
	if !ok {
		set = make(map[Permission]struct{})
		r.userGrants[userID] = set
	}
	set[perm] = struct{}{}
	r.recompute(userID)
	return nil
}

// RevokePermission removes a direct grant. Role-derived permissions are
// unaffected.
func (r *Registry) RevokePermission(userID string, perm Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userGrants[userID]
	if !ok {
		return fmt.Errorf("%w: user %q has no direct grants", ErrNotFound, userID)
	}
	if _, ok := set[perm]; !ok {
		return fmt.Errorf("%w: permission %q not granted", ErrNotFound, perm)
	}
	delete(set, perm)
	if len(set) == 0 {
		delete(r.userGrants, userID)
	}
	r.recompute(userID)
	return nil
}

// recompute rebuilds the cached effective set: union of all assigned roles'
// flattened sets plus direct grants. Caller holds r.mu.
func (r *Registry) recompute(userID string) {
	perms := make(map[Permission]struct{})
	for roleName := range r.userRoles[userID] {
		if def, ok := r.roles[roleName]; ok {
			for p := range def.Permissions {
				perms[p] = struct{}{}
			}
		}
	}
	for p := range r.userGrants[userID] {
		perms[p] = struct{}{}
	}
	if len(perms) == 0 {
		delete(r.effective, userID)
		return
	}
	r.effective[userID] = perms
}

// HasPermission reports whether the user's cached effective set contains the
// permission. Unknown users have no permissions.
func (r *Registry) HasPermission(userID string, perm Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.effective[userID]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAnyPermission reports whether the user holds at least one of the given
// permissions.
func (r *Registry) HasAnyPermission(userID string, perms ...Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.effective[userID]
	if !ok {
		return false
	}
	for _, p := range perms {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every one of the given
// permissions.
func (r *Registry) HasAllPermissions(userID string, perms ...Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.effective[userID]
	if !ok {
		return false
	}
	for _, p := range perms {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

// HasRole reports whether the role is assigned to the user.
func (r *Registry) HasRole(userID, roleName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.userRoles[userID]
	if !ok {
		return false
	}
	_, ok = set[roleName]
	return ok
}

// UserRoles returns the user's assigned role names, sorted.
func (r *Registry) UserRoles(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.userRoles[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// UserPermissions returns the user's effective permission keys, sorted.
func (r *Registry) UserPermissions(userID string) []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.effective[userID]
	if !ok {
		return nil
	}
	return sortedPermissions(set)
}

// RolePermissions returns the flattened permission set of a role, sorted.
func (r *Registry) RolePermissions(roleName string) ([]Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.roles[roleName]
	if !ok {
		return nil, fmt.Errorf("%w: role %q", ErrNotFound, roleName)
	}
	return sortedPermissions(def.Permissions), nil
}

// Role returns a copy of the stored role definition.
func (r *Registry) Role(roleName string) (RoleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.roles[roleName]
	if !ok {
		return RoleDefinition{}, false
	}
	perms := make(map[Permission]struct{}, len(def.Permissions))
	for p := range def.Permissions {
		perms[p] = struct{}{}
	}
	return RoleDefinition{
		Name:         def.Name,
		Description:  def.Description,
		Permissions:  perms,
		InheritsFrom: append([]string(nil), def.InheritsFrom...),
	}, true
}

// RoleNames lists all defined roles, sorted.
func (r *Registry) RoleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.roles))
	for name := range r.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ClearUser drops the user's roles, direct grants and cached permissions.
func (r *Registry) ClearUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.userRoles, userID)
	delete(r.userGrants, userID)
	delete(r.effective, userID)
}

func sortedPermissions(set map[Permission]struct{}) []Permission {
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
