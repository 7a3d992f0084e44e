package auth

// Permission is a fine-grained capability key, formatted as "<resource>:<action>".
type Permission string

// User administration.
const (
	PermUserCreate Permission = "user:create"
	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"
	PermUserList   Permission = "user:list"
)

// Customer records.
const (
	PermCustomerCreate Permission = "customer:create"
	PermCustomerRead   Permission = "customer:read"
	PermCustomerUpdate Permission = "customer:update"
	PermCustomerDelete Permission = "customer:delete"
	PermCustomerList   Permission = "customer:list"
)

// Product catalog.
const (
	PermProductCreate Permission = "product:create"
	PermProductRead   Permission = "product:read"
	PermProductUpdate Permission = "product:update"
	PermProductDelete Permission = "product:delete"
	PermProductList   Permission = "product:list"
)

// Orders.
const (
	PermOrderCreate Permission = "order:create"
	PermOrderRead   Permission = "order:read"
	PermOrderUpdate Permission = "order:update"
	PermOrderDelete Permission = "order:delete"
	PermOrderList   Permission = "order:list"
)

// Search tiers.
const (
	PermSearchVector   Permission = "search:vector"
	PermSearchSemantic Permission = "search:semantic"
	PermSearchAdvanced Permission = "search:advanced"
)

// Analytics dashboards.
const (
	PermAnalyticsRead     Permission = "analytics:read"
	PermAnalyticsExport   Permission = "analytics:export"
	PermAnalyticsAdvanced Permission = "analytics:advanced"
)

// Suggestion engine.
const (
	PermRecommendationRead   Permission = "recommendation:read"
	PermRecommendationManage Permission = "recommendation:manage"
	PermSuggestionRead       Permission = "suggestion:read"
	PermActionPlanUpdate     Permission = "action_plan:update"
)

// Client preferences.
const (
	PermClientPreferencesCreate Permission = "client_preferences:create"
	PermClientPreferencesRead   Permission = "client_preferences:read"
	PermClientPreferencesUpdate Permission = "client_preferences:update"
	PermClientPreferencesDelete Permission = "client_preferences:delete"
)

// System and API administration.
const (
	PermSystemConfig  Permission = "system:config"
	PermSystemLogs    Permission = "system:logs"
	PermSystemBackup  Permission = "system:backup"
	PermSystemRestore Permission = "system:restore"

	PermAPIAccess Permission = "api:access"
	PermAPIAdmin  Permission = "api:admin"
)

// AllPermissions returns the full permission catalog known to this build.
func AllPermissions() []Permission {
	return []Permission{
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserList,
		PermCustomerCreate, PermCustomerRead, PermCustomerUpdate, PermCustomerDelete, PermCustomerList,
		PermProductCreate, PermProductRead, PermProductUpdate, PermProductDelete, PermProductList,
		PermOrderCreate, PermOrderRead, PermOrderUpdate, PermOrderDelete, PermOrderList,
		PermSearchVector, PermSearchSemantic, PermSearchAdvanced,
		PermAnalyticsRead, PermAnalyticsExport, PermAnalyticsAdvanced,
		PermRecommendationRead, PermRecommendationManage,
		PermSuggestionRead, PermActionPlanUpdate,
		PermClientPreferencesCreate, PermClientPreferencesRead,
		PermClientPreferencesUpdate, PermClientPreferencesDelete,
		PermSystemConfig, PermSystemLogs, PermSystemBackup, PermSystemRestore,
		PermAPIAccess, PermAPIAdmin,
	}
}

// Built-in role names seeded by NewRegistry.
const (
	RoleGuest      = "guest"
	RoleViewer     = "viewer"
	RoleOperator   = "operator"
	RoleAnalyst    = "analyst"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)
