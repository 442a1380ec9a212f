package models

// PermissionEntry is the policy for a single resource.
type PermissionEntry struct {
	Operations  map[string]struct{}
	RequireAuth bool
}

// Allows reports whether operation is listed for the resource.
func (p PermissionEntry) Allows(operation string) bool {
	_, ok := p.Operations[operation]
	return ok
}

// Permission represents a resource:action permission
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// String returns the permission in "resource:action" format
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}
