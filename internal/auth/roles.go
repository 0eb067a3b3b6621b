package auth

import "strings"

// Role is the caller role carried in the token's "role" claim.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []Role{RoleViewer, RoleOperator, RoleAdmin}

// NormalizeRole maps a claim value onto a known role, ignoring case and
// surrounding space.
func NormalizeRole(value string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, role := range roleOrder {
		if role == candidate {
			return role, true
		}
	}
	return "", false
}

// Satisfies reports whether r grants at least required. An unknown role
// satisfies nothing.
func (r Role) Satisfies(required Role) bool {
	have := r.rank()
	return have > 0 && have >= required.rank()
}

func (r Role) rank() int {
	for i, role := range roleOrder {
		if role == r {
			return i + 1
		}
	}
	return 0
}
