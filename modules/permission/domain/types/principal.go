package types

import "strings"

// Principal is the acting identity for one request. An empty UserID means the
// request is anonymous; an empty OrganizationID means the principal belongs
// to no organization. Built once at authentication time and never mutated.
type Principal struct {
	UserID         string
	Roles          []string
	OrganizationID string
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

func (p Principal) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RolesCSV renders the role set for store session binding
// (app.current_roles). Role names never contain commas: declared roles are
// rejected by the compiler and token roles are filtered through
// ValidRoleName before a Principal is built.
func (p Principal) RolesCSV() string {
	return strings.Join(p.Roles, ",")
}
