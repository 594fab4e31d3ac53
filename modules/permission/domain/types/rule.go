package types

import "regexp"

var roleNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidRoleName reports whether a role name is usable in rules and session
// bindings. The alphabet deliberately excludes commas and quotes: role sets
// travel through the store as a comma-joined session variable and as quoted
// SQL array literals, and a name that could smuggle a separator would let
// one role impersonate another at the store layer. Both the declaration
// compiler and the token parser enforce this.
func ValidRoleName(s string) bool {
	return roleNamePattern.MatchString(s)
}

// RuleKind tags the declarative rule variants an operator may write in a
// table declaration. RuleKindDeny never appears in declarations; the compiler
// uses it for absent rules (deny by default).
type RuleKind string

const (
	RuleKindPublic        RuleKind = "public"
	RuleKindAuthenticated RuleKind = "authenticated"
	RuleKindRoles         RuleKind = "roles"
	RuleKindCustom        RuleKind = "custom"
	RuleKindDeny          RuleKind = "deny"
)

// Rule is one declared permission rule. Roles is set only for kind "roles",
// Condition only for kind "custom". Rules are not evaluated directly; the
// compiler validates them and produces the request-time representation.
type Rule struct {
	Kind      RuleKind `json:"kind"`
	Roles     []string `json:"roles,omitempty"`
	Condition string   `json:"condition,omitempty"`
}
