package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// Placeholders a custom condition may reference. Each maps to a principal
// attribute and to the store session variable carrying it.
const (
	placeholderUserID = "userId"
	placeholderOrgID  = "orgId"

	principalUserKey = "user_id"
	principalOrgKey  = "org_id"

	// Session variables bound per transaction via set_config(..., true).
	SessionUserVar  = "app.current_user"
	SessionOrgVar   = "app.current_org"
	SessionRolesVar = "app.current_roles"
)

var (
	columnPattern      = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	placeholderPattern = regexp.MustCompile(`^\{([a-zA-Z]+)\}$`)
)

// CompiledCondition is the single parsed form of a custom condition such as
// "{userId} = owner_id". Both enforcement layers project from it: the CEL
// program evaluates rows in process, SQLPredicate emits the equivalent store
// predicate. The two are never hand-duplicated.
type CompiledCondition struct {
	Source      string
	Column      string
	Op          string // "=" or "!="
	Placeholder string // placeholderUserID or placeholderOrgID

	prg cel.Program
}

var conditionCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("principal", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// ParseCondition parses and compiles a custom condition against the declared
// column set. Anything the restricted grammar cannot express fails here, at
// schema-load time, so the store-level projection can never silently diverge
// from the in-process one.
func ParseCondition(source string, columns map[string]bool) (*CompiledCondition, error) {
	parts := strings.Fields(strings.TrimSpace(source))
	if len(parts) != 3 {
		return nil, fmt.Errorf("condition %q: expected '<lhs> <op> <rhs>'", source)
	}

	op := parts[1]
	if op != "=" && op != "!=" {
		return nil, fmt.Errorf("condition %q: unsupported operator %q", source, op)
	}

	lhs, rhs := parts[0], parts[2]
	var placeholder, column string
	switch {
	case placeholderPattern.MatchString(lhs):
		placeholder, column = placeholderPattern.FindStringSubmatch(lhs)[1], rhs
	case placeholderPattern.MatchString(rhs):
		placeholder, column = placeholderPattern.FindStringSubmatch(rhs)[1], lhs
	default:
		return nil, fmt.Errorf("condition %q: one side must be a principal placeholder", source)
	}

	if placeholder != placeholderUserID && placeholder != placeholderOrgID {
		return nil, fmt.Errorf("condition %q: unknown placeholder {%s}", source, placeholder)
	}
	if !columnPattern.MatchString(column) {
		return nil, fmt.Errorf("condition %q: invalid column %q", source, column)
	}
	if !columns[column] {
		return nil, fmt.Errorf("condition %q: column %q is not declared on the table", source, column)
	}

	c := &CompiledCondition{Source: source, Column: column, Op: op, Placeholder: placeholder}

	env, err := conditionCELEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(c.celExpr())
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("condition %q: %w", source, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", source, err)
	}
	c.prg = prg
	return c, nil
}

func (c *CompiledCondition) principalKey() string {
	if c.Placeholder == placeholderOrgID {
		return principalOrgKey
	}
	return principalUserKey
}

func (c *CompiledCondition) sessionVar() string {
	if c.Placeholder == placeholderOrgID {
		return SessionOrgVar
	}
	return SessionUserVar
}

func (c *CompiledCondition) celExpr() string {
	celOp := "=="
	if c.Op == "!=" {
		celOp = "!="
	}
	// An absent principal attribute never matches, mirroring the NULL-safe
	// store predicate.
	return fmt.Sprintf(`principal[%q] != "" && row[%q] %s principal[%q]`,
		c.principalKey(), c.Column, celOp, c.principalKey())
}

// EvaluateRow decides whether the condition admits the row for the
// principal. A row missing the referenced column never matches.
func (c *CompiledCondition) EvaluateRow(p types.Principal, row map[string]any) bool {
	if row == nil {
		return false
	}
	if _, ok := row[c.Column]; !ok {
		return false
	}
	out, _, err := c.prg.Eval(map[string]any{
		"row": row,
		"principal": map[string]string{
			principalUserKey: p.UserID,
			principalOrgKey:  p.OrganizationID,
		},
	})
	if err != nil {
		return false
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed
}

// SQLPredicate renders the store-level projection of the condition. The
// session variable is read NULL-safe so an unbound session admits nothing.
func (c *CompiledCondition) SQLPredicate() string {
	setting := fmt.Sprintf("nullif(current_setting('%s', true), '')", c.sessionVar())
	col := quoteIdent(c.Column)
	if c.Op == "!=" {
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> %s)", setting, col, setting)
	}
	return fmt.Sprintf("%s = %s", col, setting)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
