package services

import (
	"fmt"
	"strings"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// StorePolicyFragment is one declarative row policy compiled for the store
// layer. Fragments are projected from the same CompiledRule values the gate
// evaluates, so the two layers cannot drift apart.
type StorePolicyFragment struct {
	Table     string
	Name      string
	Command   string // SELECT, INSERT, UPDATE or DELETE
	Using     string
	WithCheck string
}

// RowPolicyFragments compiles a table's policy into its store projection:
// one row-visibility policy (SELECT) and three row-mutation policies
// (INSERT/UPDATE/DELETE), every predicate parameterized over
// current_setting() session variables the store binds per transaction.
func RowPolicyFragments(policy *CompiledPolicy) []StorePolicyFragment {
	org := ""
	if policy.OrgScoped() {
		org = orgPredicate(policy.OrganizationField)
	}

	return []StorePolicyFragment{
		{
			Table:   policy.Table,
			Name:    policy.Table + "_select",
			Command: "SELECT",
			Using:   andPredicates(org, RulePredicate(policy.OperationRule(types.OperationRead))),
		},
		{
			Table:     policy.Table,
			Name:      policy.Table + "_insert",
			Command:   "INSERT",
			WithCheck: andPredicates(org, RulePredicate(policy.OperationRule(types.OperationCreate))),
		},
		{
			Table:   policy.Table,
			Name:    policy.Table + "_update",
			Command: "UPDATE",
			Using:   andPredicates(org, RulePredicate(policy.OperationRule(types.OperationUpdate))),
			// The updated row must stay inside the organization; the
			// update rule itself is a visibility condition on the old
			// row, not a constraint on new values.
			WithCheck: andPredicates(org, "true"),
		},
		{
			Table:   policy.Table,
			Name:    policy.Table + "_delete",
			Command: "DELETE",
			Using:   andPredicates(org, RulePredicate(policy.OperationRule(types.OperationDelete))),
		},
	}
}

// RulePredicate renders the store-level predicate for one compiled rule.
// Every rule kind is expressible, which is what makes the dual-layer
// agreement guarantee total rather than custom-rule-only.
func RulePredicate(rule CompiledRule) string {
	switch rule.Kind {
	case types.RuleKindPublic:
		return "true"
	case types.RuleKindAuthenticated:
		return fmt.Sprintf("nullif(current_setting('%s', true), '') IS NOT NULL", SessionUserVar)
	case types.RuleKindRoles:
		quoted := make([]string, len(rule.Roles))
		for i, r := range rule.Roles {
			quoted[i] = "'" + r + "'"
		}
		return fmt.Sprintf("string_to_array(coalesce(current_setting('%s', true), ''), ',') && ARRAY[%s]",
			SessionRolesVar, strings.Join(quoted, ","))
	case types.RuleKindCustom:
		return rule.Condition.SQLPredicate()
	default:
		return "false"
	}
}

func orgPredicate(field string) string {
	return fmt.Sprintf("%s = nullif(current_setting('%s', true), '')", quoteIdent(field), SessionOrgVar)
}

func andPredicates(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" && p != "true" {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return "true"
	case 1:
		return kept[0]
	default:
		return "(" + strings.Join(kept, ") AND (") + ")"
	}
}

// PolicyDDL emits the statements that install a table's compiled row
// policies: row security enabled and forced, stale policies dropped,
// fragments recreated.
func PolicyDDL(policy *CompiledPolicy) []string {
	table := quoteIdent(policy.Table)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;", table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY;", table),
	}
	for _, f := range RowPolicyFragments(policy) {
		stmts = append(stmts, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", quoteIdent(f.Name), table))

		var b strings.Builder
		fmt.Fprintf(&b, "CREATE POLICY %s ON %s FOR %s", quoteIdent(f.Name), table, f.Command)
		if f.Using != "" {
			fmt.Fprintf(&b, " USING (%s)", f.Using)
		}
		if f.WithCheck != "" {
			fmt.Fprintf(&b, " WITH CHECK (%s)", f.WithCheck)
		}
		b.WriteString(";")
		stmts = append(stmts, b.String())
	}
	return stmts
}
