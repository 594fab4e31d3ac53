package services

import (
	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// CompiledRule is the request-ready form of a declared rule. For custom
// rules the condition carries both enforcement projections.
type CompiledRule struct {
	Kind      types.RuleKind
	Roles     []string
	Condition *CompiledCondition
}

var denyRule = CompiledRule{Kind: types.RuleKindDeny}

// Allows evaluates the rule for a principal. row is the candidate row for
// custom conditions; a nil row defers the custom check to the row-security
// layer (the store filters identically), so it reports true here.
func (r CompiledRule) Allows(p types.Principal, row map[string]any) bool {
	switch r.Kind {
	case types.RuleKindPublic:
		return true
	case types.RuleKindAuthenticated:
		return p.Authenticated()
	case types.RuleKindRoles:
		return p.HasAnyRole(r.Roles)
	case types.RuleKindCustom:
		if row == nil {
			return true
		}
		return r.Condition.EvaluateRow(p, row)
	default:
		return false
	}
}

// CompiledField carries the flattened read and write rules for one field.
// Writes resolve separately per operation because inheritance differs:
// an absent field write rule falls back to the table create rule on create
// and the table update rule on update.
type CompiledField struct {
	Name        string
	System      bool
	Read        CompiledRule
	CreateWrite CompiledRule
	UpdateWrite CompiledRule
}

func (f CompiledField) writeRule(op types.Operation) CompiledRule {
	if op == types.OperationCreate {
		return f.CreateWrite
	}
	return f.UpdateWrite
}

// CompiledPolicy is the immutable resolution of one table's declaration:
// per-operation rules and per-field rules with inheritance flattened, shared
// read-only across concurrent requests. Rebuild and swap, never mutate.
type CompiledPolicy struct {
	Table             string
	OrganizationField string
	Operations        map[types.Operation]CompiledRule
	Fields            []CompiledField // declared order; write denial reports the first offender in this order

	fieldIndex map[string]int
}

func (p *CompiledPolicy) OperationRule(op types.Operation) CompiledRule {
	if r, ok := p.Operations[op]; ok {
		return r
	}
	return denyRule
}

func (p *CompiledPolicy) Field(name string) (CompiledField, bool) {
	i, ok := p.fieldIndex[name]
	if !ok {
		return CompiledField{}, false
	}
	return p.Fields[i], true
}

// OrgScoped reports whether rows of this table are isolated per organization.
func (p *CompiledPolicy) OrgScoped() bool { return p.OrganizationField != "" }
