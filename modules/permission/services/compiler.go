package services

import (
	"sort"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
	"github.com/sovrium/sovrium/pkg/httperr"
)

// System-managed fields callers can never set directly unless a declaration
// carries an explicit write override for them.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
)

// Compile resolves one table declaration into its request-ready policy.
// Every malformed rule fails here, surfaced as a configuration error; the
// table stays unusable until fixed and nothing reaches request time.
func Compile(spec types.TableSpec) (*CompiledPolicy, error) {
	if !columnPattern.MatchString(spec.Name) {
		return nil, httperr.NewCompilation(spec.Name, "", "invalid table name")
	}

	columns := make(map[string]bool, len(spec.Fields))
	for _, f := range spec.Fields {
		if !columnPattern.MatchString(f.Name) {
			return nil, httperr.NewCompilation(spec.Name, f.Name, "invalid field name")
		}
		if columns[f.Name] {
			return nil, httperr.NewCompilation(spec.Name, f.Name, "duplicate field")
		}
		columns[f.Name] = true
	}
	if spec.OrganizationField != "" && !columns[spec.OrganizationField] {
		return nil, httperr.NewCompilation(spec.Name, spec.OrganizationField, "organization field is not declared")
	}
	if !columns[FieldID] {
		return nil, httperr.NewCompilation(spec.Name, FieldID, "table must declare the record identifier field")
	}

	ops := make(map[types.Operation]CompiledRule, 4)
	declared := map[types.Operation]*types.Rule{
		types.OperationCreate: spec.Permissions.Create,
		types.OperationRead:   spec.Permissions.Read,
		types.OperationUpdate: spec.Permissions.Update,
		types.OperationDelete: spec.Permissions.Delete,
	}
	for op, rule := range declared {
		compiled, err := compileRule(spec.Name, "", rule, columns)
		if err != nil {
			return nil, err
		}
		ops[op] = compiled
	}

	overrides := make(map[string]types.FieldPermissionSpec, len(spec.FieldPermissions))
	for _, fp := range spec.FieldPermissions {
		if !columns[fp.Field] {
			return nil, httperr.NewCompilation(spec.Name, fp.Field, "field permission for undeclared field")
		}
		if _, dup := overrides[fp.Field]; dup {
			return nil, httperr.NewCompilation(spec.Name, fp.Field, "duplicate field permission")
		}
		overrides[fp.Field] = fp
	}

	fields := make([]CompiledField, 0, len(spec.Fields))
	index := make(map[string]int, len(spec.Fields))
	for _, f := range spec.Fields {
		system := f.System || f.Name == FieldID || f.Name == FieldCreatedAt

		cf := CompiledField{
			Name:        f.Name,
			System:      system,
			Read:        ops[types.OperationRead],
			CreateWrite: ops[types.OperationCreate],
			UpdateWrite: ops[types.OperationUpdate],
		}

		if ov, ok := overrides[f.Name]; ok {
			if ov.Read != nil {
				r, err := compileRule(spec.Name, f.Name, ov.Read, columns)
				if err != nil {
					return nil, err
				}
				cf.Read = r
			}
			if ov.Write != nil {
				w, err := compileRule(spec.Name, f.Name, ov.Write, columns)
				if err != nil {
					return nil, err
				}
				cf.CreateWrite = w
				cf.UpdateWrite = w
			} else if system || f.Name == spec.OrganizationField {
				cf.CreateWrite = denyRule
				cf.UpdateWrite = denyRule
			}
		} else if system || f.Name == spec.OrganizationField {
			// The service fills these; the organization value in
			// particular is injected by the gate, never written by
			// the caller.
			cf.CreateWrite = denyRule
			cf.UpdateWrite = denyRule
		}

		index[cf.Name] = len(fields)
		fields = append(fields, cf)
	}

	return &CompiledPolicy{
		Table:             spec.Name,
		OrganizationField: spec.OrganizationField,
		Operations:        ops,
		Fields:            fields,
		fieldIndex:        index,
	}, nil
}

// CompileAll compiles every declared table or fails as a whole; a partially
// compiled schema is never installed.
func CompileAll(specs []types.TableSpec) (map[string]*CompiledPolicy, error) {
	out := make(map[string]*CompiledPolicy, len(specs))
	for _, spec := range specs {
		if _, dup := out[spec.Name]; dup {
			return nil, httperr.NewCompilation(spec.Name, "", "duplicate table")
		}
		p, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = p
	}
	return out, nil
}

func compileRule(table string, field string, rule *types.Rule, columns map[string]bool) (CompiledRule, error) {
	if rule == nil {
		return denyRule, nil
	}
	switch rule.Kind {
	case types.RuleKindPublic, types.RuleKindAuthenticated:
		return CompiledRule{Kind: rule.Kind}, nil
	case types.RuleKindRoles:
		if len(rule.Roles) == 0 {
			return CompiledRule{}, httperr.NewCompilation(table, field, "roles rule with empty role set")
		}
		roles := append([]string(nil), rule.Roles...)
		sort.Strings(roles)
		for _, r := range roles {
			if !types.ValidRoleName(r) {
				return CompiledRule{}, httperr.NewCompilation(table, field, "invalid role name "+r)
			}
		}
		return CompiledRule{Kind: types.RuleKindRoles, Roles: roles}, nil
	case types.RuleKindCustom:
		cond, err := ParseCondition(rule.Condition, columns)
		if err != nil {
			return CompiledRule{}, httperr.NewCompilation(table, field, err.Error())
		}
		return CompiledRule{Kind: types.RuleKindCustom, Condition: cond}, nil
	default:
		return CompiledRule{}, httperr.NewCompilation(table, field, "unknown rule kind "+string(rule.Kind))
	}
}
