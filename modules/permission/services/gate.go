package services

import (
	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// Authorize is the pre-query table-level decision. record is the already
// loaded row when the operation targets one, nil otherwise.
//
// The check order is a security property and must not be reordered:
// organization isolation runs before any role check so that the existence of
// cross-organization records is never revealed as a 403.
func Authorize(policy *CompiledPolicy, p types.Principal, op types.Operation, record map[string]any) types.Decision {
	if record != nil && policy.OrgScoped() {
		recordOrg, _ := record[policy.OrganizationField].(string)
		if recordOrg != p.OrganizationID {
			return types.NotFound()
		}
	}

	rule := policy.OperationRule(op)
	if !p.Authenticated() && rule.Kind != types.RuleKindPublic {
		return types.Unauthenticated()
	}
	if !rule.Allows(p, record) {
		return types.Forbidden(types.ReasonOperationForbidden, "")
	}
	return types.Allowed()
}

// PrepareCreate enforces the organization rules of a create. A principal
// outside any organization cannot create org-scoped rows: the store's insert
// policy admits nothing for an empty organization binding, and the gate must
// reach the same verdict rather than let the store surface it as an error.
// A caller may repeat the principal's own organization id (it is removed
// from the payload, the canonical value is injected later); any other value
// is a Forbidden, never a silent overwrite.
func PrepareCreate(policy *CompiledPolicy, p types.Principal, payload map[string]any) types.Decision {
	if !policy.OrgScoped() {
		return types.Allowed()
	}
	if p.OrganizationID == "" {
		return types.Forbidden(types.ReasonOrgRequired, policy.OrganizationField)
	}
	if v, ok := payload[policy.OrganizationField]; ok {
		s, _ := v.(string)
		if s != p.OrganizationID {
			return types.Forbidden(types.ReasonOrgOverride, policy.OrganizationField)
		}
		delete(payload, policy.OrganizationField)
	}
	return types.Allowed()
}
