package services

import (
	"sort"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

// ProjectRead filters a fetched row down to the fields the principal may
// read. Denied fields are omitted entirely, never returned as null or
// redacted placeholders.
func ProjectRead(policy *CompiledPolicy, p types.Principal, row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for _, f := range policy.Fields {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		if f.Read.Allows(p, row) {
			out[f.Name] = v
		}
	}
	return out
}

// ProjectWrite validates a caller payload for a create or update. The whole
// operation aborts on the first denied field in declared schema order; the
// caller persists nothing unless every field passes. row is the candidate
// row custom write conditions evaluate against (the payload itself on
// create, the stored row on update).
func ProjectWrite(policy *CompiledPolicy, p types.Principal, op types.Operation, payload map[string]any, row map[string]any) (map[string]any, types.Decision) {
	out := make(map[string]any, len(payload))
	for _, f := range policy.Fields {
		v, ok := payload[f.Name]
		if !ok {
			continue
		}
		if !f.writeRule(op).Allows(p, row) {
			return nil, types.Forbidden(types.ReasonFieldWriteForbidden, f.Name)
		}
		out[f.Name] = v
	}

	if len(out) != len(payload) {
		// Undeclared fields carry no grant. Report the first one in a
		// stable order.
		unknown := make([]string, 0, len(payload)-len(out))
		for k := range payload {
			if _, ok := policy.Field(k); !ok {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		return nil, types.Forbidden(types.ReasonFieldWriteForbidden, unknown[0])
	}
	return out, types.Allowed()
}
