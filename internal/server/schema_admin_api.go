package server

import (
	"net/http"

	"github.com/sovrium/sovrium/internal/routing"
	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
	"github.com/sovrium/sovrium/pkg/httperr"
)

// handleSchemaReload recompiles the declared tables and installs the result
// atomically: registry swap plus store policy sync, or neither. A
// compilation failure leaves the previous snapshot serving traffic.
func (s *Server) handleSchemaReload(w http.ResponseWriter, r *http.Request) {
	specs, err := types.LoadTables(s.tablesPath)
	if err != nil {
		if httperr.IsNotFound(err) {
			routing.WriteError(w, r, http.StatusNotFound, "tables_file_missing", err.Error())
			return
		}
		routing.WriteError(w, r, http.StatusUnprocessableEntity, "schema_invalid", err.Error())
		return
	}

	policies, err := permission.CompileAll(specs)
	if err != nil {
		routing.WriteError(w, r, http.StatusUnprocessableEntity, "schema_compilation_failed", err.Error())
		return
	}

	if s.policySync != nil {
		var stmts []string
		for _, p := range policies {
			stmts = append(stmts, permission.PolicyDDL(p)...)
		}
		if err := s.policySync.Apply(r.Context(), stmts); err != nil {
			routing.WriteError(w, r, http.StatusInternalServerError, "policy_sync_failed", "policy sync failed")
			return
		}
	}

	s.registry.Replace(policies)

	tables := make([]string, 0, len(policies))
	for name := range policies {
		tables = append(tables, name)
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"tables": s.registry.Tables(), "count": len(tables)})
}

// handleSchemaTables lists the currently installed tables.
func (s *Server) handleSchemaTables(w http.ResponseWriter, r *http.Request) {
	routing.WriteJSON(w, http.StatusOK, map[string]any{"tables": s.registry.Tables()})
}

// handleSchemaRowPolicies renders the row security DDL the current snapshot
// implies, keyed by table. Operators diff this against the live database to
// confirm the store enforces exactly what the engine decided.
func (s *Server) handleSchemaRowPolicies(w http.ResponseWriter, r *http.Request) {
	policies := map[string][]string{}
	for name, p := range s.registry.Snapshot() {
		policies[name] = permission.PolicyDDL(p)
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}
