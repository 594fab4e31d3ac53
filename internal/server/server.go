package server

import (
	"context"
	"net/http"
	"os"

	"github.com/sovrium/sovrium/internal/routing"
	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
	"github.com/sovrium/sovrium/modules/record/domain/ports"
)

// recordAPI is what the HTTP layer needs from the record service.
type recordAPI interface {
	Create(ctx context.Context, p types.Principal, table string, payload map[string]any) (map[string]any, types.Decision, error)
	Get(ctx context.Context, p types.Principal, table string, id string) (map[string]any, types.Decision, error)
	List(ctx context.Context, p types.Principal, table string) ([]map[string]any, types.Decision, error)
	Update(ctx context.Context, p types.Principal, table string, id string, patch map[string]any) (map[string]any, types.Decision, error)
	Delete(ctx context.Context, p types.Principal, table string, id string) (types.Decision, error)
}

type Server struct {
	registry   *permission.Registry
	records    recordAPI
	policySync ports.PolicySynchronizer
	tablesPath string
}

type Options struct {
	Registry   *permission.Registry
	Records    recordAPI
	PolicySync ports.PolicySynchronizer
	TablesPath string
	JWTSecret  []byte
	Authorizer authorizer
}

// NewMux assembles the HTTP surface: principal extraction, casbin admin
// gate, routed handlers with panic recovery.
func NewMux(opts Options) http.Handler {
	s := &Server{
		registry:   opts.Registry,
		records:    opts.Records,
		policySync: opts.PolicySync,
		tablesPath: opts.TablesPath,
	}

	router := routing.NewRouter()
	router.HandleFunc(http.MethodGet, "/healthz", s.handleHealth)
	router.HandleFunc(http.MethodPost, "/api/tables/{table}/records", s.handleRecordCreate)
	router.HandleFunc(http.MethodGet, "/api/tables/{table}/records", s.handleRecordList)
	router.HandleFunc(http.MethodGet, "/api/tables/{table}/records/{id}", s.handleRecordGet)
	router.HandleFunc(http.MethodPatch, "/api/tables/{table}/records/{id}", s.handleRecordUpdate)
	router.HandleFunc(http.MethodDelete, "/api/tables/{table}/records/{id}", s.handleRecordDelete)
	router.HandleFunc(http.MethodPost, "/admin/api/schema:reload", s.handleSchemaReload)
	router.HandleFunc(http.MethodGet, "/admin/api/schema/tables", s.handleSchemaTables)
	router.HandleFunc(http.MethodGet, "/admin/api/schema/row-policies", s.handleSchemaRowPolicies)

	var handler http.Handler = router
	if opts.Authorizer != nil {
		handler = withAuthz(opts.Authorizer, handler)
	}
	handler = withPrincipalMiddleware(opts.JWTSecret, handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	routing.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewMuxFromEnv wires the default production mux: authorizer from env, JWT
// secret from JWT_SECRET, and the route allowlist verified against the
// registered surface before anything serves.
func NewMuxFromEnv(registry *permission.Registry, records recordAPI, policySync ports.PolicySynchronizer) (http.Handler, error) {
	a, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}
	if err := verifyAllowlist(); err != nil {
		return nil, err
	}
	return NewMux(Options{
		Registry:   registry,
		Records:    records,
		PolicySync: policySync,
		TablesPath: tablesPathFromEnv(),
		JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
		Authorizer: a,
	}), nil
}

func tablesPathFromEnv() string {
	if p := os.Getenv("TABLES_PATH"); p != "" {
		return p
	}
	return "config/tables.json"
}
