package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sovrium/sovrium/internal/routing"
	"github.com/sovrium/sovrium/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzPath("config/access/model.conf")
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPath("config/access/policy.csv")
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzPath(rel string) (string, error) {
	path := rel
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: " + rel + " not found")
}

type authorizer interface {
	Authorize(subjects []string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

// withAuthz gates the admin surface with the casbin role authorizer. The
// records API is untouched here; record decisions belong to the permission
// engine, which must stay the single source of truth for them.
func withAuthz(a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		object, action, shouldCheck := authzRequirementForRoute(r.Method, r.URL.Path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		p := currentPrincipal(r.Context())
		subjects := authz.SubjectFromRoles(p.Roles)
		domain := authz.DomainFromOrgID(p.OrganizationID)

		allowed, enforced, err := a.Authorize(subjects, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/admin/api/schema:reload":
		if method == http.MethodPost {
			return authz.ObjectSchemaTables, authz.ActionAdmin, true
		}
		return "", "", false
	case "/admin/api/schema/tables":
		if method == http.MethodGet {
			return authz.ObjectSchemaTables, authz.ActionRead, true
		}
		return "", "", false
	case "/admin/api/schema/row-policies":
		if method == http.MethodGet {
			return authz.ObjectRowPolicies, authz.ActionRead, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}
