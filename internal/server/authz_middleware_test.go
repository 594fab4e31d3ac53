package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
	permission "github.com/sovrium/sovrium/modules/permission/services"
)

type fakeAuthorizer struct {
	allowed  bool
	enforced bool
	err      error

	gotSubjects []string
	gotDomain   string
	gotObject   string
	gotAction   string
}

func (f *fakeAuthorizer) Authorize(subjects []string, domain string, object string, action string) (bool, bool, error) {
	f.gotSubjects, f.gotDomain, f.gotObject, f.gotAction = subjects, domain, object, action
	return f.allowed, f.enforced, f.err
}

func authzMux(a authorizer) http.Handler {
	return NewMux(Options{
		Registry:   permission.NewRegistry(),
		Records:    &fakeRecords{},
		JWTSecret:  testSecret,
		Authorizer: a,
	})
}

func adminRequest(t *testing.T, roles ...any) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/api/schema/tables", nil)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user_1", "roles": roles, "org": "org_a"})
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestWithAuthz_AdminRouteDenied(t *testing.T) {
	a := &fakeAuthorizer{allowed: false, enforced: true}
	mux := authzMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(t, "member"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rec.Code)
	}
	if a.gotObject != "schema.tables" || a.gotAction != "read" {
		t.Fatalf("object=%q action=%q", a.gotObject, a.gotAction)
	}
	if len(a.gotSubjects) != 1 || a.gotSubjects[0] != "role:member" {
		t.Fatalf("subjects=%v", a.gotSubjects)
	}
	if a.gotDomain != "org_a" {
		t.Fatalf("domain=%q", a.gotDomain)
	}
}

func TestWithAuthz_AdminRouteAllowed(t *testing.T) {
	a := &fakeAuthorizer{allowed: true, enforced: true}
	mux := authzMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(t, "admin"))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestWithAuthz_ShadowModePasses(t *testing.T) {
	// enforced=false is shadow mode: the deny is observed, not applied.
	a := &fakeAuthorizer{allowed: false, enforced: false}
	mux := authzMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(t, "member"))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestWithAuthz_ErrorIs500(t *testing.T) {
	a := &fakeAuthorizer{err: errors.New("enforcer broken")}
	mux := authzMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, adminRequest(t, "admin"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestWithAuthz_RecordRoutesNotGated(t *testing.T) {
	// Record authorization belongs to the permission engine, not casbin;
	// even a denying authorizer must not touch the records API.
	a := &fakeAuthorizer{allowed: false, enforced: true}
	fake := &fakeRecords{records: []map[string]any{}, decision: types.Allowed()}
	mux := NewMux(Options{
		Registry:   permission.NewRegistry(),
		Records:    fake,
		JWTSecret:  testSecret,
		Authorizer: a,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/tables/employees/records", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if a.gotObject != "" {
		t.Fatalf("records route hit the casbin gate: object=%q", a.gotObject)
	}
}

func TestAuthzRequirementForRoute(t *testing.T) {
	cases := []struct {
		method string
		path   string
		object string
		action string
		gated  bool
	}{
		{http.MethodPost, "/admin/api/schema:reload", "schema.tables", "admin", true},
		{http.MethodGet, "/admin/api/schema/tables", "schema.tables", "read", true},
		{http.MethodGet, "/admin/api/schema/row-policies", "schema.row-policies", "read", true},
		{http.MethodGet, "/admin/api/schema:reload", "", "", false},
		{http.MethodPost, "/admin/api/schema/row-policies", "", "", false},
		{http.MethodGet, "/api/tables/employees/records", "", "", false},
		{http.MethodGet, "/healthz", "", "", false},
	}
	for _, tc := range cases {
		object, action, gated := authzRequirementForRoute(tc.method, tc.path)
		if object != tc.object || action != tc.action || gated != tc.gated {
			t.Fatalf("%s %s = (%q, %q, %v)", tc.method, tc.path, object, action, gated)
		}
	}
}

func TestVerifyAllowlist(t *testing.T) {
	t.Setenv("ALLOWLIST_PATH", filepath.Join("..", "..", "config", "routing", "allowlist.yaml"))
	if err := verifyAllowlist(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyAllowlist_WrongClass(t *testing.T) {
	const misclassified = `
version: 1
entrypoints:
  server:
    routes:
      - path: /healthz
        methods: [GET]
        route_class: public_api
      - path: /api/tables/{table}/records
        methods: [GET, POST]
        route_class: public_api
      - path: /api/tables/{table}/records/{id}
        methods: [GET, PATCH, DELETE]
        route_class: public_api
      - path: "/admin/api/schema:reload"
        methods: [POST]
        route_class: admin_api
      - path: /admin/api/schema/tables
        methods: [GET]
        route_class: admin_api
      - path: /admin/api/schema/row-policies
        methods: [GET]
        route_class: admin_api
`
	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	if err := os.WriteFile(path, []byte(misclassified), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ALLOWLIST_PATH", path)
	if err := verifyAllowlist(); err == nil {
		t.Fatal("misclassified /healthz must fail verification")
	}
}
