package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestPrincipalFromToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user_1",
		"roles": []any{"HR", " member ", ""},
		"org":   " org_a ",
	})

	p, err := principalFromToken(token, testSecret)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.UserID != "user_1" || p.OrganizationID != "org_a" {
		t.Fatalf("principal=%+v", p)
	}
	if len(p.Roles) != 2 || p.Roles[0] != "hr" || p.Roles[1] != "member" {
		t.Fatalf("roles=%v", p.Roles)
	}
}

func TestPrincipalFromToken_FiltersMalformedRoles(t *testing.T) {
	// A role name carrying a comma would split inside app.current_roles and
	// grant the embedded name at the store layer. Such roles never make it
	// onto the principal.
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user_1",
		"roles": []any{"x,admin", "mem ber", "hr'", "ok-role"},
	})
	p, err := principalFromToken(token, testSecret)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(p.Roles) != 1 || p.Roles[0] != "ok-role" {
		t.Fatalf("roles=%v", p.Roles)
	}
	if p.RolesCSV() != "ok-role" {
		t.Fatalf("csv=%q", p.RolesCSV())
	}
}

func TestPrincipalFromToken_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", signToken(t, []byte("other"), jwt.MapClaims{"sub": "u1"})},
		{"missing sub", signToken(t, testSecret, jwt.MapClaims{"org": "org_a"})},
		{"blank sub", signToken(t, testSecret, jwt.MapClaims{"sub": "  "})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := principalFromToken(tc.token, testSecret); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestWithPrincipalMiddleware(t *testing.T) {
	var got types.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = currentPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := withPrincipalMiddleware(testSecret, next)

	// No header: anonymous principal, request proceeds.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if got.Authenticated() {
		t.Fatalf("principal=%+v", got)
	}

	// Valid bearer token: authenticated principal.
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user_1", "org": "org_a"})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got.UserID != "user_1" {
		t.Fatalf("code=%d principal=%+v", rec.Code, got)
	}

	// Non-bearer scheme is refused, not treated as anonymous.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d", rec.Code)
	}

	// Bad token is refused.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d", rec.Code)
	}
}
