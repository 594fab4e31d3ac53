package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sovrium/sovrium/internal/routing"
	"github.com/sovrium/sovrium/modules/permission/domain/types"
)

type principalCtxKey struct{}

func withPrincipal(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// currentPrincipal returns the request principal. Requests without a bearer
// token carry the anonymous principal; the permission gate decides whether
// that is acceptable, not the transport layer.
func currentPrincipal(ctx context.Context) types.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(types.Principal)
	return p
}

var errInvalidToken = errors.New("server: invalid bearer token")

// principalFromToken validates an HS256 bearer token and builds the request
// principal from its claims: sub (user id), roles, org.
func principalFromToken(tokenString string, secret []byte) (types.Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return types.Principal{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Principal{}, errInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return types.Principal{}, errInvalidToken
	}

	// Role names pass the same alphabet the declaration compiler enforces.
	// Anything else (commas especially, which would split inside the
	// store's role session variable) is dropped, never bound.
	var roles []string
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			s, ok := r.(string)
			if !ok {
				continue
			}
			s = strings.ToLower(strings.TrimSpace(s))
			if types.ValidRoleName(s) {
				roles = append(roles, s)
			}
		}
	}

	org, _ := claims["org"].(string)

	return types.Principal{
		UserID:         sub,
		Roles:          roles,
		OrganizationID: strings.TrimSpace(org),
	}, nil
}

// withPrincipalMiddleware resolves the principal once per request. A
// malformed or badly signed token is rejected outright; an absent token
// yields the anonymous principal.
func withPrincipalMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), types.Principal{})))
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			routing.WriteError(w, r, http.StatusUnauthorized, "invalid_authorization", "invalid authorization header")
			return
		}

		p, err := principalFromToken(strings.TrimSpace(tokenString), secret)
		if err != nil {
			routing.WriteError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}
