package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ModeFromEnv() (Mode, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("AUTHZ_MODE")))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid AUTHZ_MODE (expected enforce|shadow|disabled)")
	}
}

// Authorizer is the coarse role gate in front of the operational surface
// (schema reload and friends). Record-level decisions belong to the
// permission engine, not here.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	adapter := fileadapter.NewAdapter(policyPath)
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(adapter)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

// SubjectFromRoles maps a principal's role set to casbin subjects, one per
// role, falling back to the anonymous subject when no usable role remains.
func SubjectFromRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{"role:" + RoleAnonymous}
	}
	subjects := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		subjects = append(subjects, "role:"+r)
	}
	if len(subjects) == 0 {
		return []string{"role:" + RoleAnonymous}
	}
	return subjects
}

func DomainFromOrgID(orgID string) string {
	orgID = strings.ToLower(strings.TrimSpace(orgID))
	if orgID == "" {
		return DomainGlobal
	}
	return orgID
}

// Authorize checks whether any of the subjects holds the grant. In shadow
// mode the verdict is computed but not enforced; callers must honor the
// enforced flag.
func (a *Authorizer) Authorize(subjects []string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow, ModeEnforce:
		enforced = a.mode == ModeEnforce
		for _, subject := range subjects {
			ok, err := a.enforcer.Enforce(subject, domain, object, action)
			if err != nil {
				return false, enforced, err
			}
			if ok {
				return true, enforced, nil
			}
		}
		return false, enforced, nil
	default:
		return false, false, errors.New("authz: unknown mode")
	}
}
