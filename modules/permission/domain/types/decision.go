package types

import "net/http"

// Outcome is the verdict of evaluating a compiled policy for one request.
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeNotFound        Outcome = "not_found"
)

// Stable machine-readable deny reasons carried on Decision.Reason.
const (
	ReasonUnauthenticated     = "unauthenticated"
	ReasonOperationForbidden  = "operation_forbidden"
	ReasonFieldWriteForbidden = "field_write_forbidden"
	ReasonOrgOverride         = "organization_override_forbidden"
	ReasonOrgRequired         = "organization_required"
	ReasonNotFound            = "not_found"
)

// Decision is a pure function of (policy, principal, row): the same inputs
// always produce the same Decision. Deny outcomes are values, not errors.
// Field names the offending field for field-write denials.
type Decision struct {
	Outcome Outcome
	Reason  string
	Field   string
}

func Allowed() Decision { return Decision{Outcome: OutcomeAllowed} }

func Forbidden(reason string, field string) Decision {
	return Decision{Outcome: OutcomeForbidden, Reason: reason, Field: field}
}

func Unauthenticated() Decision {
	return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonUnauthenticated}
}

// NotFound is used instead of Forbidden whenever revealing that the record
// exists would leak cross-organization information.
func NotFound() Decision {
	return Decision{Outcome: OutcomeNotFound, Reason: ReasonNotFound}
}

func (d Decision) IsAllowed() bool { return d.Outcome == OutcomeAllowed }

// StatusCode maps the decision to the HTTP status the caller must emit.
func (d Decision) StatusCode() int {
	switch d.Outcome {
	case OutcomeAllowed:
		return http.StatusOK
	case OutcomeUnauthenticated:
		return http.StatusUnauthorized
	case OutcomeForbidden:
		return http.StatusForbidden
	case OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
