// Package audit records security-relevant events: authentication attempts,
// step-up verifications, session revocations, role and permission changes and
// log purges.
//
// Call sites build one Event and hand it to a Recorder. The Bus fans every event
// out to independent sinks (login log table, audit log table, the in-process
// security monitor, external shippers). A sink that fails or stalls is logged
// and counted locally and never affects the request that emitted the event or
// any other sink.
package audit

import (
	"strings"
	"time"
)

// Kind classifies an event for normalization and routing.
type Kind string

const (
	// KindAdminAuth is a back-office login flow event (resource AUTH).
	KindAdminAuth Kind = "admin_auth"
	// KindPublicAuth is a cliente/proprietario login flow event (resource PUBLIC_AUTH).
	KindPublicAuth Kind = "public_auth"
	// KindAction is any other audited mutation.
	KindAction Kind = "action"
)

// Raw authentication actions, as stored in login_logs.
const (
	AuthLogin       = "login"
	AuthLoginFailed = "login_failed"
	Auth2FARequired = "2fa_required"
	Auth2FASuccess  = "2fa_success"
	Auth2FAFailed   = "2fa_failed"
	AuthLogout      = "logout"
)

// Resources used by authentication events.
const (
	ResourceAuth       = "AUTH"
	ResourcePublicAuth = "PUBLIC_AUTH"
)

// Event is the single value emitted by call sites.
type Event struct {
	Kind           Kind
	Action         string // raw auth action for auth kinds, verb for KindAction
	Resource       string // ignored for auth kinds
	ResourceID     string
	UserID         string // staff user
	PublicUserUUID string
	UserType       string // admin, cliente, proprietario
	Username       string
	IPAddress      string
	UserAgent      string
	TwoFAUsed      bool
	Success        bool
	FailureReason  string
	Details        map[string]interface{}
	Timestamp      time.Time
}

// IsAuth reports whether the event belongs to a login flow.
func (e Event) IsAuth() bool {
	return e.Kind == KindAdminAuth || e.Kind == KindPublicAuth
}

var authActions = map[string]string{
	AuthLogin:       "LOGIN_SUCCESS",
	AuthLoginFailed: "LOGIN_FAILED",
	Auth2FASuccess:  "2FA_SUCCESS",
	Auth2FAFailed:   "2FA_FAILED",
	Auth2FARequired: "2FA_REQUIRED",
	AuthLogout:      "LOGOUT",
}

// Normalize returns the upper-case audit action and resource for the event.
// Unknown auth actions collapse to LOGIN_ATTEMPT; public flow actions are
// prefixed PUBLIC_.
func Normalize(e Event) (action, resource string) {
	if !e.IsAuth() {
		return strings.ToUpper(e.Action), e.Resource
	}

	action, ok := authActions[strings.ToLower(e.Action)]
	if !ok {
		action = "LOGIN_ATTEMPT"
	}
	if e.Kind == KindPublicAuth {
		return "PUBLIC_" + action, ResourcePublicAuth
	}
	return action, ResourceAuth
}

// auditDetails merges the event's own details with the auth outcome fields.
func auditDetails(e Event) map[string]interface{} {
	details := make(map[string]interface{}, len(e.Details)+4)
	for k, v := range e.Details {
		details[k] = v
	}
	if e.Username != "" {
		details["username"] = e.Username
	}
	if e.TwoFAUsed {
		details["twoFaUsed"] = true
	}
	if e.IsAuth() {
		details["success"] = e.Success
	}
	if e.FailureReason != "" {
		details["reason"] = e.FailureReason
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
