package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

var (
	// ErrUnauthenticated means the operation needs a session and there is none
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the session lacks a required privilege
	ErrForbidden = errors.New("access denied")
)

// Error is an authorization failure with its HTTP status
type Error struct {
	Status int
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

// Unwrap returns ErrUnauthenticated or ErrForbidden
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns 401 or 403
func (e *Error) StatusCode() int {
	return e.Status
}

func unauthenticated() error {
	return &Error{Status: http.StatusUnauthorized, Err: ErrUnauthenticated}
}

func forbidden(reason string) error {
	return &Error{Status: http.StatusForbidden, Reason: reason, Err: ErrForbidden}
}

// Authorizer checks sessions against operation metadata
type Authorizer struct {
	rbac *RBAC
}

// NewAuthorizer creates an authorizer using rbac for permission checks
func NewAuthorizer(rbac *RBAC) *Authorizer {
	if rbac == nil {
		rbac = NewRBAC()
	}
	return &Authorizer{rbac: rbac}
}

// Authorize enforces the operation's user, super admin and permission
// requirements. It does not check the tenant; see CheckTenant.
func (a *Authorizer) Authorize(meta *opmeta.OpMeta, s *Session) error {
	if !meta.NeedsUser() {
		return nil
	}
	if !s.Authenticated() {
		return unauthenticated()
	}
	if meta.NeedsSuperAdmin() && !s.SuperAdmin {
		return forbidden("super admin required")
	}
	if meta.Perm != "" && !a.rbac.Grants(s, meta.Perm) {
		return forbidden(fmt.Sprintf("missing permission %q", meta.Perm))
	}
	return nil
}

// CheckTenant enforces tenant matching for operations that require it.
// It fails closed: a missing request tenant or a session without a tenant
// is rejected. Super admins may act on any tenant.
func CheckTenant(meta *opmeta.OpMeta, s *Session, requestTenant string) error {
	if !meta.NeedsTenantMatch() {
		return nil
	}
	if !s.Authenticated() {
		return unauthenticated()
	}
	if requestTenant == "" {
		return forbidden("request does not name a tenant")
	}
	if s.SuperAdmin {
		return nil
	}
	if s.TenantID == "" || s.TenantID != requestTenant {
		return forbidden("tenant mismatch")
	}
	return nil
}
