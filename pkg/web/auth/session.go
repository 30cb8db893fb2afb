// Package auth carries the caller's session and enforces the authorization
// requirements declared by operation metadata.
package auth

import "context"

// Session is the authenticated caller of a request
type Session struct {
	UserID      string   `json:"userId"`
	TenantID    string   `json:"tenantId,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SuperAdmin  bool     `json:"superAdmin,omitempty"`
}

// Authenticated reports whether the session identifies a user
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// HasRole reports whether the session holds role
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithSession returns a context carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// GetCurrentUser returns the user ID of the session in ctx, or ""
func GetCurrentUser(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.UserID
	}
	return ""
}
