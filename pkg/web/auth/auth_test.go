package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

func statusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode()
	}
	return 0
}

func TestAuthorize(t *testing.T) {
	rbac := NewRBAC(
		&Role{Name: "billing-admin", Permissions: []string{"billing.*"}},
		&Role{Name: "viewer", Permissions: []string{"billing.read"}},
	)
	a := NewAuthorizer(rbac)

	user := &Session{UserID: "u1", Roles: []string{"viewer"}}
	admin := &Session{UserID: "u2", Roles: []string{"billing-admin"}}
	direct := &Session{UserID: "u3", Permissions: []string{"billing.subscribe"}}
	super := &Session{UserID: "root", SuperAdmin: true}

	tests := []struct {
		name    string
		meta    *opmeta.OpMeta
		session *Session
		want    int
	}{
		{"public op without session", &opmeta.OpMeta{Op: "health.check", AllowUnauthed: true}, nil, 0},
		{"default posture needs user", &opmeta.OpMeta{Op: "me.get"}, nil, http.StatusUnauthorized},
		{"default posture with user", &opmeta.OpMeta{Op: "me.get"}, user, 0},
		{"empty user id is anonymous", &opmeta.OpMeta{Op: "me.get"}, &Session{}, http.StatusUnauthorized},
		{"permission via role", &opmeta.OpMeta{Op: "billing.get", Perm: "billing.read"}, user, 0},
		{"permission missing", &opmeta.OpMeta{Op: "billing.subscribe", Perm: "billing.subscribe"}, user, http.StatusForbidden},
		{"permission via wildcard role", &opmeta.OpMeta{Op: "billing.subscribe", Perm: "billing.subscribe"}, admin, 0},
		{"permission on session", &opmeta.OpMeta{Op: "billing.subscribe", Perm: "billing.subscribe"}, direct, 0},
		{"super admin holds every permission", &opmeta.OpMeta{Op: "billing.subscribe", Perm: "billing.subscribe"}, super, 0},
		{"super admin required", &opmeta.OpMeta{Op: "tenants.delete", RequireSuperAdmin: true}, admin, http.StatusForbidden},
		{"binding requires super admin", &opmeta.OpMeta{Op: "tenants.delete", Service: &opmeta.ServiceBinding{RequireSuperAdmin: true}}, admin, http.StatusForbidden},
		{"super admin passes", &opmeta.OpMeta{Op: "tenants.delete", RequireSuperAdmin: true}, super, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authorize(tt.meta, tt.session)
			if tt.want == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, statusOf(err))
		})
	}
}

func TestAuthorize_ErrorKinds(t *testing.T) {
	a := NewAuthorizer(nil)

	err := a.Authorize(&opmeta.OpMeta{Op: "a.b"}, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = a.Authorize(&opmeta.OpMeta{Op: "a.b", Perm: "x"}, &Session{UserID: "u"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), `missing permission "x"`)
}

func TestCheckTenant(t *testing.T) {
	meta := &opmeta.OpMeta{Op: "billing.subscribe", RequireTenantMatch: true}
	member := &Session{UserID: "u1", TenantID: "t1"}

	tests := []struct {
		name    string
		meta    *opmeta.OpMeta
		session *Session
		tenant  string
		want    int
	}{
		{"not required", &opmeta.OpMeta{Op: "a.b"}, nil, "", 0},
		{"matching tenant", meta, member, "t1", 0},
		{"other tenant", meta, member, "t2", http.StatusForbidden},
		{"missing request tenant fails closed", meta, member, "", http.StatusForbidden},
		{"session without tenant fails closed", meta, &Session{UserID: "u1"}, "t1", http.StatusForbidden},
		{"anonymous", meta, nil, "t1", http.StatusUnauthorized},
		{"super admin crosses tenants", meta, &Session{UserID: "root", SuperAdmin: true}, "t9", 0},
		{"binding level flag", &opmeta.OpMeta{Op: "a.b", Service: &opmeta.ServiceBinding{RequireTenantMatch: true}}, member, "t2", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTenant(tt.meta, tt.session, tt.tenant)
			if tt.want == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, statusOf(err))
		})
	}
}

func TestRBAC_FromMap(t *testing.T) {
	rbac := FromMap(map[string][]string{"ops": {"*"}})
	assert.True(t, rbac.Grants(&Session{UserID: "u", Roles: []string{"ops"}}, "anything.at.all"))
	assert.False(t, rbac.Grants(&Session{UserID: "u", Roles: []string{"unknown"}}, "a"))
	assert.False(t, rbac.Grants(nil, "a"))
	assert.Nil(t, rbac.Role("missing"))
}

func TestMatchPermission(t *testing.T) {
	assert.True(t, matchPermission("billing.*", "billing.invoices.read"))
	assert.False(t, matchPermission("billing.*", "billing"))
	assert.False(t, matchPermission("billing.*", "billingx.read"))
	assert.True(t, matchPermission("users.read", "users.read"))
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, "", GetCurrentUser(ctx))

	s := &Session{UserID: "u1", Roles: []string{"viewer"}}
	ctx = WithSession(ctx, s)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, "u1", GetCurrentUser(ctx))
	assert.True(t, got.HasRole("viewer"))
	assert.False(t, got.HasRole("admin"))
}

func TestTokenService_RoundTrip(t *testing.T) {
	ts := NewTokenService("secret", time.Hour)
	in := &Session{UserID: "u1", TenantID: "t1", Roles: []string{"viewer"}, Permissions: []string{"billing.read"}, SuperAdmin: true}

	token, err := ts.Issue(in)
	require.NoError(t, err)

	out, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTokenService_Rejects(t *testing.T) {
	ts := NewTokenService("secret", time.Hour)

	_, err := ts.Issue(&Session{})
	assert.Error(t, err)

	token, err := NewTokenService("other", time.Hour).Issue(&Session{UserID: "u1"})
	require.NoError(t, err)
	_, err = ts.Parse(token)
	assert.Error(t, err)

	expired, err := NewTokenService("secret", -time.Minute).Issue(&Session{UserID: "u1"})
	require.NoError(t, err)
	_, err = ts.Parse(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "opmeta"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.Parse(unsigned)
	assert.Error(t, err)

	_, err = ts.Parse("not-a-token")
	assert.Error(t, err)
}
