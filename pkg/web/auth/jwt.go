package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload carrying a session
type Claims struct {
	TenantID    string   `json:"tenant_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	SuperAdmin  bool     `json:"super_admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens
type TokenService struct {
	secretKey []byte
	tokenTTL  time.Duration
	issuer    string
}

// NewTokenService creates a token service with the given secret key and token TTL
func NewTokenService(secretKey string, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		issuer:    "opmeta",
	}
}

// Issue signs a token for s
func (ts *TokenService) Issue(s *Session) (string, error) {
	if !s.Authenticated() {
		return "", fmt.Errorf("cannot issue a token without a user")
	}
	now := time.Now()
	claims := &Claims{
		TenantID:    s.TenantID,
		Roles:       s.Roles,
		Permissions: s.Permissions,
		SuperAdmin:  s.SuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			Issuer:    ts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secretKey)
}

// Parse verifies a token and returns its session
func (ts *TokenService) Parse(tokenString string) (*Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Verify exact signing method to prevent algorithm confusion attacks
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, jwt.WithIssuer(ts.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims: missing subject")
	}

	return &Session{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		SuperAdmin:  claims.SuperAdmin,
	}, nil
}
