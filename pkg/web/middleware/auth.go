package middleware

import (
	"net/http"
	"strings"

	"github.com/conduit-lang/opmeta/pkg/web/auth"
	"github.com/conduit-lang/opmeta/pkg/web/response"
)

// TokenParser turns a bearer token into a session
type TokenParser interface {
	Parse(token string) (*auth.Session, error)
}

// BearerAuth attaches the session of a valid bearer token to the request
// context. Requests without an Authorization header pass through anonymous;
// operation authorization decides whether that is allowed. A malformed or
// invalid token is rejected with 401.
func BearerAuth(parser TokenParser) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			session, err := parser.Parse(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}
