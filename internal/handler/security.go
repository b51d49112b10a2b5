package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
)

// TokenCookie is the cookie carrying the bearer token for browser clients.
const TokenCookie = "jwtToken"

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticator resolves the caller from the Authorization header (or the
// token cookie) and stores it in the request context.
type Authenticator struct {
	tokens TokenVerifier
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens TokenVerifier) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Optional authenticates the request when it carries a token and lets
// anonymous requests through. An invalid token is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := a.tokens.Verify(token)
		if err != nil {
			writeError(w, r, err, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// Require returns a middleware rejecting requests without a valid token
// for one of roles.
func (a *Authenticator) Require(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, r, apperr.New(apperr.Unauthenticated, "handler.Require", "authentication required"), "")
				return
			}
			p, err := a.tokens.Verify(token)
			if err != nil {
				writeError(w, r, err, "invalid token")
				return
			}
			if err := auth.Authorize(p, roles...); err != nil {
				writeError(w, r, err, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>",
// falling back to the token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
