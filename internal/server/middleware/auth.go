package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the caller's principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

const bearerPrefix = "Bearer "

// Principal is the identity presenting a request. The token is passed on to
// the cluster's authorization API unchanged; Subject is informational only.
type Principal struct {
	Token   string
	Subject string
}

// Bearer returns an HTTP middleware that requires an Authorization bearer
// token. Verification is left to the cluster: the token is only decoded,
// when it is a JWT, to name the caller in logs. Requests without a token get
// a 401 JSON error response.
func Bearer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			principal := &Principal{Token: token, Subject: subject(token)}
			SetSubject(r.Context(), principal.Subject)

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// subject extracts a display name from an unverified JWT. Opaque tokens
// (OpenShift "sha256~" tokens, for instance) yield "".
func subject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"preferred_username", "kubernetes.io/serviceaccount/service-account.name"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	sub, _ := claims.GetSubject()
	return sub
}

// GetPrincipal extracts the caller's principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// Token returns the bearer token of an authenticated request, or "".
func Token(r *http.Request) string {
	if p := GetPrincipal(r.Context()); p != nil {
		return p.Token
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(status)
	// Written by hand; middleware does not depend on the model package.
	w.Write([]byte(`{"status":` + httpStatusString(status) + `,"message":"` + message + `"}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
