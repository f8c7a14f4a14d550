package middleware

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"

	"biostar/app/models"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "sessionid"

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a session token to a user. A nil user means anonymous.
type Authenticator interface {
	Authenticate(token string) (*models.User, error)
}

// Authenticate loads the user owning the session cookie into the request context.
// Lookup failures leave the request anonymous.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := auth.Authenticate(cookie.Value)
			if err != nil {
				log.Printf("session lookup failed: %v", err)
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// ClientIP returns the address of the visitor as reported by the front proxy:
// X-Real-IP, then the first X-Forwarded-For entry, then the connection address.
func ClientIP(r *http.Request) string {
	candidates := []string{r.Header.Get("X-Real-IP")}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		candidates = append(candidates, strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	candidates = append(candidates, host)

	for _, ip := range candidates {
		ip = strings.TrimSpace(ip)
		if ip != "" && ip != "localhost" {
			return ip
		}
	}
	return "0.0.0.0"
}
