package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/pkg/errors"

	"github.com/0x13a/jobapply/internal/auth"
)

const (
	// SessionName is the cookie holding the signed token after a login.
	SessionName = "____gc"
	// SessionTokenKey is the session value the token is stored under.
	SessionTokenKey = "jwt"
)

type contextKey string

const identityKey contextKey = "identity"

var errNoToken = errors.New("no token")

type Authenticator struct {
	authoriser auth.Authoriser
	sessions   sessions.Store
}

func NewAuthenticator(authoriser auth.Authoriser, store sessions.Store) *Authenticator {
	return &Authenticator{authoriser: authoriser, sessions: store}
}

// identify resolves the caller from the Authorization bearer token, or from
// the session cookie when no header is sent.
func (m *Authenticator) identify(r *http.Request) (auth.Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return auth.Anonymous, errors.New("invalid authorization header")
		}
		return m.authoriser.ParseToken(strings.TrimSpace(parts[1]))
	}
	if m.sessions == nil {
		return auth.Anonymous, errNoToken
	}
	sess, err := m.sessions.Get(r, SessionName)
	if err != nil {
		return auth.Anonymous, errors.Wrap(err, "could not read session")
	}
	tk, ok := sess.Values[SessionTokenKey].(string)
	if !ok || tk == "" {
		return auth.Anonymous, errNoToken
	}
	return m.authoriser.ParseToken(tk)
}

// Authenticate rejects requests without a valid token.
func (m *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// OptionalAuthenticate attaches the caller when a valid token is present and
// lets everyone else through as anonymous.
func (m *Authenticator) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			id = auth.Anonymous
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "Access denied. Admin privileges required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns auth.Anonymous when no identity was attached.
func IdentityFromContext(ctx context.Context) auth.Identity {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	if !ok {
		return auth.Anonymous
	}
	return id
}
