package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// SessionCookie is the cookie carrying the session token
const SessionCookie = "token"

// Sessions tracks per-user revocation. A token issued at or before the
// revocation instant of its subject is rejected. Revocations older than the
// token lifetime are dropped, since no token they could reject is still
// unexpired.
type Sessions struct {
	mu      sync.RWMutex
	revoked map[uuid.UUID]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewSessions creates an empty revocation list for tokens living at most ttl.
// A non-positive ttl keeps every revocation.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		revoked: make(map[uuid.UUID]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

var _ simplemusic.SessionRevoker = (*Sessions)(nil)

// Revoke invalidates every session of userID issued so far
func (s *Sessions) Revoke(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.prune(now)
	s.revoked[userID] = now
	return nil
}

// prune drops revocations that outlived the token lifetime. Callers hold mu.
func (s *Sessions) prune(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	// one extra second covers the truncated iat
	cutoff := now.Add(-s.ttl - time.Second)
	for id, at := range s.revoked {
		if at.Before(cutoff) {
			delete(s.revoked, id)
		}
	}
}

// Len returns the number of revocations currently held
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

// Valid reports whether a token for userID issued at issuedAt is still valid
func (s *Sessions) Valid(userID uuid.UUID, issuedAt time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.revoked[userID]
	if !ok {
		return true
	}
	return issuedAt.After(at.Truncate(time.Second))
}

type callerKey struct{}

// WithCaller stores the authenticated caller in ctx
func WithCaller(ctx context.Context, caller simplemusic.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller stored in ctx
func CallerFrom(ctx context.Context) (simplemusic.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(simplemusic.Caller)
	return caller, ok
}

// UserLookup resolves the current state of an account
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*simplemusic.User, error)
}

// Auth issues and verifies HS256 session tokens
type Auth struct {
	ja       *jwtauth.JWTAuth
	ttl      time.Duration
	sessions *Sessions
	users    UserLookup
	secure   bool
}

// NewAuth creates an Auth signing with secret
func NewAuth(secret string, ttl time.Duration, sessions *Sessions, users UserLookup) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if sessions == nil {
		sessions = NewSessions(ttl)
	}
	return &Auth{
		ja:       jwtauth.New("HS256", []byte(secret), nil),
		ttl:      ttl,
		sessions: sessions,
		users:    users,
	}
}

// Sessions returns the revocation list used by the authenticator
func (a *Auth) Sessions() *Sessions {
	return a.sessions
}

// SecureCookies marks issued cookies Secure
func (a *Auth) SecureCookies(secure bool) {
	a.secure = secure
}

// Issue signs a session token for user
func (a *Auth) Issue(user *simplemusic.User) (string, error) {
	claims := map[string]interface{}{
		"sub":  user.ID.String(),
		"role": string(user.Role),
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, a.ttl)
	_, token, err := a.ja.Encode(claims)
	return token, err
}

// SetCookie writes the session cookie
func (a *Auth) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.ttl.Seconds()),
	})
}

// ClearCookie expires the session cookie
func (a *Auth) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func tokenFromSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Verifier extracts and verifies the token from the Authorization header or
// the session cookie
func (a *Auth) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verify(a.ja, jwtauth.TokenFromHeader, tokenFromSessionCookie)
}

// Authenticator rejects requests without a valid, unrevoked session and
// stores the caller, with its current role, in the request context. It must
// run after Verifier.
func (a *Auth) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeUnauthenticated(w, r, "authentication required")
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			writeUnauthenticated(w, r, "invalid session")
			return
		}
		if !a.sessions.Valid(userID, token.IssuedAt()) {
			writeUnauthenticated(w, r, "session revoked")
			return
		}

		user, err := a.users.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, simplemusic.ErrNotFound) {
				writeUnauthenticated(w, r, "account no longer exists")
				return
			}
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), user.Caller())))
	})
}

// caller returns the authenticated caller. Routes using it are always
// mounted behind Authenticator.
func caller(r *http.Request) simplemusic.Caller {
	c, _ := CallerFrom(r.Context())
	return c
}
