package auth

import (
	"net/http"
	"time"

	"formcore/pkg/domain"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName names the session cookie.
const DefaultCookieName = "formcore_session"

// DefaultSessionTTL bounds how long an issued session stays valid.
const DefaultSessionTTL = 14 * 24 * time.Hour

type sessionPayload struct {
	UserID   string `json:"u"`
	Username string `json:"n"`
	IssuedAt int64  `json:"iat"`
}

// Sessions stores the acting identity in a signed and encrypted cookie.
type Sessions struct {
	codec  *securecookie.SecureCookie
	name   string
	ttl    time.Duration
	secure bool
}

// SessionOption customises Sessions.
type SessionOption func(*Sessions)

// WithCookieName overrides the cookie name.
func WithCookieName(name string) SessionOption {
	return func(s *Sessions) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSecureCookie marks the cookie Secure (HTTPS only).
func WithSecureCookie(secure bool) SessionOption {
	return func(s *Sessions) { s.secure = secure }
}

// NewSessions builds a session provider. hashKey authenticates the cookie and
// should be 32 or 64 bytes; blockKey encrypts it and must be 16, 24 or 32
// bytes, or nil to disable encryption.
func NewSessions(hashKey, blockKey []byte, opts ...SessionOption) *Sessions {
	s := &Sessions{name: DefaultCookieName, ttl: DefaultSessionTTL}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = securecookie.New(hashKey, blockKey).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(int(s.ttl / time.Second))
	return s
}

// Issue writes a session cookie for id.
func (s *Sessions) Issue(w http.ResponseWriter, id domain.Identity) error {
	value, err := s.codec.Encode(s.name, sessionPayload{
		UserID:   id.UserID,
		Username: id.Username,
		IssuedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Current returns the identity carried by the request. Missing, expired or
// tampered cookies read as anonymous.
func (s *Sessions) Current(r *http.Request) domain.Identity {
	cookie, err := r.Cookie(s.name)
	if err != nil {
		return domain.Anonymous()
	}
	var payload sessionPayload
	if err := s.codec.Decode(s.name, cookie.Value, &payload); err != nil {
		return domain.Anonymous()
	}
	return domain.Identity{UserID: payload.UserID, Username: payload.Username}
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
