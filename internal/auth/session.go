// Package auth gives every visitor an anonymous session, carried in a
// signed JWT cookie, so form state and audio files stay per-browser.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/speechstudio/internal/config"
)

const issuer = "speechstudio"

type Claims struct {
	jwt.RegisteredClaims
}

type Sessions struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	now        func() time.Time
}

func NewSessions(cfg config.SessionConfig) *Sessions {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{
		secret:     []byte(cfg.Secret),
		cookieName: cfg.CookieName,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue signs a token for sessionID that expires after the session TTL.
func (s *Sessions) Issue(sessionID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("invalid session id in token: %w", err)
	}
	return claims, nil
}

// Middleware resolves the session from the cookie or a bearer token. A
// missing or invalid token starts a new session. Tokens past half their
// lifetime are reissued.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		reissue := true

		if tokenStr := s.token(r); tokenStr != "" {
			claims, err := s.Parse(tokenStr)
			if err == nil {
				sessionID = claims.Subject
				reissue = claims.ExpiresAt.Time.Sub(s.now()) < s.ttl/2
			} else {
				slog.Debug("discarding session token", "error", err)
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		if reissue {
			token, exp, err := s.Issue(sessionID)
			if err != nil {
				slog.Error("issue session token failed", "error", err)
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookieName,
				Value:    token,
				Path:     "/",
				Expires:  exp,
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
	})
}

func (s *Sessions) token(r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

type ctxKey string

const sessionKey ctxKey = "session"

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// SessionID returns the session of the request, or "" outside Middleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}
