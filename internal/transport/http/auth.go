package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-attempt-service/internal/domain"
)

type callerKey struct{}

// claims carries the identity asserted by the authentication service.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens and attaches the caller to the request context.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Middleware rejects requests without a valid token. The websocket handshake may pass
// the token as ?access_token= because browsers cannot set headers on upgrades.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, nil, fmt.Errorf("authorization header required: %w", domain.ErrUnauthenticated))
			return
		}
		caller, err := a.Parse(token)
		if err != nil {
			writeError(w, r, nil, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

// Parse validates a token and returns the caller it identifies.
func (a *Authenticator) Parse(token string) (domain.Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Caller{}, fmt.Errorf("token expired: %w", domain.ErrUnauthenticated)
		}
		return domain.Caller{}, fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return domain.Caller{}, fmt.Errorf("invalid token claims: %w", domain.ErrUnauthenticated)
	}
	return domain.Caller{ID: c.Subject, Role: domain.Role(c.Role)}, nil
}

// IssueToken signs a token for userID. Used by tooling and tests; production tokens come from the auth service.
func (a *Authenticator) IssueToken(userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

// RequireCreator guards creator-only handlers.
func RequireCreator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r.Context())
		if !ok || !caller.Role.IsCreator() {
			writeError(w, r, nil, domain.ErrCreatorOnly)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func withCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Caller)
	return caller, ok
}
