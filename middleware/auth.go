package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"mediastore/pkg/logger"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	identityKey contextKey = "identity"
)

var ErrNoToken = errors.New("no token provided")

// Claims is the payload of tokens issued by /auth/token. The subject is the
// user name.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller, stored in the request context.
type Identity struct {
	UserID string
	Roles  []string
}

func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// Verifier checks HMAC-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("server is not configured to validate JWTs")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("user ID (sub) claim is missing")
	}
	return &Identity{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// TokenFromRequest reads the bearer token from the Authorization header.
// Browsers cannot set headers on WebSocket requests, so ?token= is accepted
// as a fallback.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid token and puts the caller's
// identity into the context.
func AuthMiddleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(TokenFromRequest(r))
			if err != nil {
				logger.Sugar.Infof("Rejected %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="mediastore"`)
				writeError(w, http.StatusUnauthorized, "unauthorized: invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, UserIDKey, id.UserID)
}

// IdentityFromContext returns the caller set by AuthMiddleware or Enforce.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"error\":%q}", msg)
}
