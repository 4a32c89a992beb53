package httputil

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Claims are the access token claims issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Authenticate resolves the calling actor. A bearer token must verify against
// the configured secret and issuer. Without a token, gateway headers are trusted
// when the config allows it. Requests without either continue anonymously.
func Authenticate(cfg *config.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					Error(w, errors.TokenInvalid())
					return
				}
				a, err := ParseToken(cfg, token)
				if err != nil {
					Error(w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
				return
			}

			if cfg.TrustGatewayHeaders {
				if id := r.Header.Get("X-User-ID"); id != "" {
					a := &actor.Actor{ID: id, Name: r.Header.Get("X-User-Name")}
					next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor rejects requests that Authenticate could not attribute to anyone
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor.FromContext(r.Context()) == nil {
			Error(w, errors.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParseToken verifies an HS256 access token and returns its actor
func ParseToken(cfg *config.JWTConfig, tokenString string) (*actor.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, errors.TokenInvalid()
	}

	return &actor.Actor{ID: id, Name: claims.Name, Email: claims.Email, Role: claims.Role}, nil
}

// IssueToken signs an access token for a, used by tooling and tests
func IssueToken(cfg *config.JWTConfig, a *actor.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID: a.ID,
		Name:   a.Name,
		Email:  a.Email,
		Role:   a.Role,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
