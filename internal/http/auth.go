package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/application"
)

var (
	// ErrInvalidToken is returned when a bearer token cannot be verified.
	ErrInvalidToken = errors.New("http: invalid token")
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("http: missing token")
)

// ActorClaims are the JWT claims issued by the identity provider.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier resolves the acting user from a bearer token.
type TokenVerifier interface {
	Verify(token string) (application.Actor, error)
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier constructs a verifier for the given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: append([]byte(nil), secret...), now: time.Now}
}

// Verify parses token and returns the actor it identifies.
func (v *JWTVerifier) Verify(token string) (application.Actor, error) {
	if strings.TrimSpace(token) == "" {
		return application.Actor{}, ErrMissingToken
	}

	claims := &ActorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return application.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return application.Actor{}, ErrInvalidToken
	}

	role := access.ParseRole(claims.Role)
	if claims.Subject == "" || role == "" {
		return application.Actor{}, fmt.Errorf("%w: subject and role are required", ErrInvalidToken)
	}
	return application.Actor{UserID: claims.Subject, Role: role}, nil
}

// SignActorToken issues an HS256 token for actor that expires after ttl.
// A zero ttl produces a token without an expiry.
func SignActorToken(secret []byte, actor application.Actor, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := ActorClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.UserID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
