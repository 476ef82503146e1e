package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "dental-quiz-service"

// Claims is the bearer token payload issued by the platform's auth service.
type Claims struct {
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Verifier resolves HS256 bearer tokens into identities.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify validates signature and expiry and returns the caller identity.
// Every failure maps to domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token without subject", domain.ErrUnauthorized)
	}
	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin:
	default:
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}

	return domain.Identity{
		UserID: claims.Subject,
		Role:   role,
		Name:   claims.Name,
		Avatar: claims.Avatar,
	}, nil
}

// Issue signs a token for the identity. The service itself only verifies tokens;
// this backs the `token` command for local development and tests.
func (v *Verifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("identity without user id")
	}
	now := v.now()
	claims := Claims{
		Role:   string(id.Role),
		Name:   id.Name,
		Avatar: id.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
