package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sharetube/syncroom/internal/domain"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *service {
	return &service{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// GenerateJWT signs a credential for id. Issuing credentials belongs to the blog platform;
// the server only needs it for tooling and tests.
func (s service) GenerateJWT(id domain.Identity, ttl time.Duration) (string, error) {
	role := ""
	if id.IsAdmin {
		role = RoleAdmin
	}

	now := s.now()
	claims := Claims{
		Name: id.Name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (s service) ParseJWT(tokenString string) (domain.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	return domain.Identity{
		UserID:  claims.Subject,
		Name:    claims.Name,
		IsAdmin: claims.Role == RoleAdmin,
	}, nil
}
