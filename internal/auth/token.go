package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wellnest/apiserver/types"
)

// ErrInvalidToken is returned for every verification failure: malformed,
// expired, wrongly signed or missing the identity claim.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity alongside the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	User types.Identity `json:"user"`
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for user that expires after the configured TTL.
func (s *TokenService) Issue(user types.PublicUser) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		User: user,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify decodes tokenString and returns the embedded identity.
func (s *TokenService) Verify(tokenString string) (types.Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return types.Identity{}, ErrInvalidToken
	}
	if claims.User.ID == uuid.Nil || strings.TrimSpace(claims.Subject) != claims.User.ID.String() {
		return types.Identity{}, ErrInvalidToken
	}
	return claims.User, nil
}
