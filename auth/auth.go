package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt"
)

// Roles carried in API tokens.
const (
	RolePlayer = "player"
	RoleWorker = "worker"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of an API bearer token.
type Claims struct {
	PlayerID uint   `json:"playerId"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

// Signer issues and verifies HS256 tokens with one shared secret.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Signer{key: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *Signer) GenerateToken(playerID uint, role string) (string, error) {
	now := s.now()
	claims := &Claims{
		PlayerID: playerID,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies the signature and expiry of tokenString.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NeedsRefresh reports whether the token expires within an hour.
func (s *Signer) NeedsRefresh(c *Claims) bool {
	return time.Unix(c.ExpiresAt, 0).Sub(s.now()) < time.Hour
}
