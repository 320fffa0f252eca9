package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HS256 secret the server accepts.
const MinSecretLength = 32

var ErrInvalidToken = errors.New("invalid token")

// AuthService issues and checks owner tokens. The owner id travels in the "sub" claim.
type AuthService struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

func NewAuthService(secret string, expiry time.Duration) (*AuthService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)
	}
	return &AuthService{JWTSecret: secret, TokenExpiry: expiry}, nil
}

func (a *AuthService) GenerateToken(ownerID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(ownerID, 10),
		"exp": now.Add(a.TokenExpiry).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// ValidateToken returns the owner id of a valid, unexpired token.
func (a *AuthService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, fmt.Errorf("%w: 'sub' claim missing or not a string", ErrInvalidToken)
	}
	ownerID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || ownerID <= 0 {
		return 0, fmt.Errorf("%w: 'sub' is not an owner id", ErrInvalidToken)
	}
	return ownerID, nil
}
