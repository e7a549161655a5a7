package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// GenerateAccessToken signs a bearer token. The returned ID is the jti the
// caller persists for revocation.
func GenerateAccessToken(userID uint, username, role, jwtSecret string, ttl time.Duration) (*IssuedToken, error) {
	now := time.Now()
	expirationTime := now.Add(ttl)
	tokenID := uuid.NewString()

	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return nil, err
	}

	return &IssuedToken{Token: tokenString, ID: tokenID, ExpiresAt: expirationTime}, nil
}

// Validate token and return claims
func ValidateToken(tokenString, jwtSecret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.ID == "" {
			return nil, errors.New("token has no id")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
