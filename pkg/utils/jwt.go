package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const tokenIssuer = "postflow"

// tokenLeeway absorbs clock skew between API replicas.
const tokenLeeway = 5 * time.Second

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken signs an HS256 session token for userID that expires after ttl.
func GenerateToken(secretKey, userID string, ttl time.Duration) (string, error) {
	if secretKey == "" {
		return "", errors.New("sign token: empty secret key")
	}
	if userID == "" {
		return "", errors.New("sign token: empty user id")
	}

	now := time.Now().UTC()
	claims := transfer.CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token issued by GenerateToken. Every rejection wraps
// ErrInvalidToken.
func ValidateToken(secretKey, tokenString string) (*transfer.CustomClaims, error) {
	claims := &transfer.CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject does not match user", ErrInvalidToken)
	}
	return claims, nil
}
