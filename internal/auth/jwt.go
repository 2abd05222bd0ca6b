package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims contains the claims extracted from an extension token
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Validator handles token validation and, for tests and local tooling,
// token generation
type Validator struct {
	secretKey []byte
	issuer    string
}

// NewValidator creates a new token validator
func NewValidator(secretKey []byte, issuer string) *Validator {
	return &Validator{
		secretKey: secretKey,
		issuer:    issuer,
	}
}

// Validate checks the Authorization header value and returns its claims
func (v *Validator) Validate(authHeader string) (*Claims, error) {
	tokenString, err := extractBearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if err := v.validateStandardClaims(claims); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, errors.New("token has no user_id claim")
	}

	return claims, nil
}

// GenerateToken creates a signed token. Used by tests and the local
// development tooling.
func (v *Validator) GenerateToken(userID, email string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

func (v *Validator) validateStandardClaims(claims *Claims) error {
	now := time.Now()

	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(now) {
		return errors.New("token has expired")
	}
	if claims.NotBefore != nil && claims.NotBefore.After(now) {
		return errors.New("token not yet valid")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}
	return nil
}

func extractBearerToken(authHeader string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", errors.New("authorization header must use Bearer scheme")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
