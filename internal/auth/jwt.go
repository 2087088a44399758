package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// JWTValidator verifies access tokens issued by the auth service and returns
// their subject.
type JWTValidator struct {
	alg string
	key any
}

func NewJWTValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret is empty")
	}
	return &JWTValidator{alg: jwt.SigningMethodHS256.Alg(), key: []byte(secret)}, nil
}

// NewJWTValidatorRS256 loads an RSA public key (PKIX PEM) from pubPath.
func NewJWTValidatorRS256(pubPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return NewJWTValidatorRSA(pub), nil
}

func NewJWTValidatorRSA(pub *rsa.PublicKey) *JWTValidator {
	return &JWTValidator{alg: jwt.SigningMethodRS256.Alg(), key: pub}
}

// New picks the validator for alg ("HS256" or "RS256").
func New(alg, secret, pubPath string) (*JWTValidator, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		return NewJWTValidatorRS256(pubPath)
	case "HS256", "":
		return NewJWTValidatorHS256(secret)
	}
	return nil, fmt.Errorf("unsupported jwt alg %q", alg)
}

// Validate returns the subject (user id) on success
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrMissingToken
	}
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return j.key, nil
	}, jwt.WithValidMethods([]string{j.alg}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	// fallback: "user_id" claim
	if u, ok := claims["user_id"].(string); ok && u != "" {
		return u, nil
	}
	return "", fmt.Errorf("%w: sub claim missing", ErrInvalidToken)
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrInvalidToken)
	}
	return strings.TrimSpace(parts[1]), nil
}
