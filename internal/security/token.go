package security

import (
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// JWTIssuer issues and validates HS256 tokens. The subject travels in the
// user_id claim and the token kind in typ.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer creates a JWTIssuer signing with secret.
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret)}
}

// Issue signs a token of the given kind for subject, valid for ttl.
func (j *JWTIssuer) Issue(subject, kind string, ttl time.Duration) (string, error) {
	now := jwt.TimeFunc()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": subject,
		"typ":     kind,
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its subject if the signature,
// expiry and kind all check out.
func (j *JWTIssuer) Validate(tokenString, kind string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", models.ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != kind {
		return "", fmt.Errorf("%w: expected %s token", models.ErrInvalidToken, kind)
	}
	subject, _ := claims["user_id"].(string)
	if subject == "" {
		return "", fmt.Errorf("%w: missing user_id", models.ErrInvalidToken)
	}
	return subject, nil
}
