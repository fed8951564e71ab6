package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/parley/internal/models"
)

// Claims is the payload inside every JWT token.
//
// The registered Subject carries the participant ID, and Kind carries
// the participant kind ("user", "bot"). Together they reconstruct the
// models.Identity the token represents, so each request knows WHO is
// calling without hitting the database.
type Claims struct {
	Kind  string `json:"kind"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity rebuilds the participant identity the token was issued for.
func (c *Claims) Identity() models.Identity {
	return models.Identity{Kind: c.Kind, ID: c.Subject}
}

// GenerateToken creates a signed JWT for a participant identity.
//
// HS256 keeps things simple: one shared secret, no key pair. Fine for a
// single service that both issues and verifies its own tokens.
func GenerateToken(identity models.Identity, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Kind:  identity.Kind,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "parley",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims. It checks
// the signature, the expiry, and that the signing method is HMAC —
// rejecting "none" or RSA tokens up front closes the classic
// algorithm-confusion hole.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
