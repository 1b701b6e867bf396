// Package auth issues and verifies the HS256 bearer tokens that guard the
// HTTP API. Tokens name the consumer (a bot job or report generator) so
// access shows up attributably in logs.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wikimaint/adminwatch/internal/common"
)

// Claims extends the registered claims with the consumer name.
type Claims struct {
	jwt.RegisteredClaims
	Consumer string `json:"consumer"`
}

func GenerateToken(consumer string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Consumer: consumer,
	})
	return token.SignedString(secretKey)
}

// ConsumerFromToken verifies the token and returns the consumer claim.
// Any parse or validation failure maps to common.ErrInvalidToken.
func ConsumerFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Consumer, nil
}
