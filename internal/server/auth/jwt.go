// Package auth holds the credential primitives of the server: password
// hashing, signed session tokens and TOTP second factor.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies a signed-in session. The session row named by
// SessionID must still exist for the token to be honored.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string
	SessionID string
}

func GenerateSessionToken(userID, sessionID string, secretKey []byte, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:    userID,
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseSessionToken verifies tokenString and returns its claims. Expired
// tokens yield common.ErrTokenExpired, anything else unusable yields
// common.ErrInvalidToken.
func ParseSessionToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
