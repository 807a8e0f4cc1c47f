// Package auth issues and verifies the HS256 access tokens that identify
// the actor of every messaging call.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the actor identity on top of the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
	OrgID  string
}

func GenerateToken(actor models.Actor, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: actor.UserID,
		OrgID:  actor.OrgID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseActor verifies tokenString and returns the actor it names. Expired
// tokens yield common.ErrTokenExpired; every other failure, including a
// token without user or org, yields common.ErrInvalidToken.
func ParseActor(tokenString string, secretKey []byte) (models.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, common.ErrTokenExpired
		}
		return models.Actor{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" || claims.OrgID == "" {
		return models.Actor{}, common.ErrInvalidToken
	}

	return models.Actor{UserID: claims.UserID, OrgID: claims.OrgID}, nil
}
