// Package auth issues and validates the credentials consumed by the relay.
// The relay itself only sees the narrow Validate(token) -> userID surface;
// token format and issuance belong to the authentication collaborator.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pairchat/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a specific user.
func GenerateToken(secret []byte, userID int64, duration time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pairchat",
		},
	}

	// HS256 (HMAC with SHA256), signed with the server's secret key.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Validator validates tokens and extracts the user identity.
// It implements contract.TokenValidator.
type Validator struct {
	secret []byte
}

func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

// Validate parses and validates the signature and expiration of a JWT string
// and returns the user id it was issued for. Any failure maps to
// ErrUnauthorized; the relay never learns why a credential was rejected.
func (v *Validator) Validate(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return 0, errors.ErrUnauthorized
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, errors.ErrUnauthorized
	}
	return claims.UserID, nil
}
