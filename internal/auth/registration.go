package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// registrationTokenExpiry bounds how long a client has between the UID check
// and completing the one-time registration exchange
const registrationTokenExpiry = 10 * time.Minute

// RegistrationClaims are the claims of a registration token
type RegistrationClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// RegistrationTokenService mints and verifies the short-lived tokens that
// bridge the UID check and the account-activation call
type RegistrationTokenService struct {
	secret []byte
}

// NewRegistrationTokenService creates a new RegistrationTokenService
func NewRegistrationTokenService(secret string) *RegistrationTokenService {
	return &RegistrationTokenService{secret: []byte(secret)}
}

// SignToken creates a registration token bound to a UID
func (s *RegistrationTokenService) SignToken(uid string) (string, error) {
	now := time.Now()
	claims := &RegistrationClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(registrationTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign registration token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies a registration token and returns the bound UID
func (s *RegistrationTokenService) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RegistrationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse registration token: %w", err)
	}

	claims, ok := token.Claims.(*RegistrationClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid registration token")
	}
	return claims.UID, nil
}
