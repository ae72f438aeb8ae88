package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Sign issues a session token for a username.
func (j *JWT) Sign(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

func (j *JWT) Verify(tokenStr string) (string, error) {
	return j.verifyClaim(tokenStr, "sub")
}

// ResetToken issues a short-lived password-reset token. The "confirm"
// claim keeps reset tokens from passing as session tokens.
func (j *JWT) ResetToken(username string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"confirm": username,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

func (j *JWT) VerifyResetToken(tokenStr string) (string, error) {
	return j.verifyClaim(tokenStr, "confirm")
}

func (j *JWT) verifyClaim(tokenStr, claim string) (string, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !t.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	v, ok := claims[claim]
	if !ok {
		return "", errors.New("missing " + claim)
	}
	username, ok := v.(string)
	if !ok || username == "" {
		return "", errors.New("invalid " + claim)
	}
	return username, nil
}
