package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialExpired inspects a bearer credential without verifying it.
// When the credential is a JWT carrying an exp claim, expired reports whether
// that time has passed and ok is true. For opaque credentials ok is false and
// only the backend can tell.
func CredentialExpired(credential string, now time.Time) (expired bool, ok bool) {
	if credential == "" {
		return false, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return false, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, false
	}
	return !now.Before(exp.Time), true
}

// CredentialSubject returns the sub claim of a JWT credential, or "".
// Used for log correlation only; never for authorization.
func CredentialSubject(credential string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
