package jwthelper

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the payload carried by every issued token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// newClaims derives iat and exp from a single clock reading so that
// exp - iat equals expiry exactly.
func newClaims(subject string, now time.Time, expiry time.Duration) Claims {
	iat := now.Truncate(time.Second)
	return Claims{
		Subject:   subject,
		IssuedAt:  iat,
		ExpiresAt: iat.Add(expiry),
	}
}

func (c Claims) token() (jwt.Token, error) {
	return jwt.NewBuilder().
		Subject(c.Subject).
		IssuedAt(c.IssuedAt).
		Expiration(c.ExpiresAt).
		Build()
}
