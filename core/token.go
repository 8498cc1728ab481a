package core

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/degirum/gosdk/internal/log"
)

// WarnIfTokenExpiring best-effort decodes cfg.Token as a JWT and logs a
// warning if it is already expired or expires within the next minute.
// The token is opaque to the wire protocol (spec.md §1: "the only
// supported auth" is passing it through verbatim) — this never rejects a
// non-JWT or unparsable token, and never changes what gets sent on the
// wire. Grounded on the teacher's api/authn.go treatment of the auth
// token as a server-issued opaque string; the client has no key to verify
// a signature with, so parsing is unverified. Called by each transport's
// constructor.
func WarnIfTokenExpiring(token string) {
	if token == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return // not a JWT, or malformed; nothing to warn about
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if remaining := time.Until(exp.Time); remaining < time.Minute {
		log.Warnf("auth token expires in %s", remaining.Round(time.Second))
	}
}
