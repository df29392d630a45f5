package middleware

import (
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

// JWTOnly returns a [Guard] using [goAccount.ModeJWTOnly], skipping Redis
// entirely.
func JWTOnly(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return Guard(auth, goAccount.ModeJWTOnly, cookieName)
}
