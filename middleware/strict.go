package middleware

import (
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

func Strict(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return Guard(auth, goAccount.ModeStrict, cookieName)
}
