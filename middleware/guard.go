package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
)

// DefaultIdentityCookie is the cookie carrying the identity token for
// browser requests.
const DefaultIdentityCookie = "ACCOUNT_IDENTITY"

// Authenticator resolves identity tokens. *goAccount.Console implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, mode goAccount.RouteMode) (*goAccount.AuthContext, error)
}

// Guard returns middleware that authenticates the request when it carries a
// token. cookieName may be empty to use [DefaultIdentityCookie].
func Guard(auth Authenticator, routeMode goAccount.RouteMode, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultIdentityCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := requestToken(r, cookieName)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := auth.Authenticate(r.Context(), token, routeMode)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := goAccount.WithAuthContext(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo attaches the remote IP and User-Agent of the request to its
// context. Run it after any proxy header rewriting.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goAccount.WithClientIP(r.Context(), remoteIP(r.RemoteAddr))
		ctx = goAccount.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestToken(r *http.Request, cookieName string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
