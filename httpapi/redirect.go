package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
)

type consoleURLContextKey struct{}

type consoleURL struct {
	realm string
	base  string
}

func withConsoleURL(ctx context.Context, realm, base string) context.Context {
	return context.WithValue(ctx, consoleURLContextKey{}, consoleURL{realm: realm, base: base})
}

func consoleURLFromContext(ctx context.Context) (consoleURL, bool) {
	if ctx == nil {
		return consoleURL{}, false
	}
	u, ok := ctx.Value(consoleURLContextKey{}).(consoleURL)
	return u, ok
}

// LoginRedirect is the default [goAccount.LoginRedirector]. It answers with
// 302 Found to LoginURL, where "{realm}" is replaced by the request realm,
// adding client_id and a redirect_uri back to the requested console page.
type LoginRedirect struct {
	LoginURL string
	ClientID string
}

var _ goAccount.LoginRedirector = LoginRedirect{}

func (l LoginRedirect) RedirectToLogin(ctx context.Context, kind goAccount.PageKind) (*goAccount.Response, error) {
	cu, ok := consoleURLFromContext(ctx)
	if !ok {
		return nil, errors.New("login redirect outside a console request")
	}

	target, err := url.Parse(strings.ReplaceAll(l.LoginURL, "{realm}", url.PathEscape(cu.realm)))
	if err != nil {
		return nil, err
	}

	back := strings.TrimRight(cu.base, "/") + "/"
	if p := kind.LoginPath(); p != "" {
		back += p
	}

	q := target.Query()
	q.Set("client_id", l.ClientID)
	q.Set("redirect_uri", back)
	target.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Location", target.String())
	header.Set("Cache-Control", "no-store")
	return &goAccount.Response{Status: http.StatusFound, Header: header}, nil
}
