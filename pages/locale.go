package pages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// ErrUnknownPage is returned when no template exists for a page id.
var ErrUnknownPage = errors.New("unknown page")

// LocaleCookie is the cookie that pins the console language.
const LocaleCookie = "ACCOUNT_LOCALE"

// LocaleParam is the query parameter that overrides the console language.
const LocaleParam = "kc_locale"

const localeCookieMaxAge = 365 * 24 * time.Hour

type localeContextKey struct{}

// WithLocale attaches a locale (a tag or an Accept-Language value) to ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the locale attached by [WithLocale].
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	locale, _ := ctx.Value(localeContextKey{}).(string)
	return locale
}

// RequestLocale picks the locale preference of r: query parameter, then
// cookie, then the Accept-Language header.
func RequestLocale(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v := strings.TrimSpace(r.URL.Query().Get(LocaleParam)); v != "" {
		return v
	}
	if c, err := r.Cookie(LocaleCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.Header.Get("Accept-Language"))
}

// RememberLocale pins the language chosen through [LocaleParam] in
// [LocaleCookie] so later requests keep it. Values that are not a BCP 47
// tag are ignored.
func RememberLocale(w http.ResponseWriter, r *http.Request, secure bool) {
	if r == nil {
		return
	}
	v := strings.TrimSpace(r.URL.Query().Get(LocaleParam))
	if v == "" {
		return
	}
	tag, err := language.Parse(v)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LocaleCookie,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   int(localeCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
