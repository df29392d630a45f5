package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/pages"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var stateKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	console *goAccount.Console
	users   *goAccount.RedisUserProvider
	handler *Handler
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goAccount.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	renderer, err := pages.NewRenderer(nil)
	require.NoError(t, err)

	users := goAccount.NewRedisUserProvider(rdb, "")
	require.NoError(t, users.PutUser(context.Background(), goAccount.UserRecord{
		RealmID: "demo", UserID: "u-1", Username: "alice", Email: "alice@example.test",
	}))

	console, err := goAccount.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPageBuilder(renderer.Factory()).
		WithLoginRedirector(LoginRedirect{LoginURL: "https://id.example.test/realms/{realm}/login", ClientID: goAccount.DefaultClientID}).
		WithErrorPager(renderer).
		WithUserProvider(users).
		Build()
	require.NoError(t, err)
	t.Cleanup(console.Close)

	opts := Options{
		PublicURL: "https://id.example.test",
		RouteMode: goAccount.ModeStrict,
		StateKey:  stateKey,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h, err := NewHandler(console, opts)
	require.NoError(t, err)

	return &fixture{console: console, users: users, handler: h}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	user, err := f.users.GetUserByID(context.Background(), "demo", "u-1")
	require.NoError(t, err)
	token, _, err := f.console.OpenSession(context.Background(), "demo", user, []string{goAccount.PermissionManageAccount})
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

var stateField = regexp.MustCompile(`name="stateChecker" value="([^"]+)"`)

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/realms/demo/account/password", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "id.example.test", loc.Host)
	assert.Equal(t, "/realms/demo/login", loc.Path)
	assert.Equal(t, goAccount.DefaultClientID, loc.Query().Get("client_id"))
	assert.Equal(t, "https://id.example.test/realms/demo/account/password", loc.Query().Get("redirect_uri"))
}

func TestUnauthenticatedOverviewRedirectURI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.test/realms/demo/account/", loc.Query().Get("redirect_uri"))
}

func TestInvalidTokenIsUnauthenticated(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/realms/demo/account/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := f.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAuthenticatedAccountPage(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "alice@example.test")

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultStateCookie {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie, "state cookie must be issued")
	assert.True(t, stateCookie.HttpOnly)
}

func TestIdentityCookieAuthenticates(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/realms/demo/account/sessions", nil)
	req.AddCookie(&http.Cookie{Name: "ACCOUNT_IDENTITY", Value: f.token(t)})
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "This session")
}

func TestRealmMismatchIsUnauthenticated(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/realms/other/account/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := f.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/realms/other/login")
}

func TestLocaleFromAcceptLanguage(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	req.Header.Set("Accept-Language", "de-DE,de;q=0.8")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Benutzerkontoverwaltung")
}

func TestLocaleParamPersistsInCookie(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)

	first := httptest.NewRequest(http.MethodGet, "/realms/demo/account/?kc_locale=de", nil)
	first.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(first)
	require.Equal(t, http.StatusOK, rec.Code)

	var locale *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == pages.LocaleCookie {
			locale = c
		}
	}
	require.NotNil(t, locale, "locale cookie not set")
	assert.Equal(t, "de", locale.Value)

	next := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	next.Header.Set("Authorization", "Bearer "+token)
	next.Header.Set("Accept-Language", "en")
	next.AddCookie(locale)
	rec = f.do(next)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Benutzerkontoverwaltung")
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, pages.LocaleCookie, c.Name, "cookie rewritten without kc_locale")
	}
}

func TestPasswordUpdateRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)

	get := httptest.NewRequest(http.MethodGet, "/realms/demo/account/password", nil)
	get.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(get)
	require.Equal(t, http.StatusOK, rec.Code)

	m := stateField.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2, "password form must carry the state checker")
	cookies := rec.Result().Cookies()

	form := url.Values{}
	form.Set(goAccount.FormStateChecker, m[1])
	form.Set(goAccount.FormPasswordNew, "correct horse battery")
	form.Set(goAccount.FormPasswordConfirm, "correct horse battery")

	post := httptest.NewRequest(http.MethodPost, "/realms/demo/account/password", strings.NewReader(form.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	post.Header.Set("Authorization", "Bearer "+token)
	for _, c := range cookies {
		post.AddCookie(c)
	}
	rec = f.do(post)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your password has been updated.")

	user, err := f.users.GetUserByID(context.Background(), "demo", "u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.PasswordHash)
}

func TestPostWithoutStateCookieIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	form := url.Values{}
	form.Set(goAccount.FormStateChecker, "forged")
	form.Set(goAccount.FormPasswordNew, "correct horse battery")
	form.Set(goAccount.FormPasswordConfirm, "correct horse battery")

	post := httptest.NewRequest(http.MethodPost, "/realms/demo/account/password", strings.NewReader(form.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	post.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := f.do(post)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimitPerIP(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.RateLimit = rate.Limit(0.001)
		o.RateBurst = 1
	})

	first := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, http.StatusFound, f.do(first).Code)

	second := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	second.RemoteAddr = "10.0.0.1:1235"
	rec := f.do(second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/realms/demo/account/", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusFound, f.do(other).Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/realms/demo/account/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewHandlerValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := NewHandler(nil, Options{StateKey: stateKey})
	assert.Error(t, err)

	_, err = NewHandler(f.console, Options{StateKey: []byte("short")})
	assert.Error(t, err)

	_, err = NewHandler(f.console, Options{StateKey: stateKey, BasePath: "/account"})
	assert.Error(t, err)
}

func TestLoginRedirectRequiresConsoleRequest(t *testing.T) {
	_, err := LoginRedirect{LoginURL: "https://id.example.test/login"}.RedirectToLogin(context.Background(), goAccount.KindAccount)
	assert.Error(t, err)
}
