package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/middleware"
	"github.com/MrEthical07/goAccount/pages"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBasePath is where the console is mounted.
const DefaultBasePath = "/realms/{realm}/account"

// DefaultStateCookie carries the state-checker token.
const DefaultStateCookie = "ACCOUNT_STATE"

// Console is the part of *goAccount.Console the handler needs.
type Console interface {
	middleware.Authenticator
	NewDispatcher(auth *goAccount.AuthContext, info goAccount.RequestInfo) *goAccount.Dispatcher
}

// Options configures [NewHandler].
type Options struct {
	// BasePath must contain the {realm} parameter.
	BasePath string
	// PublicURL prefixes console URLs handed to the login flow, e.g.
	// "https://id.example.com". Empty keeps them relative.
	PublicURL string

	RouteMode      goAccount.RouteMode
	IdentityCookie string

	StateCookie   string
	StateKey      []byte
	StateTTL      time.Duration
	SecureCookies bool

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and X-Real-IP.
	TrustProxyHeaders bool

	// RateLimit is the sustained per-IP request rate; zero disables throttling.
	RateLimit        rate.Limit
	RateBurst        int
	LimiterCacheSize int

	Logger *zerolog.Logger
}

// Handler serves the account console.
type Handler struct {
	console   Console
	state     *stateStore
	basePath  string
	publicURL string
	secure    bool
	logger    zerolog.Logger
	router    chi.Router
}

// NewHandler builds the console router.
func NewHandler(console Console, opts Options) (*Handler, error) {
	if console == nil {
		return nil, errors.New("console required")
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.Contains(basePath, "{realm}") {
		return nil, errors.New("base path must contain {realm}")
	}

	stateCookie := opts.StateCookie
	if stateCookie == "" {
		stateCookie = DefaultStateCookie
	}
	stateTTL := opts.StateTTL
	if stateTTL <= 0 {
		stateTTL = 12 * time.Hour
	}
	state, err := newStateStore(stateCookie, opts.StateKey, opts.SecureCookies, stateTTL)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	h := &Handler{
		console:   console,
		state:     state,
		basePath:  basePath,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		secure:    opts.SecureCookies,
		logger:    logger.With().Str("component", "account-http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.ClientInfo)
	if opts.RateLimit > 0 {
		size := opts.LimiterCacheSize
		if size <= 0 {
			size = 4096
		}
		limiter, err := newIPLimiter(opts.RateLimit, opts.RateBurst, size)
		if err != nil {
			return nil, err
		}
		r.Use(limiter.middleware)
	}
	r.Use(middleware.Guard(console, opts.RouteMode, opts.IdentityCookie))

	r.Route(basePath, func(r chi.Router) {
		r.Get("/", h.page(goAccount.KindAccount))
		r.Get("/password", h.page(goAccount.KindPassword))
		r.Post("/password", h.page(goAccount.KindPasswordUpdate))
		r.Get("/identity", h.page(goAccount.KindFederatedIdentity))
		r.Get("/sessions", h.page(goAccount.KindSessions))
		r.Get("/applications", h.page(goAccount.KindApplications))
		r.Get("/totp", h.page(goAccount.KindTOTP))
		r.Post("/totp", h.page(goAccount.KindTOTPUpdate))
	})

	h.router = r
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) page(kind goAccount.PageKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		realmID := chi.URLParam(r, "realm")

		auth := goAccount.AuthContextFromContext(ctx)
		if auth != nil && auth.Realm.ID != realmID {
			auth = nil
		}

		token, err := h.state.ensure(w, r)
		if err != nil {
			h.logger.Error().Err(err).Str("page", kind.String()).Msg("state checker cookie failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
		}

		base := h.publicURL + strings.ReplaceAll(h.basePath, "{realm}", url.PathEscape(realmID))
		locale := pages.RequestLocale(r)
		pages.RememberLocale(w, r, h.secure)
		info := goAccount.RequestInfo{
			Realm:        goAccount.Realm{ID: realmID, Name: realmID},
			BaseURL:      base,
			Method:       r.Method,
			Form:         r.PostForm,
			StateChecker: token,
			Locale:       locale,
			Referrer:     r.Referer(),
		}

		ctx = pages.WithLocale(ctx, locale)
		ctx = withConsoleURL(ctx, realmID, base)

		d := h.console.NewDispatcher(auth, info)
		defer d.Close()

		resp, err := d.Dispatch(ctx, kind)
		if err != nil {
			h.logger.Error().Err(err).Str("page", kind.String()).Str("realm", realmID).Msg("dispatch failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		writeResponse(w, resp)
	}
}

func writeResponse(w http.ResponseWriter, resp *goAccount.Response) {
	if resp == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
