package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goAccount/httpapi"
	"github.com/MrEthical07/goAccount/metrics/export/prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account console HTTP server",
		Long: `
Usage: accountd serve --config=accountd.yaml [--memory-redis]

  Starts the account console. Users listed in the configuration are written
  to the user store on startup.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.seedUsers(ctx); err != nil {
		return err
	}

	handler, err := a.router()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.Listen).Msg("account console listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// router mounts the console next to the health and metrics endpoints.
func (a *app) router() (http.Handler, error) {
	mode, err := a.cfg.validationMode()
	if err != nil {
		return nil, err
	}

	logger := a.logger
	console, err := httpapi.NewHandler(a.console, httpapi.Options{
		PublicURL:         a.cfg.PublicURL,
		RouteMode:         mode,
		IdentityCookie:    a.cfg.JWT.IdentityCookie,
		StateCookie:       a.cfg.State.Cookie,
		StateKey:          []byte(a.cfg.State.Key),
		StateTTL:          a.cfg.State.TTL,
		SecureCookies:     a.cfg.State.SecureCookies,
		TrustProxyHeaders: a.cfg.TrustProxyHeaders,
		RateLimit:         rate.Limit(a.cfg.RateLimit.RequestsPerSecond),
		RateBurst:         a.cfg.RateLimit.Burst,
		LimiterCacheSize:  a.cfg.RateLimit.CacheSize,
		Logger:            &logger,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := a.console.Ping(req.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Path != "" {
		r.Method(http.MethodGet, a.cfg.Metrics.Path, prometheus.New(a.console).Handler())
	}
	r.Mount("/", console)
	return r, nil
}
