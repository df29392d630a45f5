package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/httpapi"
	"github.com/MrEthical07/goAccount/internal/logging"
	"github.com/MrEthical07/goAccount/pages"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg      *fileConfig
	logger   zerolog.Logger
	redis    redis.UniversalClient
	console  *goAccount.Console
	users    *goAccount.RedisUserProvider
	renderer *pages.Renderer

	closers []func()
}

func newApp(flags *rootFlags, out io.Writer) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, flags.memoryRedis, out)
}

func buildApp(cfg *fileConfig, memoryRedis bool, out io.Writer) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	logCfg := cfg.Log
	logCfg.Component = "accountd"
	logCfg.Output = out
	logger, logCloser, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = logCloser.Close() })
	a.logger = logger

	addr := cfg.Redis.Addr
	if memoryRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-memory redis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		addr = mr.Addr()
		logger.Warn().Str("addr", addr).Msg("using in-memory redis, data is lost on exit")
	}
	a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = a.redis.Close() })

	consoleCfg, err := cfg.consoleConfig()
	if err != nil {
		return nil, err
	}

	renderer, err := pages.NewRenderer(nil)
	if err != nil {
		return nil, err
	}
	a.renderer = renderer
	a.users = goAccount.NewRedisUserProvider(a.redis, cfg.Redis.UserPrefix)

	sink, err := a.auditSink()
	if err != nil {
		return nil, err
	}

	console, err := goAccount.New().
		WithConfig(consoleCfg).
		WithRedis(a.redis).
		WithLogger(logger).
		WithPageBuilder(renderer.Factory()).
		WithErrorPager(renderer).
		WithLoginRedirector(httpapi.LoginRedirect{
			LoginURL: cfg.LoginURL,
			ClientID: consoleCfg.Console.ClientID,
		}).
		WithUserProvider(a.users).
		WithAuditSink(sink).
		Build()
	if err != nil {
		return nil, err
	}
	a.console = console
	a.closers = append(a.closers, console.Close)

	return a, nil
}

func (a *app) auditSink() (goAccount.AuditSink, error) {
	if !a.cfg.Audit.Enabled {
		return goAccount.NoOpSink{}, nil
	}
	switch a.cfg.Audit.Sink {
	case "file":
		f := a.cfg.Audit.File
		w := &lumberjack.Logger{
			Filename:   f.Filename,
			MaxSize:    f.MaxSize,
			MaxAge:     f.MaxAge,
			MaxBackups: f.MaxBackups,
			Compress:   f.Compress,
		}
		a.closers = append(a.closers, func() { _ = w.Close() })
		return goAccount.NewJSONWriterSink(w), nil
	default:
		return goAccount.NewLogSink(a.logger.With().Str("stream", "audit").Logger()), nil
	}
}

// seedUsers writes the configured users. Existing records are replaced.
func (a *app) seedUsers(ctx context.Context) error {
	for _, u := range a.cfg.Users {
		record := goAccount.UserRecord{
			RealmID:  u.Realm,
			UserID:   u.ID,
			Username: u.Username,
			Email:    u.Email,
		}
		if u.Password != "" {
			hash, err := a.console.HashPassword(u.Password)
			if err != nil {
				return fmt.Errorf("seed user %s/%s: %w", u.Realm, u.ID, err)
			}
			record.PasswordHash = hash
		}
		if err := a.users.PutUser(ctx, record); err != nil {
			return fmt.Errorf("seed user %s/%s: %w", u.Realm, u.ID, err)
		}
	}
	if len(a.cfg.Users) > 0 {
		a.logger.Info().Int("users", len(a.cfg.Users)).Msg("seeded users")
	}
	return nil
}

// ensureUser loads a user, seeding the configured users first when the
// store does not know it yet.
func (a *app) ensureUser(ctx context.Context, realm, id string) (goAccount.UserRecord, error) {
	user, err := a.users.GetUserByID(ctx, realm, id)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, goAccount.ErrUserNotFound) {
		return goAccount.UserRecord{}, err
	}
	if err := a.seedUsers(ctx); err != nil {
		return goAccount.UserRecord{}, err
	}
	return a.users.GetUserByID(ctx, realm, id)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
