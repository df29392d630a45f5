package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type loadtestFlags struct {
	users       int
	perUser     int
	ops         int
	concurrency int
	realm       string
}

func newLoadtestCmd(flags *rootFlags) *cobra.Command {
	lf := &loadtestFlags{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure token validation and sessions page latency",
		Long: `
Usage: accountd loadtest --config=accountd.yaml --memory-redis [--users=1000]

  Opens sessions for synthetic users, then runs two phases against the
  console: strict token authentication and sessions page dispatch.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lf.users <= 0 || lf.perUser <= 0 || lf.ops <= 0 || lf.concurrency <= 0 {
				return errors.New("users, sessions-per-user, ops and concurrency must be > 0")
			}

			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			return a.loadtest(cmd.Context(), lf, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&lf.users, "users", 1000, "number of synthetic users")
	cmd.Flags().IntVar(&lf.perUser, "sessions-per-user", 3, "sessions opened per user")
	cmd.Flags().IntVar(&lf.ops, "ops", 20000, "operations per phase")
	cmd.Flags().IntVar(&lf.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().StringVar(&lf.realm, "realm", "loadtest", "realm the synthetic users live in")
	return cmd
}

// principal is one seeded session: the raw token and what it resolves to.
type principal struct {
	auth  *goAccount.AuthContext
	token string
}

func (a *app) loadtest(ctx context.Context, lf *loadtestFlags, out io.Writer) error {
	fmt.Fprintf(out, "seeding %d users x %d sessions...\n", lf.users, lf.perUser)
	start := time.Now()
	pool, err := a.seedPrincipals(ctx, lf)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(start).Round(time.Millisecond))

	pick := func(r *rand.Rand) principal { return pool[r.IntN(len(pool))] }

	auth := runPhase(ctx, lf.ops, lf.concurrency, func(r *rand.Rand) error {
		_, err := a.console.Authenticate(ctx, pick(r).token, goAccount.ModeStrict)
		return err
	})
	sessions := runPhase(ctx, lf.ops, lf.concurrency, func(r *rand.Rand) error {
		p := pick(r)
		d := a.console.NewDispatcher(p.auth, goAccount.RequestInfo{Realm: p.auth.Realm})
		defer d.Close()
		_, err := d.Dispatch(ctx, goAccount.KindSessions)
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	auth.print(out, "authenticate")
	sessions.print(out, "sessions")
	return nil
}

// seedPrincipals opens every synthetic session, spreading users over the
// configured number of workers.
func (a *app) seedPrincipals(ctx context.Context, lf *loadtestFlags) ([]principal, error) {
	pool := make([]principal, lf.users*lf.perUser)
	roles := []string{goAccount.PermissionManageAccount}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lf.concurrency)
	for i := range lf.users {
		g.Go(func() error {
			record := goAccount.UserRecord{
				RealmID:  lf.realm,
				UserID:   fmt.Sprintf("u-%d", i),
				Username: fmt.Sprintf("user%d", i),
			}
			for j := range lf.perUser {
				token, _, err := a.console.OpenSession(gctx, lf.realm, record, roles)
				if err != nil {
					return fmt.Errorf("open session: %w", err)
				}
				auth, err := a.console.Authenticate(gctx, token, goAccount.ModeJWTOnly)
				if err != nil {
					return fmt.Errorf("authenticate seeded token: %w", err)
				}
				pool[i*lf.perUser+j] = principal{auth: auth, token: token}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pool, nil
}

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

// runPhase runs op ops times across workers goroutines. Failures are
// counted, never fatal.
func runPhase(ctx context.Context, ops, workers int, op func(r *rand.Rand) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		mu       sync.Mutex
		samples  = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			r := rand.New(rand.NewPCG(uint64(start.UnixNano()), uint64(w)))
			local := make([]time.Duration, 0, ops/workers+1)
			for next.Add(1) <= int64(ops) && ctx.Err() == nil {
				t0 := time.Now()
				if op(r) != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			samples = append(samples, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(samples)
	return phaseStats{
		elapsed:  time.Since(start),
		ops:      len(samples),
		failures: failures.Load(),
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile reads the p-th percentile from sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
	return sorted[(len(sorted)-1)*p/100]
}

func (s phaseStats) print(out io.Writer, name string) {
	var rate float64
	if s.elapsed > 0 {
		rate = float64(s.ops) / s.elapsed.Seconds()
	}
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures,
		s.elapsed.Round(time.Millisecond), rate,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
