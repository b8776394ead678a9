package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/backend"
	"github.com/MrEthical07/goAuthClient/internal/authtest"
	"github.com/MrEthical07/goAuthClient/storage"
	"github.com/MrEthical07/goAuthClient/tokens"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	loadtestEmail    = "loadtest@example.com"
	loadtestPassword = "loadtest-password"
)

type refreshConfig struct {
	clients int
	callers int
	rounds  int
}

func newRefreshCmd(global *globalFlags) *cobra.Command {
	cfg := &refreshConfig{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fire concurrent renewals at many sessions",
		Long: `Sign in --clients sessions, then for --rounds rounds call RefreshToken
--callers times concurrently on every session. Each round should cost one
backend renewal per session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, global, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.clients, "clients", 100, "number of sessions")
	cmd.Flags().IntVar(&cfg.callers, "callers", 16, "concurrent RefreshToken calls per session per round")
	cmd.Flags().IntVar(&cfg.rounds, "rounds", 5, "number of renewal rounds")

	return cmd
}

// clientConfig returns the environment configuration pointed at baseURL with background
// renewal off, so only the load test drives renewals.
func clientConfig(baseURL string) (goAuthClient.Config, error) {
	cfg, err := goAuthClient.LoadConfigFromEnv()
	if err != nil {
		return goAuthClient.Config{}, err
	}
	cfg.AutoRefresh.Enabled = false
	cfg.Backend.BaseURL = baseURL
	return cfg, nil
}

// newSession builds a client whose credentials live under scope in redis.
func newSession(cfg goAuthClient.Config, rdb redis.UniversalClient, prefix, scope string, m *goAuthClient.Metrics, logger *slog.Logger) (*goAuthClient.Client, error) {
	store := storage.NewScopedStore(storage.NewRedisStore(rdb, prefix, 0), scope)
	tcfg := cfg.Tokens.ManagerConfig()
	tcfg.Logger = logger
	tcfg.Metrics = m
	tm := tokens.NewManager(store, tcfg)
	be, err := backend.New(cfg.Backend, tm, backend.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	c, err := goAuthClient.New().
		WithConfig(cfg).
		WithBackend(be).
		WithTokenManager(tm).
		WithSSOLookup(be).
		WithMetrics(m).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func runRefresh(cmd *cobra.Command, global *globalFlags, cfg *refreshConfig) error {
	if cfg.clients <= 0 || cfg.callers <= 0 || cfg.rounds <= 0 {
		return errors.New("clients, callers, and rounds must be > 0")
	}
	out := cmd.OutOrStdout()
	logger, err := global.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rdb, closeRedis, err := openRedis(global.redisAddr, out)
	if err != nil {
		return err
	}
	defer closeRedis()

	srv := authtest.New()
	defer srv.Close()
	srv.AddUser(authtest.User{Email: loadtestEmail, Password: loadtestPassword})

	clientCfg, err := clientConfig(srv.URL)
	if err != nil {
		return err
	}
	m := goAuthClient.NewMetrics(goAuthClient.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	sessions := make([]*goAuthClient.Client, cfg.clients)
	loginLat := &latencies{}
	var loginFailures int64
	start := time.Now()
	for i := range sessions {
		s, err := newSession(clientCfg, rdb, global.prefix, fmt.Sprintf("session-%d", i), m, logger)
		if err != nil {
			return err
		}
		defer s.Destroy()
		if err := s.Initialize(ctx); err != nil {
			return err
		}

		t0 := time.Now()
		_, err = s.Login(ctx, goAuthClient.Credentials{Email: loadtestEmail, Password: loadtestPassword})
		loginLat.add(time.Since(t0))
		if err != nil {
			loginFailures++
		}
		sessions[i] = s
	}
	loginStats := computeStats(time.Since(start), loginLat.samples, loginFailures)

	refreshLat := &latencies{}
	var refreshFailures atomic.Int64
	start = time.Now()
	for round := 0; round < cfg.rounds; round++ {
		var wg sync.WaitGroup
		for _, s := range sessions {
			for j := 0; j < cfg.callers; j++ {
				wg.Add(1)
				go func(c *goAuthClient.Client) {
					defer wg.Done()
					t0 := time.Now()
					pair, err := c.RefreshToken(ctx)
					refreshLat.add(time.Since(t0))
					if err != nil || pair == nil {
						refreshFailures.Add(1)
					}
				}(s)
			}
		}
		wg.Wait()
	}
	refreshStats := computeStats(time.Since(start), refreshLat.samples, refreshFailures.Load())

	callers := cfg.clients * cfg.callers * cfg.rounds
	backendCalls := srv.Calls("/auth/refresh")

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "refresh", refreshStats)
	fmt.Fprintf(out, "refresh callers=%d backend calls=%d coalesced=%d\n",
		callers, backendCalls, m.Value(goAuthClient.MetricRefreshCoalesced))
	return nil
}
