package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/internal/authtest"
	"github.com/spf13/cobra"
)

type ssoConfig struct {
	lookups     int
	domains     int
	concurrency int
}

func newSSOCmd(global *globalFlags) *cobra.Command {
	cfg := &ssoConfig{}

	cmd := &cobra.Command{
		Use:   "sso",
		Short: "Hammer SSO detection across a set of domains",
		Long: `Run --lookups DetectSSO calls from --concurrency workers over --domains
email domains, half of which are SSO-enabled. Only the first lookup per domain
should reach the backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSSO(cmd, global, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.lookups, "lookups", 100000, "number of DetectSSO calls")
	cmd.Flags().IntVar(&cfg.domains, "domains", 200, "number of distinct email domains")
	cmd.Flags().IntVar(&cfg.concurrency, "concurrency", 64, "number of concurrent workers")

	return cmd
}

func runSSO(cmd *cobra.Command, global *globalFlags, cfg *ssoConfig) error {
	if cfg.lookups <= 0 || cfg.domains <= 0 || cfg.concurrency <= 0 {
		return errors.New("lookups, domains, and concurrency must be > 0")
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
	domains := make([]string, cfg.domains)
	for i := range domains {
		domains[i] = fmt.Sprintf("tenant-%d.example.com", i)
		if i%2 == 0 {
			srv.AddSSODomain(domains[i], authtest.SSOProvider{ID: fmt.Sprintf("idp-%d", i), Name: "IdP", Type: "oidc"})
		}
	}

	clientCfg, err := clientConfig(srv.URL)
	if err != nil {
		return err
	}
	if clientCfg.SSO.CacheSize < cfg.domains {
		clientCfg.SSO.CacheSize = cfg.domains
	}
	m := goAuthClient.NewMetrics(goAuthClient.MetricsConfig{Enabled: true})
	s, err := newSession(clientCfg, rdb, global.prefix, "sso", m, logger)
	if err != nil {
		return err
	}
	defer s.Destroy()

	lat := &latencies{}
	var (
		cursor   atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	start := time.Now()
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if cursor.Add(1) > int64(cfg.lookups) {
					return
				}
				email := fmt.Sprintf("user%d@%s", r.Intn(1000), domains[r.Intn(len(domains))])
				t0 := time.Now()
				res, err := s.DetectSSO(ctx, email)
				lat.add(time.Since(t0))
				if err != nil || res.Err != nil {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	stats := computeStats(time.Since(start), lat.samples, failures.Load())

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "sso", stats)
	fmt.Fprintf(out, "sso lookups=%d backend calls=%d cache hits=%d coalesced=%d\n",
		cfg.lookups,
		srv.Calls("/auth/sso/detect"),
		m.Value(goAuthClient.MetricSSOCacheHit),
		m.Value(goAuthClient.MetricSSOLookupCoalesced),
	)
	return nil
}
