package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrEthical07/goAuthClient/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	redisAddr string
	prefix    string
	logFormat string
	logLevel  string
}

// logger builds the structured logger handed to every client the command creates.
func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	return logging.Setup("goauth-client-loadtest", version, g.logFormat, level, w), nil
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "goauth-client-loadtest",
		Short:        "Load test goAuthClient session handling",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.PersistentFlags().StringVar(&flags.prefix, "prefix", "goauth-lt:", "credential key prefix")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format (json or text)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newRefreshCmd(flags))
	cmd.AddCommand(newSSOCmd(flags))

	return cmd
}

func openRedis(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	fmt.Fprintf(out, "using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}
