package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-jobs/config"
)

func main() {
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{cfg: cfg, stdout: os.Stdout}
	if err := c.execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}

// cli carries the state shared by all subcommands. transport and logger are
// overridden in tests.
type cli struct {
	cfg       *config.Config
	stdout    io.Writer
	logger    *slog.Logger
	transport http.RoundTripper
}

// execute runs the command line in args and logs any error it returns.
func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		logger := c.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("command failed", slog.Any("error", err))
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scrapejobs",
		Short:         "Submit scraping jobs and follow them to completion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.cfg.OutputFormat = strings.ToLower(c.cfg.OutputFormat)
			if c.logger == nil {
				logger, level := newLogger(c.cfg.Verbose)
				slog.SetDefault(logger)
				slog.SetLogLoggerLevel(level.Level())
				c.logger = logger
			}
			if err := c.cfg.Validate(); err != nil {
				c.logger.Error("invalid configuration", slog.Any("error", err))
				return err
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfg.BaseURL, "base-url", c.cfg.BaseURL, "Backend base URL")
	flags.IntVar(&c.cfg.MaxRetries, "max-retries", c.cfg.MaxRetries, "Retries after the first attempt of each request")
	flags.DurationVar(&c.cfg.RetryBackoff, "retry-backoff", c.cfg.RetryBackoff, "Base retry delay, doubled per attempt")
	flags.DurationVar(&c.cfg.PollInterval, "poll-interval", c.cfg.PollInterval, "Pause between job status polls")
	flags.DurationVar(&c.cfg.Timeout, "timeout", c.cfg.Timeout, "Per-request HTTP timeout")
	flags.Float64Var(&c.cfg.RequestRate, "rate", c.cfg.RequestRate, "Max requests per second (0 disables limiting)")
	flags.IntVar(&c.cfg.RequestBurst, "burst", c.cfg.RequestBurst, "Request burst allowed by the rate limiter")
	flags.StringVar(&c.cfg.MetricsAddr, "metrics-addr", c.cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&c.cfg.Verbose, "verbose", "v", c.cfg.Verbose, "Enable verbose logging")

	root.AddCommand(c.searchCmd(), c.historyCmd())
	return root
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
