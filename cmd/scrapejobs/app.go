package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-jobs/config"
	"github.com/aluiziolira/go-scrape-jobs/jobsapi"
	"github.com/aluiziolira/go-scrape-jobs/requester"
)

// app is the wired backend stack for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	requester *requester.Requester
	client    *jobsapi.Client
}

func newApp(cfg *config.Config, logger *slog.Logger, transport http.RoundTripper) (*app, error) {
	registry := prometheus.NewRegistry()

	opts := []requester.Option{
		requester.WithHTTPClient(&http.Client{Timeout: cfg.Timeout, Transport: transport}),
		requester.WithMetrics(requester.NewMetrics(registry)),
		requester.WithLogger(logger),
		requester.WithUserAgent(cfg.UserAgent),
	}
	if cfg.RequestRate > 0 {
		opts = append(opts, requester.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst)))
	}

	r := requester.New(opts...)
	client, err := jobsapi.NewFromConfig(cfg, r, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		requester: r,
		client:    client,
	}, nil
}

// serveMetrics exposes the registry when a metrics address is configured and
// returns a function that shuts the server down.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}

	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	a.logger.Info("metrics server enabled", slog.String("addr", a.cfg.MetricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
