package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-jobs/models"
	"github.com/aluiziolira/go-scrape-jobs/pipeline"
	"github.com/aluiziolira/go-scrape-jobs/poller"
)

var errJobFailed = errors.New("job failed")

func (c *cli) searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Submit a query, wait for the job and export its results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			summary, err := c.runSearch(cmd.Context(), query)
			printSummary(c.stdout, summary, c.cfg.OutputFile)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&c.cfg.OutputFile, "output", "o", c.cfg.OutputFile, "Output file path")
	flags.StringVar(&c.cfg.OutputFormat, "format", c.cfg.OutputFormat, "Output format: csv, json, or dual")
	flags.IntVar(&c.cfg.Workers, "workers", c.cfg.Workers, "Export pipeline workers")
	return cmd
}

func (c *cli) runSearch(ctx context.Context, query string) (summary models.RunSummary, err error) {
	summary = models.RunSummary{Query: query, StartTime: time.Now(), Phase: models.PhaseIdle}
	defer func() { summary.EndTime = time.Now() }()

	a, err := newApp(c.cfg, c.logger, c.transport)
	if err != nil {
		return summary, err
	}
	stopMetrics := a.serveMetrics()
	defer stopMetrics()

	p := poller.New(a.client,
		poller.WithContext(ctx),
		poller.WithInterval(c.cfg.PollInterval),
		poller.WithLogger(c.logger),
		poller.WithMetrics(poller.NewMetrics(a.registry)),
	)
	defer p.Close()

	events, unsubscribe := p.Subscribe()
	followed := make(chan struct{})
	go func() {
		defer close(followed)
		c.followEvents(events)
	}()

	c.logger.Info("submitting job",
		slog.String("query", query),
		slog.String("base_url", c.cfg.BaseURL),
	)
	if err := p.Submit(query); err != nil {
		unsubscribe()
		<-followed
		return summary, err
	}

	snap, waitErr := p.Wait(ctx)
	unsubscribe()
	<-followed
	summary.Retries = int(a.requester.RetryCount())
	fillSummary(&summary, snap)

	if waitErr != nil || ctx.Err() != nil {
		summary.Message = "interrupted"
		return summary, errors.Join(waitErr, ctx.Err())
	}

	switch snap.Phase {
	case models.PhaseFailed:
		return summary, fmt.Errorf("%w: %s", errJobFailed, snap.Message)
	case models.PhaseCompleted:
	default:
		return summary, fmt.Errorf("job stopped in phase %s", snap.Phase)
	}

	if summary.ResultCount == 0 {
		c.logger.Info("no results to export", slog.String("job_id", string(summary.JobID)))
		return summary, nil
	}

	written, err := c.export(ctx, snap.Job.Results)
	summary.WrittenCount = written
	return summary, err
}

// followEvents logs poller events until the channel closes. Delivery is lossy
// under load, so nothing here is used for counting.
func (c *cli) followEvents(events <-chan poller.Event) {
	for ev := range events {
		switch ev.Kind {
		case poller.EventStateChanged:
			attrs := []any{slog.String("phase", string(ev.Snapshot.Phase))}
			if job := ev.Snapshot.Job; job != nil && job.ID != "" {
				attrs = append(attrs, slog.String("job_id", string(job.ID)), slog.String("status", string(job.Status)))
			}
			if ev.Snapshot.Message != "" {
				attrs = append(attrs, slog.String("message", ev.Snapshot.Message))
			}
			c.logger.Info("job state changed", attrs...)
		case poller.EventRetry:
			c.logger.Debug("backend call retrying",
				slog.Int("attempt", ev.Attempt.Index),
				slog.Duration("delay", ev.Attempt.Delay),
				slog.Any("cause", ev.Attempt.Cause),
			)
		case poller.EventRequestFailed:
			c.logger.Warn("backend call gave up", slog.Any("error", ev.Err))
		}
	}
}

func (c *cli) export(ctx context.Context, results []models.ResultItem) (int, error) {
	writer, err := pipeline.NewWriter(c.cfg.OutputFormat, c.cfg.OutputFile)
	if err != nil {
		return 0, fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			c.logger.Error("close writer", slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(ctx, writer, c.cfg)
	p.Start(c.cfg.Workers)
	if c.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	processErr := p.ProcessResults(results)
	if err := p.Close(); err != nil {
		return 0, fmt.Errorf("pipeline shutdown: %w", err)
	}
	if processErr != nil {
		return 0, fmt.Errorf("process results: %w", processErr)
	}

	metrics := p.GetMetrics()
	written, _ := metrics["written_items"].(int64)
	if validation, ok := metrics["validation_errors"].(map[string]int); ok && len(validation) > 0 {
		c.logger.Warn("results skipped during export", slog.Any("validation_errors", validation))
	}
	if written == 0 {
		return 0, nil
	}
	if err := writer.Validate(); err != nil {
		return int(written), fmt.Errorf("output validation: %w", err)
	}
	return int(written), nil
}

func fillSummary(summary *models.RunSummary, snap models.Snapshot) {
	summary.Phase = snap.Phase
	summary.Message = snap.Message
	if snap.Job == nil {
		return
	}
	summary.JobID = snap.Job.ID
	summary.Cached = snap.Job.Cached
	summary.ResultCount = len(snap.Job.Results)
}
