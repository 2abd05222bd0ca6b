// Package scheduler runs the service's periodic jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wenjiaqi8255/context-me/internal/metrics"
	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
)

// SummarySource produces the usage aggregate for one UTC day
type SummarySource interface {
	DailySummary(ctx context.Context, day time.Time) (*models.UsageSummary, error)
}

// UsageReporter periodically aggregates the previous day's usage,
// publishes it to the daily gauges and logs it for cost tracking.
// Schedules run in UTC to match the quota's day buckets.
type UsageReporter struct {
	source   SummarySource
	metrics  *metrics.Metrics
	logger   observability.Logger
	schedule string
	cron     *cron.Cron

	// jobTimeout bounds one report run
	jobTimeout time.Duration
}

// NewUsageReporter creates a usage reporter with the given cron schedule
func NewUsageReporter(source SummarySource, m *metrics.Metrics, schedule string, logger observability.Logger) *UsageReporter {
	return &UsageReporter{
		source:     source,
		metrics:    m,
		logger:     logger.WithPrefix("usage-reporter"),
		schedule:   schedule,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		jobTimeout: time.Minute,
	}
}

// Start schedules the daily report and begins the cron loop
func (r *UsageReporter) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
		defer cancel()

		// Report on the just-finished UTC day
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if err := r.Report(ctx, yesterday); err != nil {
			r.logger.Error("Usage report failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("Usage reporter started", map[string]interface{}{
		"schedule": r.schedule,
	})
	return nil
}

// Stop halts the cron loop and waits for a running job to finish
func (r *UsageReporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Usage reporter stopped", nil)
}

// Report aggregates and publishes usage for one UTC day
func (r *UsageReporter) Report(ctx context.Context, day time.Time) error {
	summary, err := r.source.DailySummary(ctx, day)
	if err != nil {
		return err
	}

	r.metrics.DailyRequests.Set(float64(summary.Requests))
	r.metrics.DailyTokens.Set(float64(summary.TokensUsed))
	r.metrics.DailyCost.Set(float64(summary.CostCents))

	r.logger.Info("Daily usage report", map[string]interface{}{
		"day":        day.UTC().Format("2006-01-02"),
		"requests":   summary.Requests,
		"tokens":     summary.TokensUsed,
		"cost_cents": summary.CostCents,
	})
	return nil
}
