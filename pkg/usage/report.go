package usage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"

	"teclab/bitgate/pkg/config"
)

// Reporter logs the usage summary periodically and prunes old ledger
// rows on a cron schedule.
type Reporter struct {
	store   Store
	cfg     config.UsageConfig
	started time.Time
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewReporter creates a reporter over store. started is the gateway start
// time used for uptime.
func NewReporter(store Store, cfg config.UsageConfig, started time.Time) *Reporter {
	return &Reporter{
		store:   store,
		cfg:     cfg,
		started: started,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "usage.reporter"),
		now:     time.Now,
	}
}

// Start schedules the statistics report and retention pruning. Jobs stop
// when ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := 0
	if r.cfg.Statistics.Enabled && r.cfg.Statistics.Interval > 0 {
		spec := "@every " + r.cfg.Statistics.Interval.String()
		if _, err := r.cron.AddFunc(spec, func() { r.logReport(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule statistics report: %w", err)
		}
		jobs++
	}

	if r.cfg.Retention.Days > 0 && r.cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(r.cfg.Retention.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", r.cfg.Retention.Schedule, err)
		}
		if _, err := r.cron.AddFunc(r.cfg.Retention.Schedule, func() { r.prune(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule pruning: %w", err)
		}
		jobs++
	}

	if jobs == 0 {
		r.logger.Info("no usage jobs configured, reporter idle")
		return nil
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("usage reporter started",
		"statistics_interval", r.cfg.Statistics.Interval,
		"retention_days", r.cfg.Retention.Days,
		"retention_schedule", r.cfg.Retention.Schedule,
	)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		<-r.cron.Stop().Done()
		r.running = false
		r.logger.Info("usage reporter stopped")
	}
}

// Report returns the current summary.
func (r *Reporter) Report(ctx context.Context) (Summary, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(stats, r.cfg.Currency), nil
}

func (r *Reporter) logReport(ctx context.Context) {
	summary, err := r.Report(ctx)
	if err != nil {
		r.logger.Error("failed to read usage statistics", "error", err)
		return
	}

	var b strings.Builder
	FormatTable(&b, summary, r.now().Sub(r.started))
	r.logger.Info("usage statistics",
		"uptime", r.now().Sub(r.started).Round(time.Second).String(),
		"calls", summary.Calls,
		"total_price", summary.TotalPrice,
		"currency", summary.Currency,
		"table", b.String(),
	)
}

func (r *Reporter) prune(ctx context.Context) {
	before := r.now().AddDate(0, 0, -r.cfg.Retention.Days)
	n, err := r.store.Prune(ctx, before)
	if err != nil {
		r.logger.Error("scheduled usage pruning failed", "error", err)
		return
	}
	r.logger.Info("scheduled usage pruning completed", "deleted_count", n, "before", before)
}

// FormatTable writes a human-readable report: uptime, totals and one row
// per model.
func FormatTable(w io.Writer, s Summary, uptime time.Duration) {
	fmt.Fprintf(w, "Uptime: %s\n", uptime.Round(time.Second))
	fmt.Fprintf(w, "Total calls: %d\n", s.Calls)
	fmt.Fprintf(w, "Total price: %.6f %s\n", s.TotalPrice, s.Currency)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCALLS\tINPUT\tOUTPUT\tTOTAL\tPRICE")
	for _, m := range s.Models {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.6f\n",
			m.Model, m.Calls, m.InputTokens, m.OutputTokens, m.TotalTokens(), m.TotalPrice)
	}
	tw.Flush()
}
