// Package scheduler runs the periodic maintenance jobs: archiving stale usage
// days, resolving the trial tier and, optionally, an enrichment batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/enrichment"
	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobUsageReset      = "usage_reset"
	JobTrialCheck      = "trial_check"
	JobEnrichmentBatch = "enrichment_batch"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// BatchRunner is satisfied by *enrichment.Workflow.
type BatchRunner interface {
	RunBatch(ctx context.Context, req enrichment.BatchRequest) (enrichment.BatchResult, error)
}

// Locker is satisfied by *ratelimit.Locker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Ledger   usagedomain.Ledger
	Policy   plandomain.Policy
	Workflow *enrichment.Workflow `optional:"true"`
	Locker   *ratelimit.Locker    `optional:"true"`
	App      config.Config
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	ledger  usagedomain.Ledger
	policy  plandomain.Policy
	batch   BatchRunner
	locker  Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Ledger == nil || p.Policy == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:    p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    p.Config.withDefaults(),
		genID:  p.GenID,
		clock:  p.Clock,
		ledger: p.Ledger,
		policy: p.Policy,
		metrics: obsmetrics.SchedulerWithConfig(obsmetrics.Config{
			ServiceName: p.App.AppName,
			Environment: p.App.Environment,
		}),
	}
	if p.Workflow != nil {
		s.batch = p.Workflow
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) schedMetrics() *obsmetrics.SchedulerMetrics {
	if s.metrics == nil {
		s.metrics = obsmetrics.Scheduler()
	}
	return s.metrics
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(zap.String("job", name))
	schedMetrics := s.schedMetrics()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{JobUsageReset, s.cfg.JobTimeout, s.UsageResetJob},
		{JobTrialCheck, s.cfg.JobTimeout, s.TrialCheckJob},
		{JobEnrichmentBatch, s.cfg.BatchTimeout, s.EnrichmentBatchJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if job.Name == JobEnrichmentBatch && (!s.cfg.BatchEnabled || s.batch == nil) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := s.schedMetrics()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// UsageResetJob archives every day before today that still holds live
// counters. Running it twice is harmless.
func (s *Scheduler) UsageResetJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobUsageReset)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	days, err := s.ledger.StaleDays(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.usage.stale_days.failed", err)
		return err
	}

	var jobErr error
	for _, day := range days {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.ledger.Reset(ctx, day); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.usage.reset.failed", err,
				zap.String("day", day.Format(time.DateOnly)),
			)
			continue
		}
		run.AddProcessed(1)
		s.logger(ctx).Info("scheduler.usage.reset", zap.String("day", day.Format(time.DateOnly)))
	}
	s.schedMetrics().AddBatchProcessed(JobUsageReset, "reset", run.processedCount)
	return jobErr
}

// TrialCheckJob resolves the tier so an expired trial is downgraded even
// when nothing calls the gate.
func (s *Scheduler) TrialCheckJob(ctx context.Context) error {
	tier, err := s.policy.ResolveTier(ctx)
	if err != nil {
		s.logSchedulerError(ctx, jobRunFromContext(ctx), "scheduler.trial_check.failed", err)
		return err
	}
	s.logger(ctx).Debug("scheduler.trial_check", zap.String("tier", string(tier)))
	return nil
}

// EnrichmentBatchJob runs one batch. With a locker configured only one
// process runs a batch at a time; the others skip.
func (s *Scheduler) EnrichmentBatchJob(ctx context.Context) error {
	if s.batch == nil {
		return nil
	}
	run := jobRunFromContext(ctx)

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, s.cfg.BatchLockKey, s.cfg.BatchLockTTL)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.lock.failed", err)
			return err
		}
		if !ok {
			s.schedMetrics().IncJobSkipped(JobEnrichmentBatch, "locked")
			s.logger(ctx).Info("scheduler.batch.skipped", zap.String("reason", "locked"))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), s.cfg.BatchLockKey, token); err != nil {
				s.logger(ctx).Warn("scheduler.batch.unlock.failed", zap.Error(err))
			}
		}()
	}

	res, err := s.batch.RunBatch(ctx, enrichment.BatchRequest{MaxTerms: s.cfg.BatchMaxTerms})
	m := s.schedMetrics()
	m.AddBatchProcessed(JobEnrichmentBatch, "accepted", res.AcceptedCount)
	m.AddBatchProcessed(JobEnrichmentBatch, "error", res.ErrorCount)
	m.AddBatchProcessed(JobEnrichmentBatch, "skipped", res.SkippedCount)
	run.AddProcessed(res.TermsProcessed)
	if res.Denied != nil {
		m.IncJobSkipped(JobEnrichmentBatch, "quota_denied")
		s.logger(ctx).Info("scheduler.batch.quota_denied",
			zap.String("operation", string(res.Denied.Operation)),
			zap.String("reason", string(res.Denied.Reason)),
		)
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.batch.failed", err, zap.String("batch_run_id", res.RunID))
		return err
	}
	return nil
}
