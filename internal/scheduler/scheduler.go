package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/metricspush"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpireTransactions    = "expire_transactions"
	JobReconcileTransactions = "reconcile_transactions"
	JobRetryPayouts          = "retry_payouts"
	JobReconcilePayouts      = "reconcile_payouts"
	JobAutoPayouts           = "auto_payouts"
	JobMetricsPush           = "metrics_push"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	Transactions txdomain.Service
	Payouts      payoutdomain.Service
	Refunds      refunddomain.Service
	GenID        *snowflake.Node
	Clock        clock.Clock      `optional:"true"`
	Push         *metricspush.Job `optional:"true"`
	Config       Config           `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	transactions txdomain.Service
	payouts      payoutdomain.Service
	refunds      refunddomain.Service
	push         *metricspush.Job

	mu       sync.Mutex
	lastPush time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Transactions == nil || p.Payouts == nil || p.Refunds == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        clk,
		transactions: p.Transactions,
		payouts:      p.Payouts,
		refunds:      p.Refunds,
		push:         p.Push,
	}, nil
}

// runJob runs fn under a soft deadline: a job that times out is logged and
// counted but does not fail the loop.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

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

type job struct {
	name string
	run  func(ctx context.Context, run *jobRun) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobExpireTransactions, s.expireTransactions},
		{JobReconcileTransactions, s.reconcileTransactions},
		{JobRetryPayouts, s.retryPayouts},
		{JobReconcilePayouts, s.reconcilePayouts},
		{JobAutoPayouts, s.autoPayouts},
		{JobMetricsPush, s.metricsPush},
	}
}

// RunOnce runs every enabled job once, in order, and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		if j.name == JobMetricsPush && !s.pushDue() {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = time.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if name == JobMetricsPush && s.push == nil {
		return false
	}
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

func (s *Scheduler) pushDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if !s.lastPush.IsZero() && now.Sub(s.lastPush) < s.cfg.PushInterval {
		return false
	}
	s.lastPush = now
	return true
}

func (s *Scheduler) expireTransactions(ctx context.Context, run *jobRun) error {
	n, err := s.transactions.ExpireStale(ctx, run.batchSize)
	s.recordProcessed(run, "transactions", n)
	return err
}

// reconcileTransactions re-verifies payments and refunds that have been waiting
// on their provider past the grace period.
func (s *Scheduler) reconcileTransactions(ctx context.Context, run *jobRun) error {
	n, err := s.transactions.ReconcileProcessing(ctx, run.batchSize)
	s.recordProcessed(run, "transactions", n)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.transactions.reconcile.failed", err)
	}

	m, refundErr := s.refunds.ReconcileUnresolved(ctx, run.batchSize)
	s.recordProcessed(run, "refunds", m)
	if refundErr != nil {
		s.logSchedulerError(ctx, run, "scheduler.refunds.reconcile.failed", refundErr)
	}
	return errors.Join(err, refundErr)
}

func (s *Scheduler) retryPayouts(ctx context.Context, run *jobRun) error {
	n, err := s.payouts.RetryDue(ctx, run.batchSize)
	s.recordProcessed(run, "payouts", n)
	return err
}

func (s *Scheduler) reconcilePayouts(ctx context.Context, run *jobRun) error {
	n, err := s.payouts.ReconcileProcessing(ctx, run.batchSize)
	s.recordProcessed(run, "payouts", n)
	return err
}

func (s *Scheduler) autoPayouts(ctx context.Context, run *jobRun) error {
	res, err := s.payouts.RunAutoPayouts(ctx, s.clock.Now(), run.batchSize)
	s.recordProcessed(run, "payouts", res.Created)
	if res.Considered > 0 {
		s.logger(ctx).Info("scheduler.auto_payouts.batch",
			zap.String("batch_reference", res.BatchReference),
			zap.Int("considered", res.Considered),
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	for i := 0; i < res.Failed; i++ {
		run.IncError()
	}
	return err
}

func (s *Scheduler) metricsPush(ctx context.Context, _ *jobRun) error {
	return s.push.Run(ctx)
}

func (s *Scheduler) recordProcessed(run *jobRun, resource string, n int) {
	run.AddProcessed(n)
	obsmetrics.Scheduler().AddBatchProcessed(run.job, resource, n)
}
