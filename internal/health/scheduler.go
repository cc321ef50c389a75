package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/metrics"
)

// Store is the slice of the registry the scheduler reads and writes.
type Store interface {
	GetActiveTenants(ctx context.Context) ([]*db.Tenant, error)
	GetCurrentInfrastructure(ctx context.Context, tenantID string) (*db.TenantInfrastructure, error)
	SaveHealthCheckResult(ctx context.Context, result *db.HealthCheckResult) error
}

// StatusCache keeps the latest result per tenant for cheap dashboard reads.
type StatusCache interface {
	CacheTenantHealth(ctx context.Context, tenantID string, result interface{}) error
}

// Leader gates a tick so only one scheduler instance cluster-wide runs it.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

type Options struct {
	Interval     time.Duration
	CheckTimeout time.Duration
	WorkerCount  int
}

// Scheduler fans health checks out over all active tenants every interval.
// Tenants are checked concurrently through a bounded worker pool; one
// tenant's failure never delays or fails another's result.
type Scheduler struct {
	store     Store
	runner    *Runner
	cache     StatusCache
	writer    metrics.HealthWriter
	leader    Leader
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
	opts      Options

	wg sync.WaitGroup
}

type checkJob struct {
	tenant *db.Tenant
}

func NewScheduler(store Store, runner *Runner, cache StatusCache, writer metrics.HealthWriter, leader Leader, publisher events.Publisher, collector *metrics.Collector, logger *zap.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 30 * time.Second
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 10
	}
	return &Scheduler{
		store:     store,
		runner:    runner,
		cache:     cache,
		writer:    writer,
		leader:    leader,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		opts:      opts,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting health scheduler",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("worker_count", s.opts.WorkerCount),
	)

	workQueue := make(chan *checkJob, 1000)
	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.worker(ctx, id, workQueue)
		}(i)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	// First sweep right away instead of waiting a full interval.
	s.scheduleChecks(ctx, workQueue)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping health scheduler")
			close(workQueue)
			s.wg.Wait()
			return
		case <-ticker.C:
			s.scheduleChecks(ctx, workQueue)
		}
	}
}

func (s *Scheduler) scheduleChecks(ctx context.Context, workQueue chan<- *checkJob) {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("Leader lock check failed, skipping tick", zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Another instance holds the scheduler lock")
			return
		}
	}

	tenants, err := s.store.GetActiveTenants(ctx)
	if err != nil {
		s.logger.Error("Failed to list active tenants", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		select {
		case workQueue <- &checkJob{tenant: tenant}:
		default:
			s.logger.Warn("Work queue full, dropping check", zap.String("tenant_id", tenant.ID))
		}
	}
	s.logger.Debug("Scheduled health checks", zap.Int("tenants", len(tenants)))
}

func (s *Scheduler) worker(ctx context.Context, id int, workQueue <-chan *checkJob) {
	logger := s.logger.With(zap.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-workQueue:
			if !ok {
				return
			}
			s.processJob(ctx, job, logger)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *checkJob, logger *zap.Logger) {
	start := time.Now()
	s.metrics.CheckStarted()
	defer s.metrics.CheckFinished()

	checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
	defer cancel()

	infra, err := s.store.GetCurrentInfrastructure(checkCtx, job.tenant.ID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			// A registry outage says nothing about the tenant's health. Skip
			// the cycle rather than record a false unhealthy result.
			logger.Error("Failed to load infrastructure record",
				zap.Error(err),
				zap.String("tenant_id", job.tenant.ID),
			)
			return
		}
		// Missing record becomes an unhealthy result, not an aborted cycle.
		infra = nil
	}

	result := s.runner.RunTenant(checkCtx, job.tenant, infra)

	// Persistence uses the outer context: a slow check must not also lose
	// its own result to the per-check deadline.
	if err := s.store.SaveHealthCheckResult(ctx, result); err != nil {
		logger.Error("Failed to save health check result",
			zap.Error(err),
			zap.String("tenant_id", job.tenant.ID),
		)
		return
	}

	if s.cache != nil {
		if err := s.cache.CacheTenantHealth(ctx, job.tenant.ID, result); err != nil {
			logger.Debug("Failed to cache latest health", zap.Error(err))
		}
	}
	if s.writer != nil {
		if err := s.writer.WriteHealthResult(ctx, job.tenant, result); err != nil {
			logger.Warn("Failed to publish health metrics",
				zap.Error(err),
				zap.String("tenant_id", job.tenant.ID),
			)
		}
	}

	s.publisher.Publish(ctx, events.HealthCheckRecorded(job.tenant.ID, result.ID, string(result.Status)))
	s.metrics.RecordHealthCheck(job.tenant.ID, string(result.Status), time.Since(start))

	logger.Debug("Health check completed",
		zap.String("tenant_id", job.tenant.ID),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", time.Since(start)),
	)
}
