package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/metrics"
)

// RuleStore lists the rules the engine evaluates. Rules are read-only here;
// administrators mutate them through the API.
type RuleStore interface {
	GetEnabledAlertRules(ctx context.Context) ([]*db.AlertRule, error)
}

// Leader gates a tick so only one engine instance cluster-wide evaluates.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

type EngineOptions struct {
	TickInterval    time.Duration
	MinRuleInterval time.Duration
	QueryTimeout    time.Duration
	MaxConcurrent   int
}

// Engine evaluates every enabled rule on that rule's own interval. All due
// rules run concurrently, each isolated: a query failure or panic skips
// that rule's cycle and nothing else.
type Engine struct {
	rules   RuleStore
	backend metrics.Backend
	service *Service
	leader  Leader
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    EngineOptions

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewEngine(rules RuleStore, backend metrics.Backend, service *Service, leader Leader, collector *metrics.Collector, logger *zap.Logger, opts EngineOptions) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 15 * time.Second
	}
	if opts.MinRuleInterval <= 0 {
		opts.MinRuleInterval = 30 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 20
	}
	return &Engine{
		rules:   rules,
		backend: backend,
		service: service,
		leader:  leader,
		metrics: collector,
		logger:  logger,
		opts:    opts,
		lastRun: make(map[string]time.Time),
	}
}

func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting alert engine", zap.Duration("tick", e.opts.TickInterval))

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping alert engine")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if e.leader != nil {
		ok, err := e.leader.TryAcquire(ctx)
		if err != nil {
			e.logger.Error("Leader lock check failed, skipping tick", zap.Error(err))
			return
		}
		if !ok {
			return
		}
	}

	rules, err := e.rules.GetEnabledAlertRules(ctx)
	if err != nil {
		e.logger.Error("Failed to list alert rules", zap.Error(err))
		return
	}

	now := time.Now()
	due := make([]*db.AlertRule, 0, len(rules))
	current := make(map[string]struct{}, len(rules))
	e.mu.Lock()
	for _, rule := range rules {
		current[rule.ID] = struct{}{}
		interval := time.Duration(rule.Interval) * time.Second
		if interval < e.opts.MinRuleInterval {
			interval = e.opts.MinRuleInterval
		}
		if now.Sub(e.lastRun[rule.ID]) >= interval {
			e.lastRun[rule.ID] = now
			due = append(due, rule)
		}
	}
	// Deleted and disabled rules leave no timestamps behind; the map stays
	// bounded by the live rule set.
	for id := range e.lastRun {
		if _, ok := current[id]; !ok {
			delete(e.lastRun, id)
		}
	}
	e.mu.Unlock()

	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, e.opts.MaxConcurrent)
	var wg sync.WaitGroup
	for _, rule := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule *db.AlertRule) {
			defer wg.Done()
			defer func() { <-sem }()
			e.evaluateRule(ctx, rule)
		}(rule)
	}
	wg.Wait()
}

// evaluateRule runs one rule's query and triggers alerts for breaching
// samples. Every failure path ends here; nothing propagates to the loop.
func (e *Engine) evaluateRule(ctx context.Context, rule *db.AlertRule) {
	defer func() {
		if rec := recover(); rec != nil {
			e.metrics.RecordRuleEvaluation("panic")
			e.logger.Error("Rule evaluation panicked",
				zap.String("rule_id", rule.ID),
				zap.Any("panic", rec),
			)
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	samples, err := e.backend.Query(queryCtx, rule.MetricQuery)
	if err != nil {
		// Transient backend trouble: log, skip this cycle for this rule.
		e.metrics.RecordRuleEvaluation("query_error")
		e.logger.Warn("Metric query failed, skipping rule this cycle",
			zap.Error(err),
			zap.String("rule_id", rule.ID),
			zap.String("query", rule.MetricQuery),
		)
		return
	}

	breached := false
	for _, sample := range samples {
		met, err := rule.ConditionMet(sample.Value)
		if err != nil {
			e.metrics.RecordRuleEvaluation("invalid_rule")
			e.logger.Error("Rule has invalid condition", zap.Error(err), zap.String("rule_id", rule.ID))
			return
		}
		if !met {
			continue
		}
		breached = true
		if _, _, err := e.service.TriggerFromSample(ctx, rule, sample); err != nil {
			e.logger.Error("Failed to trigger alert",
				zap.Error(err),
				zap.String("rule_id", rule.ID),
			)
		}
		// One alert per (rule, tenant) pair; further breaching samples in
		// the same result set dedup against the alert just created.
	}

	outcome := "ok"
	if breached {
		outcome = "breached"
	}
	e.metrics.RecordRuleEvaluation(outcome)
}

// ValidateRule rejects rules the engine could not evaluate. Used by the
// admin API before persisting.
func ValidateRule(rule *db.AlertRule, minInterval time.Duration) error {
	switch rule.Operator {
	case "gt", "lt", "gte", "lte", "eq", "ne":
	default:
		return fmt.Errorf("unknown operator %q", rule.Operator)
	}
	if rule.MetricQuery == "" {
		return fmt.Errorf("metric query is required")
	}
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if time.Duration(rule.Interval)*time.Second < minInterval {
		return fmt.Errorf("evaluation interval must be at least %s", minInterval)
	}
	return nil
}
