package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/alerting"
	"github.com/ospreyops/tenantd/internal/config"
	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/health"
	"github.com/ospreyops/tenantd/internal/metrics"
	"github.com/ospreyops/tenantd/internal/notify"
	"github.com/ospreyops/tenantd/internal/storage/redis"
	"github.com/ospreyops/tenantd/pkg/keycloak"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	conn, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	repo := db.NewRepository(conn)

	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	publisher := events.NewRedisPublisher(cache.Client, logger)
	collector := metrics.NewCollector()

	identity := keycloak.NewClient(cfg.Identity.URL, cfg.Identity.AdminRealm, cfg.Identity.ClientID, cfg.Identity.ClientSecret, cfg.Identity.Timeout)

	// Module checkers are registered per module type here, at startup.
	moduleRegistry := map[string]health.ModuleChecker{
		"crm":       health.NewHTTPModuleChecker("crm"),
		"billing":   health.NewHTTPModuleChecker("billing"),
		"inventory": health.NewHTTPModuleChecker("inventory"),
		"reporting": health.NewHTTPModuleChecker("reporting"),
	}

	runner := health.NewRunner(
		health.DatabaseCheck{},
		health.NewApplicationCheck(),
		health.NewIdentityCheck(identity),
		health.NewDNSCheck(cfg.Health.BaseDomain, cfg.Health.DNSResolver),
		health.NewModuleCheck(moduleRegistry),
	)

	var writer metrics.HealthWriter
	if cfg.Metrics.RemoteWriteURL != "" {
		writer = metrics.NewRemoteWriter(cfg.Metrics.RemoteWriteURL, cfg.Metrics.TenantHeader, cfg.Metrics.AuthToken, cfg.Metrics.Timeout)
	}

	healthScheduler := health.NewScheduler(
		repo, runner, cache, writer,
		redis.NewLock(cache, "health-scheduler", cfg.Health.Interval),
		publisher, collector, logger,
		health.Options{
			Interval:     cfg.Health.Interval,
			CheckTimeout: cfg.Health.CheckTimeout,
			WorkerCount:  cfg.Health.WorkerCount,
		},
	)

	channels := map[string]notify.Channel{
		notify.ChannelEmail:       notify.NewEmailChannel(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom, cfg.Notify.Timeout),
		notify.ChannelChatWebhook: notify.NewChatWebhookChannel(cfg.Notify.Timeout),
		notify.ChannelWebhook:     notify.NewWebhookChannel(cfg.Notify.Timeout),
		notify.ChannelSMS:         notify.NewSMSChannel(cfg.Notify.SMSGatewayURL, cfg.Notify.Timeout),
	}
	dispatcher := notify.NewDispatcher(channels, repo, cfg.Notify.RatePerSecond, collector, logger)
	alertService := alerting.NewService(repo, dispatcher, publisher, collector, logger)

	backend := metrics.NewPrometheusBackend(cfg.Metrics.QueryURL, cfg.Metrics.TenantHeader, cfg.Metrics.AuthToken, cfg.Metrics.Timeout)
	engine := alerting.NewEngine(
		repo, backend, alertService,
		redis.NewLock(cache, "alert-engine", cfg.Alerting.TickInterval),
		collector, logger,
		alerting.EngineOptions{
			TickInterval:    cfg.Alerting.TickInterval,
			MinRuleInterval: cfg.Alerting.MinRuleInterval,
			QueryTimeout:    cfg.Alerting.QueryTimeout,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		healthScheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		engine.Start(ctx)
	}()

	logger.Info("Schedulers started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down schedulers")
	cancel()
	wg.Wait()
	logger.Info("Schedulers stopped")
}
