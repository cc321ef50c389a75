package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/alerting"
	"github.com/ospreyops/tenantd/internal/api"
	"github.com/ospreyops/tenantd/internal/config"
	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/metrics"
	"github.com/ospreyops/tenantd/internal/notify"
	"github.com/ospreyops/tenantd/internal/provision"
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

	// Database
	conn, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	repo := db.NewRepository(conn)

	// Redis
	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	publisher := events.NewRedisPublisher(cache.Client, logger)
	collector := metrics.NewCollector()

	// Provisioner collaborators
	platform := provision.NewPlatformClient(cfg.Platform.URL, cfg.Platform.AuthToken, cfg.Platform.Timeout)
	identity := keycloak.NewClient(cfg.Identity.URL, cfg.Identity.AdminRealm, cfg.Identity.ClientID, cfg.Identity.ClientSecret, cfg.Identity.Timeout)

	orchestrator := provision.NewOrchestrator(repo, provision.Provisioners{
		Namespace:  platform,
		Relational: provision.NewPostgresProvisioner(cfg.Database.AdminURL),
		Document:   provision.NewCouchProvisioner(cfg.DocumentDB.URL, cfg.DocumentDB.Username, cfg.DocumentDB.Password, cfg.DocumentDB.Timeout),
		Cache:      provision.NewPlatformCacheProvisioner(platform),
		Identity:   provision.NewKeycloakProvisioner(identity),
		Deployer:   platform,
	}, publisher, collector, logger)

	// Notification dispatcher and alert service (resolve path)
	channels := map[string]notify.Channel{
		notify.ChannelEmail:       notify.NewEmailChannel(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom, cfg.Notify.Timeout),
		notify.ChannelChatWebhook: notify.NewChatWebhookChannel(cfg.Notify.Timeout),
		notify.ChannelWebhook:     notify.NewWebhookChannel(cfg.Notify.Timeout),
		notify.ChannelSMS:         notify.NewSMSChannel(cfg.Notify.SMSGatewayURL, cfg.Notify.Timeout),
	}
	dispatcher := notify.NewDispatcher(channels, repo, cfg.Notify.RatePerSecond, collector, logger)
	alerts := alerting.NewService(repo, dispatcher, publisher, collector, logger)

	server := api.NewServer(cfg, repo, cache, orchestrator, alerts, dispatcher, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
