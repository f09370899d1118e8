package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"servicewatch/internal/alert"
	"servicewatch/internal/config"
	"servicewatch/internal/domain"
	"servicewatch/internal/httpapi"
	"servicewatch/internal/httpapi/middleware"
	"servicewatch/internal/logging"
	"servicewatch/internal/outage"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo"
	"servicewatch/internal/repo/memory"
	"servicewatch/internal/repo/postgres"
	"servicewatch/internal/scheduler"
	"servicewatch/internal/syncer"
	"servicewatch/internal/tracker"
	"servicewatch/internal/tsdb"
)

type stores struct {
	endpoints repo.EndpointStore
	statuses  repo.StatusStore
	outages   repo.OutageStore
	windows   repo.MaintenanceStore
	alerts    repo.AlertStore
}

func main() {
	cfgStore := config.NewStore(config.Load())
	cfg := cfgStore.Current()

	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}

	// Probe defaults come from the live config snapshot so SIGHUP reloads
	// reach in-flight loops without a restart.
	probeDefaults := func() probe.Defaults {
		c := cfgStore.Current()
		return probe.Defaults{
			Timeout:  c.CheckTimeout,
			Attempts: c.RetryAttempts,
			Backoff:  c.RetryBackoff,
		}
	}
	prober := probe.NewProber()
	prober.Defaults = probeDefaults
	checker := &probe.RetryChecker{Inner: prober, Defaults: probeDefaults}

	dispatcher := alert.NewDispatcher(logger, st.windows, st.alerts, func() []domain.AlertRule {
		return alertRules(cfgStore.Current())
	})

	// Verification deliberately bypasses the retry decorator: one extra probe
	// answers "was that streak real", retries would mask exactly the flakiness
	// it exists to catch.
	manager := outage.NewManager(logger, st.outages, st.endpoints, prober, dispatcher, func() outage.Policy {
		c := cfgStore.Current()
		return outage.Policy{
			VerifyEnabled: c.VerifyOutages,
			EscalateAfter: c.EscalateAfter,
			SeverityRules: severityRules(),
		}
	})

	track := tracker.New(logger, st.statuses, manager, func() tracker.Policy {
		c := cfgStore.Current()
		return tracker.Policy{
			Threshold:       c.OutageThreshold,
			Recovery:        c.RecoveryThreshold,
			LatencyBudgetMS: c.LatencyBudgetMS,
		}
	})
	manager.SetHistory(track)

	sched := scheduler.New(logger, checker, track, st.endpoints,
		cfg.MaxConcurrentChecks, cfg.RegistryRefresh,
		func() time.Duration { return cfgStore.Current().CheckInterval })
	sched.SetForget(track.Forget)

	go sched.Run(ctx)
	go manager.RunEscalations(ctx, time.Minute)
	go cfgStore.WatchSIGHUP(ctx, logger)

	if cfg.TSDBURL != "" {
		sink := tsdb.NewClient(cfg.TSDBURL)
		go syncer.New(logger, st.statuses, st.outages, sink, cfg.SyncInterval, cfg.SyncBatch).Run(ctx)
	} else {
		logger.Warn("tsdb_sync_disabled")
	}

	api := &httpapi.Server{
		Logger:    logger,
		Endpoints: st.endpoints,
		Statuses:  st.statuses,
		Outages:   st.outages,
		Windows:   st.windows,
		Alerts:    st.alerts,
		States:    track,
		Resolver:  manager,
		Checker:   checker,
		Keys:      middleware.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
		Limits: httpapi.Limits{
			PublicRPM:   cfg.PublicRPM,
			PublicBurst: cfg.PublicBurst,
			AdminRPM:    cfg.AdminRPM,
			AdminBurst:  cfg.AdminBurst,
		},
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: api.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("engine_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen_error", zap.Error(err))
	}

	dispatcher.Wait()
	logger.Info("engine_stopped")
}

func openStores(ctx context.Context, logger *zap.Logger, cfg *config.Config) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("using_memory_stores")
		m := memory.New()
		return stores{endpoints: m, statuses: m, outages: m, windows: m, alerts: m}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return stores{}, err
	}
	logger.Info("postgres_connected")
	return stores{endpoints: pg, statuses: pg, outages: pg, windows: pg, alerts: pg}, nil
}

// alertRules builds the env-driven rule set: one default rule covering every
// severity plus a latency rule, both fanning out to all configured channels.
func alertRules(cfg *config.Config) []domain.AlertRule {
	var channels []domain.NotificationChannel
	if cfg.SlackWebhook != "" {
		channels = append(channels, domain.NotificationChannel{
			ID: "slack", Type: domain.ChannelSlack, Target: cfg.SlackWebhook,
		})
	}
	if cfg.AlertWebhookURL != "" {
		channels = append(channels, domain.NotificationChannel{
			ID: "webhook", Type: domain.ChannelWebhook, Target: cfg.AlertWebhookURL,
		})
	}
	if cfg.SendGridKey != "" && cfg.AlertEmailFrom != "" && cfg.AlertEmailTo != "" {
		channels = append(channels, domain.NotificationChannel{
			ID: "email", Type: domain.ChannelEmail,
			Target: cfg.AlertEmailTo, From: cfg.AlertEmailFrom, APIKey: cfg.SendGridKey,
		})
	}
	if len(channels) == 0 {
		return nil
	}
	return []domain.AlertRule{
		{ID: "default", Name: "all outages", Channels: channels, Throttle: cfg.ThrottleWindow},
		{ID: "latency", Name: "latency budget", Latency: true, Channels: channels, Throttle: cfg.ThrottleWindow},
	}
}

// severityRules maps endpoint tags to outage severity, most severe first.
func severityRules() []domain.SeverityRule {
	return []domain.SeverityRule{
		{Tag: "critical", Severity: domain.SeverityCritical},
		{Tag: "prod", Severity: domain.SeverityMajor},
		{Tag: "staging", Severity: domain.SeverityMinor},
		{Tag: "dev", Severity: domain.SeverityWarning},
	}
}
