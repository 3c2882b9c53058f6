package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/config"
	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/engine"
	"sanatrack/safety-engine/internal/export"
	"sanatrack/safety-engine/internal/ledger"
	"sanatrack/safety-engine/internal/logger"
	"sanatrack/safety-engine/internal/notify"
	"sanatrack/safety-engine/internal/pipeline"
	"sanatrack/safety-engine/internal/registry"
	"sanatrack/safety-engine/internal/store"
	httptransport "sanatrack/safety-engine/internal/transport/http"
	"sanatrack/safety-engine/internal/transport/mqtt"
	"sanatrack/safety-engine/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "safety-engine")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := ledger.New()
	reg := registry.New(l)
	telemetry := store.NewMemoryTelemetryStore()
	statuses := store.NewStatusLog()

	var db *store.TimescaleStore
	if cfg.ArchiveEnabled || cfg.ContactsSource == "postgres" {
		db, err = store.NewTimescaleStore(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to connect to TimescaleDB", zap.Error(err))
		}
		defer db.Close()
		log.Info("Connected to TimescaleDB", zap.String("host", cfg.DBHost))
	}

	var redisStore *store.RedisStore
	if cfg.StateEnabled {
		redisStore, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisStore.Close()
		log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	var contacts pipeline.ContactDirectory = reg
	if cfg.ContactsSource == "postgres" {
		contacts = registry.NewPostgresContacts(db.Pool(), cfg.ContactsCacheTTL)
	}

	dispatcher := notify.NewDispatcher(buildNotifier(cfg, log), notify.Policy{
		MaxAttempts:    cfg.DispatchMaxAttempts,
		InitialBackoff: cfg.DispatchInitialBackoff,
		MaxBackoff:     cfg.DispatchMaxBackoff,
		Multiplier:     cfg.DispatchMultiplier,
		Deadline:       cfg.DispatchDeadline,
		AttemptTimeout: cfg.DispatchAttemptTimeout,
		MaxWorkers:     cfg.DispatchMaxWorkers,
	}, log.Named("dispatch"))

	archiveSize, stateSize := 0, 0
	if cfg.ArchiveEnabled {
		archiveSize = cfg.ArchiveChannelSize
	}
	if cfg.StateEnabled {
		stateSize = cfg.StateChannelSize
	}
	fanout := pipeline.NewFanout(archiveSize, stateSize, cfg.StreamChannelSize)

	p := pipeline.New(pipeline.Deps{
		Entities:  reg,
		Contacts:  contacts,
		Telemetry: telemetry,
		Zones:     store.NewGeofenceIndex(),
		Statuses:  statuses,
		Engine: engine.New(engine.Thresholds{
			Stale:         cfg.StaleThreshold,
			LowBattery:    cfg.LowBatteryPct,
			EscalateAfter: cfg.GeofenceEscalation,
		}),
		Ledger:     l,
		Dispatcher: dispatcher,
		Publisher:  fanout,
		Logger:     log.Named("pipeline"),
	})

	var sinks sync.WaitGroup
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	if fanout.ArchiveChan != nil {
		w := pipeline.NewArchiveWriter(fanout.ArchiveChan, db, log.Named("archive"), cfg.DBBatchSize, cfg.DBFlushIntervalMS)
		sinks.Go(func() { w.Run(sinkCtx) })
	}
	if fanout.StateChan != nil {
		w := pipeline.NewStateWriter(fanout.StateChan, redisStore, log.Named("state"))
		sinks.Go(func() { w.Run(sinkCtx) })
	}
	hub := ws.NewHub(log.Named("stream"))
	if fanout.StreamChan != nil {
		sinks.Go(func() { hub.Run(sinkCtx, fanout.StreamChan) })
	}

	sweeper, err := pipeline.NewSweeper(p, cfg.SweepSpec, log.Named("sweeper"))
	if err != nil {
		log.Fatal("Failed to create sweeper", zap.Error(err))
	}
	sweeper.Start()

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		subscriber, err = mqtt.NewSubscriber(cfg, p, log.Named("mqtt"))
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		log.Info("Subscribed to device telemetry", zap.String("topic", cfg.MQTTTopic))
	}

	api := httptransport.NewServer(p, reg, export.NewPlanner(telemetry, statuses, l, reg), hub, log.Named("http"))
	if db != nil {
		api.Checks["timescale"] = db
	}
	if redisStore != nil {
		api.Checks["redis"] = redisStore
		api.Locator = redisStore
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server error", zap.Error(err))
	}

	// Stop intake first, then let in-flight dispatches finish, then drain sinks.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.DispatchDeadline+10*time.Second)
	defer cancelShutdown()

	if subscriber != nil {
		subscriber.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	<-sweeper.Stop().Done()
	if err := p.Wait(shutdownCtx); err != nil {
		log.Warn("Dispatches still running at shutdown", zap.Error(err))
	}
	fanout.Close()
	sinks.Wait()

	log.Info("Safety engine stopped")
}

func buildNotifier(cfg *config.Config, log *zap.Logger) notify.Notifier {
	fallback := notify.NewLogNotifier(log.Named("notify"))
	router := notify.Router{
		domain.ChannelVoice:   fallback,
		domain.ChannelMessage: fallback,
	}
	if cfg.VoiceGatewayURL != "" {
		router[domain.ChannelVoice] = notify.NewWebhookNotifier(cfg.VoiceGatewayURL, cfg.GatewayToken, cfg.DispatchAttemptTimeout)
	}
	if cfg.MessageGatewayURL != "" {
		router[domain.ChannelMessage] = notify.NewWebhookNotifier(cfg.MessageGatewayURL, cfg.GatewayToken, cfg.DispatchAttemptTimeout)
	}
	return router
}
