package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sensor-hub/internal/config"
	"sensor-hub/internal/control"
	"sensor-hub/internal/httpapi"
	"sensor-hub/internal/ingest"
	"sensor-hub/internal/mqtt"
	"sensor-hub/internal/realtime"
	"sensor-hub/internal/retention"
	"sensor-hub/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	required := []struct{ key, val string }{
		{"MQTT_BROKER_URL", cfg.MQTTBrokerURL},
		{"POSTGRES_USER", cfg.Postgres.User},
		{"POSTGRES_DB", cfg.Postgres.DBName},
		{"POSTGRES_HOST", cfg.Postgres.Host},
		{"POSTGRES_PORT", cfg.Postgres.Port},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			slog.Error("missing required env", "key", r.key)
			os.Exit(1)
		}
	}

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	var cache *store.StateCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		cache = store.NewStateCache(rdb)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The process is useless without its data source: fail fast.
	mq, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
	if err != nil {
		slog.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	hub := realtime.NewHub()

	ing := &ingest.Ingestor{
		Repo:       repo,
		Cache:      cache,
		Publisher:  mq,
		Broadcast:  hub,
		AlarmTopic: cfg.Topics.AlarmControl,
	}
	if err := mq.Subscribe(cfg.Topics.Telemetry, func(m mqtt.Message) {
		ing.HandleTelemetry(ctx, m, time.Now().UTC())
	}); err != nil {
		slog.Error("mqtt subscribe failed", "topic", cfg.Topics.Telemetry, "error", err)
		os.Exit(1)
	}
	if err := mq.Subscribe(cfg.Topics.DeviceStatus, func(m mqtt.Message) {
		ing.HandleDeviceStatus(ctx, m, time.Now().UTC())
	}); err != nil {
		slog.Error("mqtt subscribe failed", "topic", cfg.Topics.DeviceStatus, "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion subscribed", "telemetry", cfg.Topics.Telemetry, "device_status", cfg.Topics.DeviceStatus)

	toggler := &control.Toggler{Repo: repo, Publisher: mq, ControlTopic: cfg.Topics.DeviceControl}

	sweeper := retention.New(repo, cfg.RetentionDays)
	if err := sweeper.Start(cfg.RetentionCron); err != nil {
		slog.Error("retention schedule failed", "error", err)
		os.Exit(1)
	}

	srv := httpapi.New(repo, cache, toggler, hub)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("sensor-hub listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	sweeper.Stop()
	cancel()
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
