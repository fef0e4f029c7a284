package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lucaslui/hems/sensor-bridge/internal/config"
	"github.com/lucaslui/hems/sensor-bridge/internal/database"
	"github.com/lucaslui/hems/sensor-bridge/internal/metrics"
	"github.com/lucaslui/hems/sensor-bridge/internal/mqtt"
	"github.com/lucaslui/hems/sensor-bridge/internal/pipeline"
	"github.com/lucaslui/hems/sensor-bridge/internal/runtime"
	"github.com/lucaslui/hems/sensor-bridge/internal/server"
	"github.com/lucaslui/hems/sensor-bridge/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sensor-bridge: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens on all exit paths.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log)
	logger.Info().Str("config", cfg.String()).Msg("boot")

	ctx, cancel := runtime.SignalContext(context.Background(), logger)
	defer cancel()

	db := database.NewInfluxDB(cfg.Influx, logger)
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Influx.WriteTimeout)
	if err := db.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("url", cfg.Influx.URL).Msg("influxdb not reachable yet, writes will fail until it is")
	}
	pingCancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	latest := state.NewLatestReadingCache()
	pipe := pipeline.New(latest, db, cfg.Influx.Measurement, m, logger)
	listener := mqtt.NewListener(ctx, pipe, cfg.MQTT.MaxDepth, m, logger)

	client := mqtt.BuildMQTTClient(cfg.MQTT, listener, logger)
	if err := mqtt.ConnectWithBackoff(ctx, client, cfg.MQTT.ConnectBackoff, cfg.MQTT.MaxBackoff, logger); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect(250)

	srv := server.New(cfg.HTTP, latest, reg, logger)

	err = srv.Start(ctx)

	logger.Info().Msg("sensor-bridge stopped")
	return err
}
