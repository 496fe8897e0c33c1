// Command simtap attaches to a running sim's shared-memory telemetry,
// decodes every published snapshot, and optionally serves metrics,
// broadcasts frames over websocket, and records stints to disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitlane/simtap/internal/broadcast"
	"github.com/pitlane/simtap/internal/client"
	"github.com/pitlane/simtap/internal/config"
	"github.com/pitlane/simtap/internal/record"
	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/shm"
	"github.com/pitlane/simtap/utils"
)

func main() {
	configPath := flag.String("config", "", "path to simtap.yaml (defaults apply when empty)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := utils.INFO
	if *verbose {
		level = utils.DEBUG
	}
	logger := utils.NewLogger(utils.LoggerConfig{Level: level, Component: "simtap"})

	if err := run(logger, *configPath); err != nil {
		logger.Error("Exiting", utils.Err(err))
		os.Exit(1)
	}
}

func run(logger *utils.Logger, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := utils.NewGracefulShutdown(5*time.Second, logger.Component("shutdown"))

	// Process-lifetime handles: the mapping and the signal outlive
	// every loop iteration and are released exactly once at exit.
	mapping, err := shm.OpenFileMapping(cfg.Mapping.Path)
	if err != nil {
		if errors.Is(err, shm.ErrNotPresent) {
			return fmt.Errorf("telemetry not published, is the sim running? (%w)", err)
		}
		return err
	}
	shutdown.Register(mapping.Close)

	dataValid, err := shm.OpenEpochSignal(cfg.Signal.Path)
	if err != nil {
		if errors.Is(err, shm.ErrNotPresent) {
			return fmt.Errorf("data-valid signal not published: %w", err)
		}
		return err
	}
	shutdown.Register(dataValid.Close)

	metrics := client.NewMetrics(prometheus.DefaultRegisterer)
	serveMetrics(cfg.Metrics.Addr, logger)

	var caster *broadcast.Server
	if cfg.Broadcast.Enabled {
		caster = broadcast.NewServer(logger.Component("broadcast"))
		shutdown.Register(caster.Close)
		serveBroadcast(cfg.Broadcast.Addr, caster, logger)
	}

	var recorder *record.Writer
	if cfg.Record.Enabled {
		recorder, err = record.NewWriter(cfg.Record.Path)
		if err != nil {
			return err
		}
		shutdown.Register(recorder.Close)
		logger.Info("Recording", utils.String("path", cfg.Record.Path))
	}

	loop := client.NewLoop(mapping, dataValid, client.Options{
		Policy:       client.Policy(cfg.Decode.Policy),
		Reverify:     cfg.Decode.Reverify,
		DecodeValues: cfg.Decode.Values || cfg.Record.Enabled,
		Logger:       logger.Component("loop"),
		Metrics:      metrics,
	})

	logger.Info("Attached to telemetry",
		utils.String("mapping", cfg.Mapping.Path),
		utils.String("signal", cfg.Signal.Path),
		utils.String("policy", cfg.Decode.Policy),
	)

	runErr := loop.Run(ctx, func(snap *client.Snapshot) {
		handleSnapshot(logger, snap, caster, recorder)
	})

	if shutdownErr := shutdown.Shutdown(context.Background()); shutdownErr != nil && runErr == nil {
		runErr = shutdownErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func handleSnapshot(logger *utils.Logger, snap *client.Snapshot, caster *broadcast.Server, recorder *record.Writer) {
	logger.Debug("Snapshot",
		utils.Int32("tick", snap.Header.VarBufs[snap.BufIndex].TickCount),
		utils.Int("vars", len(snap.Vars)),
		utils.Int("skipped", len(snap.Skipped)),
		utils.Int("buf", snap.BufIndex),
	)
	for _, skipped := range snap.Skipped {
		logger.Warn("Variable skipped", utils.Int("index", skipped.Index), utils.Err(skipped.Err))
	}
	if snap.SessionInfo != nil {
		if info, err := sdk.ParseSessionInfo(snap.SessionInfo); err == nil && info.TrackDisplayName != "" {
			logger.Info("Session", utils.String("track", info.TrackDisplayName), utils.Int("session_id", info.SessionID))
		}
	}

	if caster != nil {
		caster.Publish(broadcast.FrameFromSnapshot(snap))
	}
	if recorder != nil {
		if err := recorder.WriteSnapshot(snap); err != nil {
			logger.Error("Recording failed", utils.Err(err))
		}
	}
}

func serveMetrics(addr string, logger *utils.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Metrics server stopped", utils.Err(err))
		}
	}()
	logger.Info("Metrics listening", utils.String("addr", addr))
}

func serveBroadcast(addr string, caster *broadcast.Server, logger *utils.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/telemetry", caster)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Broadcast server stopped", utils.Err(err))
		}
	}()
	logger.Info("Broadcast listening", utils.String("addr", addr))
}
