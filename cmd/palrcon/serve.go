package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/palrcon/internal/api"
	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/connector"
	"github.com/energizer-project/palrcon/internal/db"
	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/health"
	"github.com/energizer-project/palrcon/internal/scheduler"
	"github.com/energizer-project/palrcon/internal/server"
	"github.com/energizer-project/palrcon/internal/telemetry"
	"github.com/energizer-project/palrcon/internal/util"
)

const Banner = `
             _
 _ __   __ _| |_ __ ___ ___  _ __
| '_ \ / _' | | '__/ __/ _ \| '_ \
| |_) | (_| | | | | (_| (_) | | | |
| .__/ \__,_|_|_|  \___\___/|_| |_|
|_|  v%s
 Palworld RCON administration
`

func defaultConfigPath() string {
	return filepath.Join(config.DefaultConfigDir, config.DefaultConfigFile)
}

// loadConfig loads the file at path and reconfigures logging from it.
func loadConfig(path string) (*config.Config, error) {
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := util.InitLogger(cfg.Snapshot().Logging); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}
	return cfg, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	path := fs.String("config", defaultConfigPath(), "Configuration file (.json or .yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("config", cfg.Path()).
		Msg("starting palrcon")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if !cfg.IsFirstRun() {
			return fmt.Errorf("configuration validation failed, please fix the errors above")
		}
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	s := cfg.Snapshot()
	bus := events.NewBus()

	client, err := server.NewClient(s.RCON)
	if err != nil {
		return err
	}
	mgr := server.NewManager(client, bus, server.OptionsFromConfig(s.RCON))
	if err := mgr.Connect(ctx); err != nil {
		// The executor reconnects on the next command.
		log.Warn().Err(err).Str("addr", mgr.Addr()).Msg("initial RCON connection failed")
	}

	var ledger *db.Ledger
	diskPath := "."
	if s.Database.Enabled {
		ledger, err = db.OpenLedger(ctx, s.Database.Path)
		if err != nil {
			return err
		}
		ledger.Attach(bus)
		diskPath = filepath.Dir(s.Database.Path)
	}

	monitor := health.NewMonitor(mgr, bus, health.Options{
		Interval:         time.Duration(s.Health.IntervalSec) * time.Second,
		FailureThreshold: s.Health.FailureThreshold,
		Timeout:          s.RCON.CommandTimeout(),
		DiskPath:         diskPath,
	})

	sched := scheduler.New(mgr, scheduler.OptionsFromConfig(s.Scheduler, s.RCON.CommandTimeout()))

	var mqttHandler *telemetry.MQTTHandler
	if s.MQTT.Enabled {
		status := func() interface{} {
			snap := mgr.State().Snapshot()
			return map[string]interface{}{
				"health":       monitor.Status().State,
				"connected":    mgr.Connected(),
				"player_count": snap.Count,
				"uptime":       snap.Uptime,
			}
		}
		mqttHandler, err = telemetry.NewMQTTHandler(s.MQTT, status, 0)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			mqttHandler.Attach(bus)
		}
	}

	if s.Discord.Enabled {
		connector.NewDiscordNotifier(s.Discord, mgr.Addr()).Attach(bus)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	if s.API.Enabled {
		apiServer := api.NewServer(api.Options{
			Config:  cfg,
			Manager: mgr,
			Monitor: monitor,
			Ledger:  ledger,
			Version: AppVersion,
		})
		g.Go(func() error {
			return startWithRetry(gctx, "API server", apiServer.Start, 5)
		})
	}

	if mqttHandler != nil {
		g.Go(func() error {
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
			return nil
		})
	}

	if ledger != nil && s.Database.RetentionDays > 0 {
		retention := time.Duration(s.Database.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			pruneLoop(gctx, ledger, retention)
			return nil
		})
	}

	err = g.Wait()

	log.Info().Msg("initiating graceful shutdown...")
	bus.EmitSync(context.Background(), events.New(events.EventShutdown, "main", nil))
	bus.Stop()

	if ledger != nil {
		if cerr := ledger.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close ledger")
		}
	}
	if cerr := mgr.Close(); cerr != nil {
		log.Debug().Err(cerr).Msg("RCON disconnect failed")
	}

	log.Info().Msg("palrcon stopped")
	return err
}

// startWithRetry retries startFn, which usually fails on a port still held
// by a previous process.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).
				Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}

func pruneLoop(ctx context.Context, ledger *db.Ledger, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		n, err := ledger.Prune(ctx, retention)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("ledger prune failed")
		} else if n > 0 {
			log.Info().Int64("rows", n).Msg("pruned ledger")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
