package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/capture"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/config"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/history"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/pipeline"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/protocol"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/scheduler"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/server"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/sniffer"
)

const (
	realtimeInterval = 100 * time.Millisecond
	autosaveInterval = 10 * time.Second
	maintainInterval = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// run is the composition root: it wires capture, sniffer, decoder,
// engine, scheduler and web server together and blocks until a signal
// or a fatal pipeline error.
func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg, cmd, args)

	if !validLogLevel(cfg.LogLevel) {
		cfg.LogLevel = "info"
		if isInteractive() {
			cfg.LogLevel = promptLogLevel(os.Stdin, os.Stdout)
		}
	}
	initLogging(cfg)
	logger := log.GetLogger()
	logger.Infof("star-meter %s starting", version)

	settings, err := config.OpenSettings(cfg.Files.Settings)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	identity, err := meter.OpenIdentityCache(cfg.Files.UserCache, logger)
	if err != nil {
		return fmt.Errorf("failed to open user cache: %w", err)
	}

	engine := meter.NewManager(meter.Options{
		Settings: settings,
		Identity: identity,
		History:  history.NewWriter(cfg.Files.LogsDir, logger),
		FightLog: history.NewFightLog(cfg.Files.LogsDir),
		Logger:   logger,
		Version:  version,
	})

	decoder, err := protocol.NewDecoder(logger)
	if err != nil {
		return fmt.Errorf("failed to initialise frame decoder: %w", err)
	}
	decoder.Handle(protocol.SceneService, protocol.NewCombatHandler(meter.NewLoggingSink(engine, logger), logger))

	snif := sniffer.New(sniffer.Options{
		OnFrame: decoder.OnFrame,
		OnServerChange: func(core.FlowKey) {
			engine.ClearOnServerChange()
		},
		Logger: logger,
	})

	src, live, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}

	pipe := pipeline.New(pipeline.Config{
		Source:    src,
		Handler:   snif,
		QueueSize: cfg.Capture.QueueSize,
		Logger:    logger,
	})

	srv := server.New(server.Options{
		Engine:   engine,
		Settings: settings,
		History:  history.NewReader(cfg.Files.LogsDir),
		Stats: func() map[string]any {
			return map[string]any{
				"pipeline": pipe.Stats(),
				"sniffer":  snif.Stats(),
			}
		},
		Logger:      logger,
		BasePort:    cfg.HTTP.Port,
		OpenBrowser: cfg.HTTP.OpenBrowser,
	})

	sched := scheduler.New(logger)
	sched.Add("realtime-tick", realtimeInterval, func(time.Time) {
		engine.TickRealtime()
		srv.BroadcastSnapshot()
	})
	sched.Add("autosave", autosaveInterval, func(time.Time) {
		engine.AutoSave()
	})
	if live {
		// Replays carry historical capture timestamps; wall-clock
		// maintenance would evict their state mid-stream.
		sched.Add("sniffer-maintain", maintainInterval, func(now time.Time) {
			snif.Maintain(now)
		})
	}

	if err := pipe.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	sched.Start()
	if _, err := srv.Start(); err != nil {
		sched.Stop()
		pipe.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	done := pipe.Done()
wait:
	for {
		select {
		case <-ctx.Done():
			logger.Infof("shutdown signal received")
			break wait
		case err := <-pipe.Err():
			logger.Errorf("capture pipeline failed: %v", err)
			runErr = err
			break wait
		case <-done:
			logger.Infof("capture source drained; web interface stays up until interrupted")
			done = nil
		}
	}

	sched.Stop()
	pipe.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown incomplete: %v", err)
	}
	engine.Shutdown()
	logger.Infof("star-meter stopped")
	return runErr
}

// applyOverrides layers positional arguments and explicit flags over
// the file/env configuration.
func applyOverrides(cfg *config.Config, cmd *cobra.Command, args []string) {
	if len(args) > 0 {
		cfg.Device = args[0]
	}
	if len(args) > 1 {
		cfg.LogLevel = args[1]
	}
	if flags.pcapFile != "" {
		cfg.Capture.PcapFile = flags.pcapFile
	}
	if flags.afpacket {
		cfg.Capture.AFPacket = true
	}
	if cmd.Flags().Changed("port") {
		cfg.HTTP.Port = flags.port
	}
	if flags.logFile != "" {
		cfg.LogFile.Enabled = true
		cfg.LogFile.Path = flags.logFile
	}
	if flags.noBrowser {
		cfg.HTTP.OpenBrowser = false
	}
}

func initLogging(cfg *config.Config) {
	var file *log.FileAppenderOpt
	if cfg.LogFile.Enabled {
		file = &log.FileAppenderOpt{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
	}
	log.Init(log.Config{Level: cfg.LogLevel, File: file})
}

// buildSource picks the capture backend: offline replay, AF_PACKET or
// the default libpcap live handle. live reports whether wall-clock
// maintenance should run.
func buildSource(cfg *config.Config, logger log.Logger) (capture.Source, bool, error) {
	if cfg.Capture.PcapFile != "" {
		logger.Infof("replaying capture file %s", cfg.Capture.PcapFile)
		return capture.NewFileSource(cfg.Capture.PcapFile), false, nil
	}
	dev, err := chooseDevice(cfg.Device, logger)
	if err != nil {
		return nil, false, fmt.Errorf("no usable capture device: %w", err)
	}
	if cfg.Capture.AFPacket {
		logger.Infof("capturing on %s (AF_PACKET)", dev.Name)
		return capture.NewAFPacketSource(dev.Name), true, nil
	}
	logger.Infof("capturing on %s", dev.Name)
	return capture.NewLiveSource(dev.Name), true, nil
}
