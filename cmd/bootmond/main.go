package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/modoterra/bootmon/internal/buildinfo"
	"github.com/modoterra/bootmon/pkg/config"
	"github.com/modoterra/bootmon/pkg/daemon"
	"github.com/modoterra/bootmon/pkg/history"
	"github.com/modoterra/bootmon/pkg/monitor"
	"github.com/modoterra/bootmon/pkg/source"
)

func main() {
	configPath := flag.String("config", "bootmon.yaml", "path to the bootmon config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bootmond %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "err", e)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	store := history.New(cfg.History, logger)
	if err := store.Load(); err != nil {
		// A corrupt snapshot must not keep the monitor down; it will
		// be rewritten on the next finalize.
		logger.Warn("history load failed, starting empty", "err", err)
	}
	logger.Info("history loaded", "path", cfg.History, "runs", store.Len(), "max_run", store.MaxRun())

	var open source.Opener
	if cfg.ReplayFile != "" {
		open = func() (source.LineSource, error) {
			return source.OpenFile(cfg.ReplayFile, cfg.ReadTimeout())
		}
		logger.Info("replaying console capture", "file", cfg.ReplayFile)
	} else {
		open = func() (source.LineSource, error) {
			return source.OpenSerial(cfg.Device, cfg.Baud, cfg.ReadTimeout())
		}
		logger.Info("monitoring serial device", "device", cfg.Device, "baud", cfg.Baud)
	}

	mon := monitor.New(open, store, cfg.LogCapacity, logger)
	mon.SetEcho(cfg.Echo)

	d := daemon.New(cfg.Socket, mon, store, logger)
	defer d.Shutdown()

	mon.Start()
	defer mon.Stop()

	sd.SdNotify(false, sd.SdNotifyReady)
	defer sd.SdNotify(false, sd.SdNotifyStopping)

	logger.Info("starting bootmond", "version", buildinfo.Version)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		os.Exit(1)
	}
}
