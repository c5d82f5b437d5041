// Package daemon binds the monitor and run history to the control
// transport.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modoterra/bootmon/internal/buildinfo"
	"github.com/modoterra/bootmon/pkg/core"
	"github.com/modoterra/bootmon/pkg/history"
	"github.com/modoterra/bootmon/pkg/monitor"
	"github.com/modoterra/bootmon/pkg/transport/uds"
)

// Daemon is the bootmond process: it serves the control socket and
// relays monitor events to connected clients.
type Daemon struct {
	server  *uds.Server
	monitor *monitor.Monitor
	store   *history.Store
	logger  *slog.Logger
}

// New creates a daemon serving the given monitor and history store on
// socketPath.
func New(socketPath string, mon *monitor.Monitor, store *history.Store, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		server:  uds.NewServer(socketPath, logger),
		monitor: mon,
		store:   store,
		logger:  logger,
	}
	d.registerHandlers()
	d.wireEvents()
	return d
}

// Run starts the control server and blocks until the context is
// cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	return d.server.Start(ctx)
}

// Shutdown cleans up the control socket and client connections. The
// monitor is stopped separately by the caller.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// wireEvents fans monitor callbacks out to connected clients.
func (d *Daemon) wireEvents() {
	d.monitor.OnState(func(phase core.Phase, runID string) {
		if evt, err := uds.NewEvent(uds.EventState, uds.StateEvent{Phase: string(phase), RunID: runID}); err == nil {
			d.server.Broadcast(evt)
		}
	})
	d.monitor.OnCrash(func(rec core.CrashRecord) {
		if evt, err := uds.NewEvent(uds.EventCrash, rec); err == nil {
			d.server.Broadcast(evt)
		}
	})
	d.monitor.OnLine(func(line core.LogLine) {
		if evt, err := uds.NewEvent(uds.EventLine, line); err == nil {
			d.server.Broadcast(evt)
		}
	})
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodLastCrash, d.handleLastCrash)
	d.server.Handle(uds.MethodRecentLogs, d.handleRecentLogs)
	d.server.Handle(uds.MethodHistory, d.handleHistory)
	d.server.Handle(uds.MethodSetEcho, d.handleSetEcho)
	d.server.Handle(uds.MethodSetRunID, d.handleSetRunID)
	d.server.Handle(uds.MethodStart, d.handleStart)
	d.server.Handle(uds.MethodStop, d.handleStop)
	d.server.Handle(uds.MethodVersion, d.handleVersion)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return uds.StatusResponse{
		Phase:   string(d.monitor.Phase()),
		RunID:   d.monitor.RunID(),
		Echo:    d.monitor.Echo(),
		Running: d.monitor.Running(),
		Runs:    d.store.Len(),
	}, nil
}

func (d *Daemon) handleLastCrash(_ context.Context, _ uds.Message) (any, error) {
	return uds.LastCrashResponse{Crash: d.monitor.LastCrash()}, nil
}

func (d *Daemon) handleRecentLogs(_ context.Context, msg uds.Message) (any, error) {
	var req uds.RecentLogsRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	}

	lines := d.monitor.RecentLogs()
	if req.Tail > 0 && req.Tail < len(lines) {
		lines = lines[len(lines)-req.Tail:]
	}
	return uds.RecentLogsResponse{Lines: lines}, nil
}

func (d *Daemon) handleHistory(_ context.Context, _ uds.Message) (any, error) {
	return d.store.Runs(), nil
}

func (d *Daemon) handleSetEcho(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetEchoRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	d.monitor.SetEcho(req.Enabled)
	d.logger.Info("echo toggled", "enabled", req.Enabled)
	return uds.OKResponse{OK: true}, nil
}

func (d *Daemon) handleSetRunID(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SetRunIDRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	d.monitor.SetRunID(req.RunID)
	d.logger.Info("run id override", "run", req.RunID)
	return uds.OKResponse{OK: true}, nil
}

func (d *Daemon) handleStart(_ context.Context, _ uds.Message) (any, error) {
	d.monitor.Start()
	return uds.OKResponse{OK: true}, nil
}

func (d *Daemon) handleStop(_ context.Context, _ uds.Message) (any, error) {
	d.monitor.Stop()
	return uds.OKResponse{OK: true}, nil
}

func (d *Daemon) handleVersion(_ context.Context, _ uds.Message) (any, error) {
	return uds.VersionResponse{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Date:    buildinfo.Date,
	}, nil
}
