package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/bootmon/pkg/core"
	"github.com/modoterra/bootmon/pkg/history"
	"github.com/modoterra/bootmon/pkg/source"
)

// readRetryDelay is how long the worker pauses after a transient read
// error before trying again.
const readRetryDelay = 200 * time.Millisecond

// Monitor owns the background worker that consumes the line source and
// drives the classifier. One mutex guards the shared query surface;
// it is never held across source reads or history writes.
type Monitor struct {
	open   source.Opener
	store  *history.Store
	logger *slog.Logger

	mu      sync.Mutex
	machine *Machine
	echo    bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	onState func(core.Phase, string)
	onCrash func(core.CrashRecord)
	onLine  func(core.LogLine)
}

// New creates a monitor reading from the source produced by open,
// persisting crash records to store. The run counter resumes past the
// highest run already recorded there.
func New(open source.Opener, store *history.Store, logCapacity int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	machine := NewMachine(logCapacity)
	machine.SeedCounter(store.MaxRun())
	return &Monitor{
		open:    open,
		store:   store,
		logger:  logger,
		machine: machine,
	}
}

// OnState registers a callback for phase or run transitions. Callbacks
// are invoked from the worker goroutine with no locks held.
func (m *Monitor) OnState(fn func(phase core.Phase, runID string)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// OnCrash registers a callback for each finalized crash record.
func (m *Monitor) OnCrash(fn func(core.CrashRecord)) {
	m.mu.Lock()
	m.onCrash = fn
	m.mu.Unlock()
}

// OnLine registers a callback receiving every consumed line while echo
// is enabled.
func (m *Monitor) OnLine(fn func(core.LogLine)) {
	m.mu.Lock()
	m.onLine = fn
	m.mu.Unlock()
}

// Start launches the background reader. It is a no-op when already
// running. The source is opened inside the worker; if the open fails
// the worker logs it and exits, and Start must be invoked again after
// remediation.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(ctx, m.done)
}

// Stop signals the worker and blocks until it has exited and the
// source is closed. After Stop returns nothing touches the transport.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the worker goroutine is alive.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetEcho toggles surfacing of consumed lines through the OnLine sink.
func (m *Monitor) SetEcho(enabled bool) {
	m.mu.Lock()
	m.echo = enabled
	m.mu.Unlock()
}

// Echo reports whether line echo is enabled.
func (m *Monitor) Echo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.echo
}

// Phase returns the current lifecycle phase.
func (m *Monitor) Phase() core.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Phase()
}

// RunID returns the current run identifier.
func (m *Monitor) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.RunID()
}

// SetRunID overrides the current run identifier.
func (m *Monitor) SetRunID(id string) {
	m.mu.Lock()
	m.machine.SetRunID(id)
	m.mu.Unlock()
}

// LastCrash returns the most recently finalized crash record, or nil.
func (m *Monitor) LastCrash() *core.CrashRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.LastCrash()
}

// RecentLogs returns a snapshot of the rolling console log.
func (m *Monitor) RecentLogs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.RecentLogs()
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	src, err := m.open()
	if err != nil {
		m.logger.Error("source open failed, monitor exiting", "err", err)
		return
	}
	defer src.Close()

	m.logger.Info("monitor started")

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := src.ReadLine()
		if errors.Is(err, source.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("source read failed", "err", err)
			select {
			case <-time.After(readRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		if line == "" {
			continue
		}
		m.handleLine(line)
	}
}

// handleLine runs one line through the classifier and performs the
// follow-up work (persistence, sinks) outside the lock.
func (m *Monitor) handleLine(line string) {
	m.mu.Lock()
	prevPhase := m.machine.Phase()
	prevRun := m.machine.RunID()
	rec := m.machine.Process(line)
	phase := m.machine.Phase()
	runID := m.machine.RunID()
	echo := m.echo
	onState, onCrash, onLine := m.onState, m.onCrash, m.onLine
	m.mu.Unlock()

	if echo && onLine != nil {
		onLine(core.LogLine{
			TsUnixMs: time.Now().UnixMilli(),
			RunID:    runID,
			Line:     line,
		})
	}

	if rec != nil {
		m.store.Put(rec.RunID, *rec)
		if err := m.store.Save(); err != nil {
			// In-memory history stays authoritative; the next
			// successful save carries this record too.
			m.logger.Error("history save failed", "run", rec.RunID, "err", err)
		}
		m.logger.Info("crash recorded", "run", rec.RunID, "complete", rec.Complete, "lines", len(rec.RawDump))
		if onCrash != nil {
			onCrash(*rec)
		}
	}

	if (phase != prevPhase || runID != prevRun) && onState != nil {
		onState(phase, runID)
	}
}
