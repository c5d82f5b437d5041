package monitor

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/bootmon/pkg/core"
	"github.com/modoterra/bootmon/pkg/history"
	"github.com/modoterra/bootmon/pkg/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSource plays back a fixed set of lines, then reports timeouts
// until closed.
type scriptedSource struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (s *scriptedSource) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("scripted source closed")
	}
	if len(s.lines) == 0 {
		return "", source.ErrTimeout
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedSource) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMonitorEndToEnd(t *testing.T) {
	src := &scriptedSource{lines: []string{
		"NOTICE:  CPU: STM32MP257FAI Rev.Y",
		"boot msg",
		"Synchronous Abort",
		"elr: 0x1234",
		"Code: 11111111 22222222 (33333333)",
		"## Starting application at 0x88000040 ...",
	}}

	store := history.New(filepath.Join(t.TempDir(), "history.json"), quietLogger())
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	var crashes []core.CrashRecord
	var crashMu sync.Mutex
	m.OnCrash(func(rec core.CrashRecord) {
		crashMu.Lock()
		crashes = append(crashes, rec)
		crashMu.Unlock()
	})

	m.Start()
	waitFor(t, func() bool { return src.drained() && m.Phase() == core.PhaseRunning })
	m.Stop()

	if m.Running() {
		t.Error("worker should have exited after Stop")
	}

	crashMu.Lock()
	defer crashMu.Unlock()
	if len(crashes) != 1 {
		t.Fatalf("expected one crash, got %d", len(crashes))
	}
	if crashes[0].RunID != "run_1" || !crashes[0].Complete {
		t.Errorf("crash = %+v, want complete record for run_1", crashes[0])
	}

	// Persisted synchronously on finalize.
	persisted, ok := store.Get("run_1")
	if !ok {
		t.Fatal("crash not persisted to history")
	}
	if persisted.FaultingInstruction == nil || *persisted.FaultingInstruction != "33333333" {
		t.Errorf("persisted faulting = %v, want 33333333", persisted.FaultingInstruction)
	}

	last := m.LastCrash()
	if last == nil || last.RunID != "run_1" {
		t.Errorf("LastCrash = %+v, want run_1", last)
	}
}

func TestMonitorResumesRunCounterFromStore(t *testing.T) {
	store := history.New("", quietLogger())
	store.Put("run_7", core.CrashRecord{RunID: "run_7"})

	src := &scriptedSource{lines: []string{"NOTICE:  CPU: STM32MP257FAI Rev.Y"}}
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	m.Start()
	waitFor(t, func() bool { return m.RunID() == "run_8" })
	m.Stop()
}

func TestMonitorEchoCallback(t *testing.T) {
	src := &scriptedSource{lines: []string{"hello", "world"}}
	store := history.New("", quietLogger())
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	var seen []string
	var seenMu sync.Mutex
	m.OnLine(func(l core.LogLine) {
		seenMu.Lock()
		seen = append(seen, l.Line)
		seenMu.Unlock()
	})
	m.SetEcho(true)

	m.Start()
	waitFor(t, func() bool {
		seenMu.Lock()
		defer seenMu.Unlock()
		return len(seen) == 2
	})
	m.Stop()

	seenMu.Lock()
	defer seenMu.Unlock()
	if seen[0] != "hello" || seen[1] != "world" {
		t.Errorf("echoed lines = %v", seen)
	}
}

func TestMonitorEchoDisabledByDefault(t *testing.T) {
	src := &scriptedSource{lines: []string{"hello"}}
	store := history.New("", quietLogger())
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	called := false
	m.OnLine(func(core.LogLine) { called = true })

	m.Start()
	waitFor(t, func() bool { return src.drained() && len(m.RecentLogs()) == 1 })
	m.Stop()

	if called {
		t.Error("OnLine must not fire while echo is off")
	}
}

func TestMonitorOpenFailureExitsWorker(t *testing.T) {
	store := history.New("", quietLogger())
	m := New(func() (source.LineSource, error) {
		return nil, errors.New("no such device")
	}, store, 100, quietLogger())

	m.Start()
	waitFor(t, func() bool { return !m.Running() })

	// Start can be re-invoked after remediation.
	src := &scriptedSource{lines: []string{"hello"}}
	next := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())
	next.Start()
	waitFor(t, func() bool { return src.drained() })
	next.Stop()
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	src := &scriptedSource{}
	store := history.New("", quietLogger())
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	m.Stop() // never started
	m.Start()
	waitFor(t, func() bool { return m.Running() })
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("expected stopped worker")
	}
}

func TestMonitorStateCallback(t *testing.T) {
	src := &scriptedSource{lines: []string{
		"NOTICE:  CPU: STM32MP257FAI Rev.Y",
		"## Starting application at 0x88000040 ...",
	}}
	store := history.New("", quietLogger())
	m := New(func() (source.LineSource, error) { return src, nil }, store, 100, quietLogger())

	var phases []core.Phase
	var phasesMu sync.Mutex
	m.OnState(func(phase core.Phase, runID string) {
		phasesMu.Lock()
		phases = append(phases, phase)
		phasesMu.Unlock()
	})

	m.Start()
	waitFor(t, func() bool {
		phasesMu.Lock()
		defer phasesMu.Unlock()
		return len(phases) == 2
	})
	m.Stop()

	phasesMu.Lock()
	defer phasesMu.Unlock()
	if phases[0] != core.PhaseBooting || phases[1] != core.PhaseRunning {
		t.Errorf("phases = %v, want [booting running]", phases)
	}
}
