// Package monitor classifies a stream of console lines into boot
// lifecycle phases, captures crash blocks, and runs the background
// worker that feeds the classifier from a line source.
package monitor

import (
	"time"

	"github.com/modoterra/bootmon/pkg/core"
	"github.com/modoterra/bootmon/pkg/crash"
)

// DefaultLogCapacity bounds the rolling console log.
const DefaultLogCapacity = 5000

// Machine is the boot/crash line classifier. It is not safe for
// concurrent use on its own; Monitor serializes access behind its mutex.
type Machine struct {
	phase       core.Phase
	logs        *ringBuffer
	crashActive bool
	crashBuf    []string
	runID       string
	runCounter  int
	lastCrash   *core.CrashRecord
}

// NewMachine creates a classifier with the given rolling-log capacity.
func NewMachine(logCapacity int) *Machine {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	return &Machine{
		phase: core.PhaseUnknown,
		logs:  newRingBuffer(logCapacity),
	}
}

// SeedCounter raises the run counter so automatically assigned IDs
// continue past runs recorded in an earlier process lifetime. Lower
// values are ignored: run IDs only ever move forward.
func (m *Machine) SeedCounter(n int) {
	if n > m.runCounter {
		m.runCounter = n
	}
}

// Process classifies one console line. It returns the finalized crash
// record when this line completes a crash block or force-terminates one
// via a reset marker, and nil otherwise.
func (m *Machine) Process(line string) *core.CrashRecord {
	if crash.IsResetMarker(line) {
		// A reset mid-capture means the dump never finished; keep
		// what we have as a partial record before starting over.
		var rec *core.CrashRecord
		if m.crashActive {
			rec = m.finalize(false)
		}
		m.runCounter++
		m.runID = core.FormatRunID(m.runCounter)
		m.logs.clear()
		m.phase = core.PhaseBooting
		m.logs.append(line)
		return rec
	}

	m.logs.append(line)

	if !m.crashActive && crash.IsCrashStart(line) {
		m.crashActive = true
		m.crashBuf = nil
	}

	if m.crashActive {
		m.crashBuf = append(m.crashBuf, line)
		if crash.IsCrashEnd(line) {
			return m.finalize(true)
		}
		// Lines inside an open crash block are never checked for
		// boot-finished or a nested crash start.
		return nil
	}

	if crash.IsBootFinished(line) {
		m.phase = core.PhaseRunning
	}
	return nil
}

// finalize converts the capture buffer into a record and clears the
// capture state. The buffer moves into the record; it is not copied.
func (m *Machine) finalize(complete bool) *core.CrashRecord {
	if m.runID == "" {
		// Crash arrived before any reset banner was seen, e.g. the
		// monitor attached to an already-wedged board.
		m.runCounter++
		m.runID = core.FormatRunID(m.runCounter)
	}
	rec := crash.Extract(m.crashBuf, m.runID, complete, time.Now())
	m.crashBuf = nil
	m.crashActive = false
	m.lastCrash = &rec
	return &rec
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() core.Phase {
	return m.phase
}

// RunID returns the current run identifier, or "" before the first
// reset or crash.
func (m *Machine) RunID() string {
	return m.runID
}

// SetRunID overrides the current run identifier, e.g. to correlate with
// an externally driven flash/reset sequence. When id carries a run_<n>
// suffix the counter is bumped so later automatic IDs stay monotonic.
func (m *Machine) SetRunID(id string) {
	m.runID = id
	if n, ok := core.ParseRunID(id); ok {
		m.SeedCounter(n)
	}
}

// LastCrash returns a copy of the most recently finalized record, or
// nil if no crash has been seen.
func (m *Machine) LastCrash() *core.CrashRecord {
	if m.lastCrash == nil {
		return nil
	}
	rec := *m.lastCrash
	return &rec
}

// RecentLogs returns a snapshot of the rolling console log.
func (m *Machine) RecentLogs() []string {
	return m.logs.snapshot()
}

// CrashActive reports whether a crash block is currently being captured.
func (m *Machine) CrashActive() bool {
	return m.crashActive
}
