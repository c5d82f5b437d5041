package monitor

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/modoterra/bootmon/pkg/core"
)

const resetLine = "NOTICE:  CPU: STM32MP257FAI Rev.Y"
const bootDoneLine = "## Starting application at 0x88000040 ..."

func TestBootSequenceScenario(t *testing.T) {
	m := NewMachine(100)

	if m.Phase() != core.PhaseUnknown {
		t.Fatalf("initial phase = %s, want unknown", m.Phase())
	}

	lines := []string{
		resetLine,
		"boot msg",
		"Synchronous Abort",
		"elr: 0x1234",
		"Code: 11111111 22222222 (33333333)",
		bootDoneLine,
	}

	var records []*core.CrashRecord
	phases := []core.Phase{m.Phase()}
	for _, line := range lines {
		if rec := m.Process(line); rec != nil {
			records = append(records, rec)
		}
		phases = append(phases, m.Phase())
	}

	if phases[1] != core.PhaseBooting {
		t.Errorf("after reset: phase = %s, want booting", phases[1])
	}
	if m.Phase() != core.PhaseRunning {
		t.Errorf("final phase = %s, want running", m.Phase())
	}

	if len(records) != 1 {
		t.Fatalf("expected one crash record, got %d", len(records))
	}
	rec := records[0]
	if rec.RunID != "run_1" {
		t.Errorf("run_id = %q, want run_1", rec.RunID)
	}
	if !rec.Complete {
		t.Error("expected complete=true")
	}
	if rec.ELR == nil || *rec.ELR != "0x1234" {
		t.Errorf("elr = %v, want 0x1234", rec.ELR)
	}
	if rec.FaultingInstruction == nil || *rec.FaultingInstruction != "33333333" {
		t.Errorf("faulting = %v, want 33333333", rec.FaultingInstruction)
	}
	if len(rec.RawDump) != 3 {
		t.Errorf("raw_dump = %v, want the 3 crash-block lines", rec.RawDump)
	}
}

func TestResetClearsRollingLog(t *testing.T) {
	m := NewMachine(100)
	m.Process("old line 1")
	m.Process("old line 2")

	m.Process(resetLine)

	logs := m.RecentLogs()
	if len(logs) != 1 || logs[0] != resetLine {
		t.Errorf("after reset logs = %v, want just the reset line", logs)
	}
	if m.Phase() != core.PhaseBooting {
		t.Errorf("phase = %s, want booting", m.Phase())
	}
}

func TestCrashBlockCapture(t *testing.T) {
	m := NewMachine(100)
	m.Process(resetLine)

	block := []string{
		"\"Synchronous Abort\" handler, esr 0x96000044",
		"elr: 0000000088000048 lr : 0000000088000040",
		"x0 : 0000000000000000",
		"Code: d65f03c0 (b9400000)",
	}
	var rec *core.CrashRecord
	for _, line := range block {
		rec = m.Process(line)
	}

	if rec == nil {
		t.Fatal("expected a record on the Code: terminator")
	}
	if !rec.Complete {
		t.Error("expected complete=true")
	}
	if len(rec.RawDump) != len(block) {
		t.Fatalf("raw_dump has %d lines, want %d (markers inclusive)", len(rec.RawDump), len(block))
	}
	for i := range block {
		if rec.RawDump[i] != block[i] {
			t.Errorf("raw_dump[%d] = %q, want %q", i, rec.RawDump[i], block[i])
		}
	}
	if m.CrashActive() {
		t.Error("capture should be closed after the terminator")
	}
}

func TestResetDuringCrashForcesIncompleteFinalize(t *testing.T) {
	m := NewMachine(100)
	m.Process(resetLine)
	m.Process("Undefined Instruction")
	m.Process("elr: 0xabcd")

	rec := m.Process(resetLine)

	if rec == nil {
		t.Fatal("expected forced finalize of the open crash block")
	}
	if rec.Complete {
		t.Error("expected complete=false for a truncated block")
	}
	if rec.RunID != "run_1" {
		t.Errorf("record belongs to %q, want run_1 (the crashed run)", rec.RunID)
	}
	if len(rec.RawDump) != 2 {
		t.Errorf("raw_dump = %v, want only lines captured so far", rec.RawDump)
	}
	if m.RunID() != "run_2" {
		t.Errorf("new run = %q, want run_2", m.RunID())
	}
	if m.CrashActive() {
		t.Error("capture must be cleared by the reset")
	}
}

func TestLazyRunAssignmentOnOutOfBandCrash(t *testing.T) {
	m := NewMachine(100)

	// Crash observed before any reset banner.
	m.Process("Synchronous Abort")
	rec := m.Process("Code: 11111111 (22222222)")

	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.RunID != "run_1" {
		t.Errorf("lazily assigned run = %q, want run_1", rec.RunID)
	}
	if m.Phase() != core.PhaseUnknown {
		t.Errorf("phase = %s, want unknown (no reset seen)", m.Phase())
	}
}

func TestNoNestedCrashStart(t *testing.T) {
	m := NewMachine(100)
	m.Process("Synchronous Abort")
	m.Process("another Exception word inside the block")
	rec := m.Process("Code: 11111111 (22222222)")

	if rec == nil {
		t.Fatal("expected a single record")
	}
	if len(rec.RawDump) != 3 {
		t.Errorf("raw_dump has %d lines, want 3 (no capture restart)", len(rec.RawDump))
	}
}

func TestBootFinishedIgnoredInsideCrashBlock(t *testing.T) {
	m := NewMachine(100)
	m.Process(resetLine)
	m.Process("Synchronous Abort")
	m.Process(bootDoneLine)

	if m.Phase() != core.PhaseBooting {
		t.Errorf("phase = %s, want booting (banner inside a crash block)", m.Phase())
	}
	rec := m.Process("Code: 11111111 (22222222)")
	if rec == nil || len(rec.RawDump) != 3 {
		t.Fatal("crash block should still finalize normally")
	}
}

func TestRollingLogEviction(t *testing.T) {
	m := NewMachine(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		m.Process(l)
	}
	logs := m.RecentLogs()
	if len(logs) != 3 {
		t.Fatalf("len = %d, want capacity 3", len(logs))
	}
	if logs[0] != "c" || logs[2] != "e" {
		t.Errorf("logs = %v, want oldest evicted first", logs)
	}
}

func TestSeedCounter(t *testing.T) {
	m := NewMachine(10)
	m.SeedCounter(41)
	m.Process(resetLine)
	if m.RunID() != "run_42" {
		t.Errorf("run = %q, want run_42 (resumed past persisted history)", m.RunID())
	}

	m.SeedCounter(5) // lower seed must not rewind
	m.Process(resetLine)
	if m.RunID() != "run_43" {
		t.Errorf("run = %q, want run_43", m.RunID())
	}
}

func TestSetRunIDBumpsCounter(t *testing.T) {
	m := NewMachine(10)
	m.SetRunID("run_9")
	if m.RunID() != "run_9" {
		t.Fatalf("run = %q, want run_9", m.RunID())
	}
	m.Process(resetLine)
	if m.RunID() != "run_10" {
		t.Errorf("run after reset = %q, want run_10", m.RunID())
	}

	m.SetRunID("flash_abc") // arbitrary override leaves the counter alone
	m.Process(resetLine)
	if m.RunID() != "run_11" {
		t.Errorf("run after arbitrary override = %q, want run_11", m.RunID())
	}
}

// Run IDs strictly increase no matter how resets and filler lines are
// interleaved.
func TestRunIDMonotonic_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("strictly increasing run counter", prop.ForAll(
		func(resets []bool) bool {
			m := NewMachine(50)
			prev := 0
			for _, isReset := range resets {
				if isReset {
					m.Process(resetLine)
					n, ok := core.ParseRunID(m.RunID())
					if !ok || n != prev+1 {
						return false
					}
					prev = n
				} else {
					m.Process("ordinary console output")
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
