package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Phase represents the boot lifecycle of the monitored target.
type Phase string

const (
	PhaseUnknown Phase = "unknown"
	PhaseBooting Phase = "booting"
	PhaseRunning Phase = "running"
)

// CrashRecord is the structured form of one captured crash block.
// Complete is false when the block was cut short by a new boot reset
// before its terminator line arrived. Register fields are nil when the
// dump did not contain them.
type CrashRecord struct {
	Timestamp           time.Time `json:"timestamp"`
	RunID               string    `json:"run_id"`
	Complete            bool      `json:"complete"`
	ESR                 *string   `json:"esr"`
	ELR                 *string   `json:"elr"`
	LR                  *string   `json:"lr"`
	PrevInstructions    []string  `json:"prev_instructions"`
	FaultingInstruction *string   `json:"faulting_instruction"`
	RawDump             []string  `json:"raw_dump"`
}

// FormatRunID constructs a run identifier from its counter value.
// Format: run_<n>
func FormatRunID(n int) string {
	return fmt.Sprintf("run_%d", n)
}

// ParseRunID extracts the numeric suffix from a run_<n> identifier.
func ParseRunID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "run_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
