package crash

import (
	"time"

	"github.com/modoterra/bootmon/pkg/core"
)

// Extract converts the captured lines of one crash block into a record.
// Missing register fields come back nil; absence is never an error. The
// caller hands over ownership of lines, which become the raw dump as-is.
func Extract(lines []string, runID string, complete bool, ts time.Time) core.CrashRecord {
	prev, faulting := ExtractCode(lines)
	return core.CrashRecord{
		Timestamp:           ts,
		RunID:               runID,
		Complete:            complete,
		ESR:                 ExtractESR(lines),
		ELR:                 ExtractELR(lines),
		LR:                  ExtractLR(lines),
		PrevInstructions:    prev,
		FaultingInstruction: faulting,
		RawDump:             lines,
	}
}
