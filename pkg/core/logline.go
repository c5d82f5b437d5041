package core

// LogLine is a single console line surfaced to external observers,
// stamped with the run it was observed under.
type LogLine struct {
	TsUnixMs int64  `json:"ts_unix_ms"`
	RunID    string `json:"run_id,omitempty"`
	Line     string `json:"line"`
}
