// Package source provides line-oriented readers over the monitored
// target's console: a live serial port and a file replay of captured
// output.
package source

import "errors"

// ErrTimeout reports that no complete line arrived within the poll
// window. Callers use it as the natural point to check for shutdown.
var ErrTimeout = errors.New("source: read timed out")

// LineSource produces console text one line at a time. ReadLine never
// blocks indefinitely: it returns ErrTimeout when the source is quiet
// so the consumer can poll its stop signal between reads. Any other
// error marks the source as unreadable for now; whether that is
// transient is the consumer's call.
type LineSource interface {
	ReadLine() (string, error)
	Close() error
}

// Opener opens a LineSource on demand. The monitor worker opens its
// source lazily so a failed open kills only that worker, not the
// process that started it.
type Opener func() (LineSource, error)
