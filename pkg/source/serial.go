package source

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialSource reads newline-terminated console output from a serial
// device. Not safe for concurrent use; the monitor worker is the sole
// reader and closes the port when it exits.
type SerialSource struct {
	port serial.Port
	buf  bytes.Buffer
	read []byte
}

// OpenSerial opens the device at the given baud rate. timeout bounds
// each underlying read so ReadLine returns ErrTimeout on a quiet line
// instead of blocking forever.
func OpenSerial(device string, baud int, timeout time.Duration) (*SerialSource, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return &SerialSource{port: port, read: make([]byte, 512)}, nil
}

// ReadLine returns the next complete line without its trailing newline.
func (s *SerialSource) ReadLine() (string, error) {
	for {
		if line, ok := s.popLine(); ok {
			return line, nil
		}
		n, err := s.port.Read(s.read)
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			// Read timeout expired with no data.
			return "", ErrTimeout
		}
		s.buf.Write(s.read[:n])
	}
}

// popLine extracts one buffered line, if a full one has arrived.
func (s *SerialSource) popLine() (string, bool) {
	data := s.buf.Bytes()
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", false
	}
	line := string(data[:i])
	s.buf.Next(i + 1)
	line = strings.TrimRight(line, "\r")
	// Console noise during resets can include garbage bytes.
	return strings.ToValidUTF8(line, ""), true
}

// Close releases the serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
