package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// FileSource replays captured console output from a file, reading from
// the beginning. At end of file it waits one poll interval and reports
// ErrTimeout, so a file being appended to behaves like a quiet serial
// line. Truncation is treated as rotation and restarts from the top.
type FileSource struct {
	f       *os.File
	reader  *bufio.Reader
	poll    time.Duration
	partial strings.Builder
}

// OpenFile opens a console capture for replay.
func OpenFile(path string, poll time.Duration) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &FileSource{f: f, reader: bufio.NewReader(f), poll: poll}, nil
}

// ReadLine returns the next complete line without its line ending.
func (s *FileSource) ReadLine() (string, error) {
	chunk, err := s.reader.ReadString('\n')
	s.partial.WriteString(chunk)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", s.f.Name(), err)
		}
		// No new data. Poll, watching for truncation.
		time.Sleep(s.poll)
		if info, serr := s.f.Stat(); serr == nil {
			pos, _ := s.f.Seek(0, io.SeekCurrent)
			if info.Size() < pos {
				s.f.Seek(0, io.SeekStart)
				s.reader.Reset(s.f)
				s.partial.Reset()
			}
		}
		return "", ErrTimeout
	}
	line := strings.TrimRight(s.partial.String(), "\r\n")
	s.partial.Reset()
	return line, nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}
