package monitor

// ringBuffer keeps the most recent console lines up to a fixed
// capacity, evicting the oldest on overflow.
type ringBuffer struct {
	capacity int
	lines    []string
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{capacity: capacity}
}

func (b *ringBuffer) append(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
}

func (b *ringBuffer) clear() {
	b.lines = nil
}

func (b *ringBuffer) snapshot() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
