package storage

import (
	"fmt"
	"sync"
)

// Memory is a RAM backed Backend. Contents start erased (0xFF), like a
// fresh EEPROM.
type Memory struct {
	mu   sync.Mutex
	data []byte

	// FailAfter makes every write after the first FailAfter successful
	// writes return ErrIO. Zero disables fault injection.
	FailAfter int
	writes    int
}

// NewMemory returns an erased store of n bytes.
func NewMemory(n int) *Memory {
	m := &Memory{data: make([]byte, n)}
	for i := range m.data {
		m.data[i] = 0xFF
	}
	return m
}

// MemoryFrom wraps a copy of data.
func MemoryFrom(data []byte) *Memory {
	m := &Memory{data: make([]byte, len(data))}
	copy(m.data, data)
	return m
}

func (m *Memory) check(off int64, n int) error {
	if off < 0 || n < 0 || off+int64(n) > int64(len(m.data)) {
		return fmt.Errorf("%w: %d+%d in store of %d bytes", ErrOutOfRange, off, n, len(m.data))
	}
	return nil
}

func (m *Memory) write() error {
	if m.FailAfter > 0 && m.writes >= m.FailAfter {
		return fmt.Errorf("%w: write %d rejected", ErrIO, m.writes+1)
	}
	m.writes++
	return nil
}

// Size implements Backend.
func (m *Memory) Size() int64 { return int64(len(m.data)) }

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt implements io.WriterAt.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(off, len(p)); err != nil {
		return 0, err
	}
	if err := m.write(); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

// Memset implements Backend.
func (m *Memory) Memset(off int64, v byte, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(off, n); err != nil {
		return err
	}
	if err := m.write(); err != nil {
		return err
	}
	for i := off; i < off+int64(n); i++ {
		m.data[i] = v
	}
	return nil
}

// Memmove implements Backend. Overlapping ranges are handled.
func (m *Memory) Memmove(dst, src int64, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(dst, n); err != nil {
		return err
	}
	if err := m.check(src, n); err != nil {
		return err
	}
	if err := m.write(); err != nil {
		return err
	}
	copy(m.data[dst:dst+int64(n)], m.data[src:src+int64(n)])
	return nil
}

// WaitForLastWrite implements Backend. RAM writes complete immediately.
func (m *Memory) WaitForLastWrite() error { return nil }

// Snapshot returns a copy of the whole store.
func (m *Memory) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
