package chord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/storage"
)

// EntrySize is the stored size of one index entry: the keys followed by a
// little-endian payload word whose high bit marks a macro.
const EntrySize = MaxKeys + 2

var (
	ErrFull     = errors.New("chord index full")
	ErrExists   = errors.New("chord already registered")
	ErrNotFound = errors.New("chord not registered")
)

// Entry is one registered trigger.
type Entry struct {
	Chord   Chord
	Payload Payload
}

// Index is the persistent chord table. Entries are kept packed from the start
// of the region; the first entry beginning with NoKey ends the table. Reads
// come from an in-memory copy, writes go through to storage.
type Index struct {
	region  *storage.Region
	logger  *slog.Logger
	entries []Entry
}

// NewIndex returns an index over region. Call Load or Reset before use.
func NewIndex(region *storage.Region, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{region: region, logger: logger}
}

// Cap is the number of entries the region holds.
func (x *Index) Cap() int { return int(x.region.Len / EntrySize) }

// Len is the number of registered entries.
func (x *Index) Len() int { return len(x.entries) }

// Load reads the table from storage.
func (x *Index) Load() error {
	x.entries = x.entries[:0]
	for i := 0; i < x.Cap(); i++ {
		raw, err := x.region.Bytes(int64(i*EntrySize), EntrySize)
		if err != nil {
			return fmt.Errorf("read chord index: %w", err)
		}
		if raw[0] == hid.NoKey {
			break
		}
		var e Entry
		copy(e.Chord[:], raw[:MaxKeys])
		e.Payload = decodePayload(binary.LittleEndian.Uint16(raw[MaxKeys:]))
		x.entries = append(x.entries, e)
	}
	return nil
}

// Reset erases every entry.
func (x *Index) Reset() error {
	if err := x.region.Memset(0, hid.NoKey, int(x.region.Len)); err != nil {
		return fmt.Errorf("reset chord index: %w", err)
	}
	x.entries = x.entries[:0]
	return x.region.WaitForLastWrite()
}

func (x *Index) find(c Chord) int {
	for i, e := range x.entries {
		if e.Chord == c {
			return i
		}
	}
	return -1
}

func (x *Index) write(i int, e Entry) error {
	var raw [EntrySize]byte
	copy(raw[:], e.Chord[:])
	binary.LittleEndian.PutUint16(raw[MaxKeys:], e.Payload.encode())
	_, err := x.region.WriteAt(raw[:], int64(i*EntrySize))
	return err
}

// Lookup returns the entry registered for exactly c.
func (x *Index) Lookup(c Chord) (Entry, bool) {
	if i := x.find(c); i >= 0 {
		return x.entries[i], true
	}
	return Entry{}, false
}

// Create registers c.
func (x *Index) Create(c Chord, p Payload) (Entry, error) {
	if x.find(c) >= 0 {
		return Entry{}, ErrExists
	}
	if len(x.entries) >= x.Cap() {
		return Entry{}, ErrFull
	}
	e := Entry{Chord: c, Payload: p}
	if err := x.write(len(x.entries), e); err != nil {
		return Entry{}, fmt.Errorf("write chord entry: %w", err)
	}
	x.entries = append(x.entries, e)
	x.logger.Debug("Registered chord", "chord", c.String(), "kind", p.Kind.String(), "value", p.Value)
	return e, x.region.WaitForLastWrite()
}

// Update replaces the payload of an existing entry.
func (x *Index) Update(c Chord, p Payload) error {
	i := x.find(c)
	if i < 0 {
		return ErrNotFound
	}
	e := Entry{Chord: c, Payload: p}
	if err := x.write(i, e); err != nil {
		return fmt.Errorf("write chord entry: %w", err)
	}
	x.entries[i] = e
	return x.region.WaitForLastWrite()
}

// Remove unregisters c, moving later entries down.
func (x *Index) Remove(c Chord) error {
	i := x.find(c)
	if i < 0 {
		return ErrNotFound
	}
	if tail := len(x.entries) - i - 1; tail > 0 {
		if err := x.region.Memmove(int64(i*EntrySize), int64((i+1)*EntrySize), tail*EntrySize); err != nil {
			return fmt.Errorf("pack chord index: %w", err)
		}
	}
	last := int64((len(x.entries) - 1) * EntrySize)
	if err := x.region.Memset(last, hid.NoKey, EntrySize); err != nil {
		return fmt.Errorf("clear chord entry: %w", err)
	}
	x.entries = append(x.entries[:i], x.entries[i+1:]...)
	x.logger.Debug("Removed chord", "chord", c.String())
	return x.region.WaitForLastWrite()
}

// Iterate calls fn for each entry in table order until fn returns false. fn
// must not modify the index.
func (x *Index) Iterate(fn func(Entry) bool) {
	for _, e := range x.entries {
		if !fn(e) {
			return
		}
	}
}

// Entries returns a copy of the table.
func (x *Index) Entries() []Entry {
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Trigger is a resolved chord. Exact is false when the entry was found via
// the single-key fallback on MainKey.
type Trigger struct {
	Entry   Entry
	MainKey uint8
	Exact   bool
}

// Resolve looks up the pressed keys: first the whole chord, then, for
// multi-key chords, the main key alone.
func (x *Index) Resolve(keys []uint8, cls Classifier) (Trigger, bool) {
	c, ok := Format(keys, cls)
	if !ok {
		return Trigger{}, false
	}
	main := MainKey(c, cls)
	if e, ok := x.Lookup(c); ok {
		return Trigger{Entry: e, MainKey: main, Exact: true}, true
	}
	if c.Len() > 1 {
		if e, ok := x.Lookup(Single(main)); ok {
			return Trigger{Entry: e, MainKey: main, Exact: false}, true
		}
	}
	return Trigger{}, false
}
