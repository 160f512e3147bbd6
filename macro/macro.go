// Package macro records sequences of key transitions under a chord and plays
// them back one transition per report.
//
// Macros are stored back to back in their storage region as a little-endian
// uint16 length followed by that many HID codes. Every code toggles its key,
// so a recording of "press A, release A" is stored as {A, A}. The first
// length word reading 0xFFFF marks the end of the data.
package macro

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/storage"
)

const (
	headerSize = 2
	endMarker  = 0xFFFF
)

var (
	ErrFull         = errors.New("macro storage full")
	ErrNotRecording = errors.New("no macro being recorded")
	ErrNotMacro     = errors.New("chord is not bound to a macro")
)

// Engine owns the macro data region and the macro entries of the chord index.
type Engine struct {
	region *storage.Region
	index  *chord.Index
	logger *slog.Logger

	end int64 // first free byte

	recording bool
	trigger   chord.Chord
	replaces  *chord.Entry // binding of trigger to drop on commit
	start     int64
	count     int

	playing  bool
	playOff  int64
	playLen  int
	playPos  int
	released bool
	held     hid.KeyboardReport
}

// New returns an engine over region, registering macros in index. Call Load
// before use.
func New(region *storage.Region, index *chord.Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{region: region, index: index, logger: logger}
}

// Load finds the end of the stored macros.
func (e *Engine) Load() error {
	off := int64(0)
	for off+headerSize <= e.region.Len {
		n, err := e.region.Short(off)
		if err != nil {
			return fmt.Errorf("read macro header: %w", err)
		}
		if n == endMarker {
			break
		}
		next := off + headerSize + int64(n)
		if next > e.region.Len {
			return fmt.Errorf("macro at %d overruns storage", off)
		}
		off = next
	}
	e.end = off
	return nil
}

// Used is the number of bytes taken by stored macros.
func (e *Engine) Used() int64 { return e.end }

// Free is the number of bytes left for new macros, headers included.
func (e *Engine) Free() int64 { return e.region.Len - e.end }

// Recording reports whether a macro is being recorded.
func (e *Engine) Recording() bool { return e.recording }

// Start begins recording a macro for trigger. Whatever is bound to trigger
// stays untouched until Commit replaces it.
func (e *Engine) Start(trigger chord.Chord) error {
	if e.recording {
		e.Abort()
	}
	var replaces *chord.Entry
	if entry, ok := e.index.Lookup(trigger); ok {
		replaces = &entry
	} else if e.index.Len() >= e.index.Cap() {
		return chord.ErrFull
	}
	if e.end+headerSize > e.region.Len {
		return ErrFull
	}
	e.recording = true
	e.trigger = trigger
	e.replaces = replaces
	e.start = e.end
	e.count = 0
	e.logger.Debug("Recording macro", "trigger", trigger.String(), "offset", e.start)
	return nil
}

// Append records one key transition.
func (e *Engine) Append(h hid.Keycode) error {
	if !e.recording {
		return ErrNotRecording
	}
	at := e.start + headerSize + int64(e.count)
	if at >= e.region.Len || e.count >= endMarker-1 {
		return ErrFull
	}
	if err := e.region.SetByte(at, h); err != nil {
		return fmt.Errorf("append macro: %w", err)
	}
	e.count++
	return nil
}

// Commit stores the recorded macro and binds it to its trigger.
func (e *Engine) Commit() error {
	if !e.recording {
		return ErrNotRecording
	}
	e.recording = false
	if err := e.region.SetShort(e.start, uint16(e.count)); err != nil {
		return fmt.Errorf("write macro header: %w", err)
	}

	if e.replaces == nil {
		if _, err := e.index.Create(e.trigger, chord.Macro(uint16(e.start))); err != nil {
			if err := e.region.Memset(e.start, 0xFF, headerSize+e.count); err != nil {
				e.logger.Warn("Failed to clear unbound macro", "error", err)
			}
			return fmt.Errorf("bind macro: %w", err)
		}
		e.end = e.start + headerSize + int64(e.count)
	} else {
		// the new macro is stored data from here on and moves down with
		// every macro after the one it replaces
		e.end = e.start + headerSize + int64(e.count)
		start := e.start
		if old := e.replaces.Payload; old.Kind == chord.KindMacro {
			size, err := e.deleteData(int64(old.Value))
			if err != nil {
				return err
			}
			start -= size
		}
		if err := e.index.Update(e.trigger, chord.Macro(uint16(start))); err != nil {
			return fmt.Errorf("bind macro: %w", err)
		}
	}
	e.replaces = nil
	e.logger.Info("Recorded macro", "trigger", e.trigger.String(), "transitions", e.count)
	return e.region.WaitForLastWrite()
}

// Abort drops the macro being recorded.
func (e *Engine) Abort() {
	if !e.recording {
		return
	}
	e.recording = false
	e.replaces = nil
	if err := e.region.Memset(e.start, 0xFF, headerSize+e.count); err != nil {
		e.logger.Warn("Failed to clear aborted macro", "error", err)
	}
	e.logger.Debug("Aborted macro", "trigger", e.trigger.String())
}

// Remove deletes the macro bound to c.
func (e *Engine) Remove(c chord.Chord) error {
	entry, ok := e.index.Lookup(c)
	if !ok {
		return chord.ErrNotFound
	}
	if entry.Payload.Kind != chord.KindMacro {
		return ErrNotMacro
	}
	return e.unbind(entry)
}

// unbind removes an index entry and, for macros, its data.
func (e *Engine) unbind(entry chord.Entry) error {
	if entry.Payload.Kind == chord.KindMacro {
		if _, err := e.deleteData(int64(entry.Payload.Value)); err != nil {
			return err
		}
	}
	return e.index.Remove(entry.Chord)
}

// deleteData removes the macro at off, moving later macros down and
// rebasing their index entries. It returns the number of bytes freed.
func (e *Engine) deleteData(off int64) (int64, error) {
	n, err := e.region.Short(off)
	if err != nil {
		return 0, fmt.Errorf("read macro header: %w", err)
	}
	size := headerSize + int64(n)
	if tail := e.end - (off + size); tail > 0 {
		if err := e.region.Memmove(off, off+size, int(tail)); err != nil {
			return 0, fmt.Errorf("pack macros: %w", err)
		}
	}
	if err := e.region.Memset(e.end-size, 0xFF, int(size)); err != nil {
		return 0, fmt.Errorf("clear macro: %w", err)
	}
	e.end -= size

	var moved []chord.Entry
	e.index.Iterate(func(x chord.Entry) bool {
		if x.Payload.Kind == chord.KindMacro && int64(x.Payload.Value) > off {
			moved = append(moved, x)
		}
		return true
	})
	for _, x := range moved {
		if err := e.index.Update(x.Chord, chord.Macro(x.Payload.Value-uint16(size))); err != nil {
			return 0, fmt.Errorf("rebase macro: %w", err)
		}
	}
	return size, e.region.WaitForLastWrite()
}

// Reset deletes every macro.
func (e *Engine) Reset() error {
	e.recording = false
	e.replaces = nil
	e.StopPlayback()
	if err := e.region.Memset(0, 0xFF, int(e.region.Len)); err != nil {
		return fmt.Errorf("reset macros: %w", err)
	}
	e.end = 0
	var macros []chord.Chord
	e.index.Iterate(func(x chord.Entry) bool {
		if x.Payload.Kind == chord.KindMacro {
			macros = append(macros, x.Chord)
		}
		return true
	})
	for _, c := range macros {
		if err := e.index.Remove(c); err != nil {
			return err
		}
	}
	return e.region.WaitForLastWrite()
}

// Codes returns the stored transitions of the macro at off.
func (e *Engine) Codes(off uint16) ([]hid.Keycode, error) {
	n, err := e.region.Short(int64(off))
	if err != nil {
		return nil, err
	}
	if n == endMarker || int64(off)+headerSize+int64(n) > e.end {
		return nil, fmt.Errorf("no macro at %d", off)
	}
	return e.region.Bytes(int64(off)+headerSize, int(n))
}

// StartPlayback begins replaying the macro at off.
func (e *Engine) StartPlayback(off uint16) error {
	n, err := e.region.Short(int64(off))
	if err != nil {
		return fmt.Errorf("read macro header: %w", err)
	}
	if n == endMarker || int64(off)+headerSize+int64(n) > e.end {
		return fmt.Errorf("no macro at %d", off)
	}
	e.playing = true
	e.playOff = int64(off) + headerSize
	e.playLen = int(n)
	e.playPos = 0
	e.released = false
	e.held = hid.KeyboardReport{}
	return nil
}

// Playing reports whether a macro is being replayed.
func (e *Engine) Playing() bool { return e.playing }

// StopPlayback ends playback immediately.
func (e *Engine) StopPlayback() {
	e.playing = false
	e.held = hid.KeyboardReport{}
}

// FillNextReport applies the next transition and merges the keys held by the
// macro into r. After the last transition one more report releases
// everything; the call after that returns false and leaves r alone.
func (e *Engine) FillNextReport(r *hid.KeyboardReport) bool {
	if !e.playing {
		return false
	}
	if e.playPos < e.playLen {
		h, err := e.region.Byte(e.playOff + int64(e.playPos))
		if err != nil {
			e.logger.Warn("Macro playback failed", "error", err)
			e.StopPlayback()
			return false
		}
		e.playPos++
		if e.held.Contains(h) {
			e.held.Release(h)
		} else if !e.held.Press(h) {
			e.held.Rollover()
		}
		r.Merge(e.held)
		return true
	}
	if !e.released {
		e.released = true
		e.held = hid.KeyboardReport{}
		return true
	}
	e.StopPlayback()
	return false
}
