// Package matrix turns raw key matrix readings into a stable set of pressed
// physical keys.
package matrix

import (
	"fmt"

	"github.com/Alia5/chordkb/board"
)

// Source is the electrical matrix of one hardware variant. Select drives a
// row, Read samples a column of the selected row.
type Source interface {
	Select(row int)
	Read(col int) bool
}

// Debounce window bounds, in scan passes.
const (
	MinWindow     = 2
	MaxWindow     = 15
	DefaultWindow = 3
)

// Scan reads every populated matrix position once and returns the raw set of
// closed physical keys.
func Scan(src Source, b *board.Board, out Bitset) Bitset {
	if out == nil {
		out = NewBitset(b.LayerSize)
	} else {
		for i := range out {
			out[i] = 0
		}
	}
	for r := 0; r < b.Rows; r++ {
		src.Select(r)
		for c := 0; c < b.Cols; c++ {
			p := b.Matrix[r][c]
			if p == board.NoKey {
				continue
			}
			if src.Read(c) {
				out.Set(p)
			}
		}
	}
	return out
}

// Debouncer keeps the last N raw snapshots of the whole matrix. A key becomes
// stable-pressed once it is set in all N snapshots and stable-released once it
// is clear in all N. Anything in between keeps the previous stable state, so
// a continuously bouncing contact never transitions.
type Debouncer struct {
	window  []Bitset
	next    int
	stable  Bitset
	changed Bitset
	all     Bitset
	any     Bitset
}

// NewDebouncer returns a debouncer for keys physical keys with a window of n
// passes.
func NewDebouncer(keys, n int) (*Debouncer, error) {
	d := &Debouncer{
		stable:  NewBitset(keys),
		changed: NewBitset(keys),
		all:     NewBitset(keys),
		any:     NewBitset(keys),
	}
	if err := d.SetWindow(n); err != nil {
		return nil, err
	}
	return d, nil
}

// SetWindow changes the window length. The new window is seeded with the
// current stable set, so changing it never produces a transition by itself;
// raw readings need n fresh agreeing samples to flip a key afterwards.
func (d *Debouncer) SetWindow(n int) error {
	if n < MinWindow || n > MaxWindow {
		return fmt.Errorf("debounce window %d outside [%d, %d]", n, MinWindow, MaxWindow)
	}
	d.window = make([]Bitset, n)
	for i := range d.window {
		d.window[i] = d.stable.Clone()
	}
	d.next = 0
	return nil
}

// Window returns the window length in passes.
func (d *Debouncer) Window() int { return len(d.window) }

// Stable returns the current debounced set. Callers must not modify it.
func (d *Debouncer) Stable() Bitset { return d.stable }

// Push records one raw scan and returns the debounced set together with the
// keys whose stable state flipped on this pass. Both slices are owned by the
// debouncer and valid until the next Push.
func (d *Debouncer) Push(raw Bitset) (stable, changed Bitset) {
	copy(d.window[d.next], raw)
	d.next = (d.next + 1) % len(d.window)

	for i := range d.all {
		d.all[i] = ^uint64(0)
		d.any[i] = 0
	}
	for _, snap := range d.window {
		for i, w := range snap {
			d.all[i] &= w
			d.any[i] |= w
		}
	}
	for i := range d.stable {
		prev := d.stable[i]
		cur := (prev | d.all[i]) & d.any[i]
		d.changed[i] = prev ^ cur
		d.stable[i] = cur
	}
	return d.stable, d.changed
}
