package matrix

import (
	"sync"

	"github.com/Alia5/chordkb/board"
)

// Virtual is a software matrix for hosts without hardware. Keys are closed
// by physical key number; reads are safe against a concurrent writer.
type Virtual struct {
	mu     sync.Mutex
	board  *board.Board
	closed [][]bool
	row    int
}

// NewVirtual returns an open (no key pressed) matrix shaped like b.
func NewVirtual(b *board.Board) *Virtual {
	v := &Virtual{board: b, closed: make([][]bool, b.Rows)}
	for r := range v.closed {
		v.closed[r] = make([]bool, b.Cols)
	}
	return v
}

// Select implements Source.
func (v *Virtual) Select(row int) {
	v.mu.Lock()
	v.row = row
	v.mu.Unlock()
}

// Read implements Source.
func (v *Virtual) Read(col int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed[v.row][col]
}

// SetKey closes or opens the switch of physical key p. Unknown keys are
// ignored and reported as false.
func (v *Virtual) SetKey(p uint8, down bool) bool {
	r, c, ok := v.board.Position(p)
	if !ok {
		return false
	}
	v.mu.Lock()
	v.closed[r][c] = down
	v.mu.Unlock()
	return true
}

// Press closes the given physical keys.
func (v *Virtual) Press(keys ...uint8) {
	for _, k := range keys {
		v.SetKey(k, true)
	}
}

// Release opens the given physical keys.
func (v *Virtual) Release(keys ...uint8) {
	for _, k := range keys {
		v.SetKey(k, false)
	}
}

// ReleaseAll opens every switch.
func (v *Virtual) ReleaseAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for r := range v.closed {
		for c := range v.closed[r] {
			v.closed[r][c] = false
		}
	}
}
