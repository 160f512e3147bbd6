// Package board describes one keyboard hardware variant: how matrix positions
// map to physical keys, how many keys a layer spans and which HID code every
// logical key starts out as.
package board

import (
	"errors"
	"fmt"

	"github.com/Alia5/chordkb/hid"
)

// NoKey marks an empty position in the sparse matrix.
const NoKey = hid.NoKey

// BuiltinKeys names the physical keys that take part in the built-in
// program-key chords. They are physical (layer 0) key numbers.
type BuiltinKeys struct {
	Program        uint8 `yaml:"program" toml:"program"`
	Keypad         uint8 `yaml:"keypad" toml:"keypad"`
	Remap          uint8 `yaml:"remap" toml:"remap"`
	MacroRecord    uint8 `yaml:"macroRecord" toml:"macroRecord"`
	Reboot         uint8 `yaml:"reboot" toml:"reboot"`
	ToggleBuzzer   uint8 `yaml:"toggleBuzzer" toml:"toggleBuzzer"`
	ResetConfig    uint8 `yaml:"resetConfig" toml:"resetConfig"`
	ResetFully     uint8 `yaml:"resetFully" toml:"resetFully"`
	Save           uint8 `yaml:"save" toml:"save"`
	Load           uint8 `yaml:"load" toml:"load"`
	Delete         uint8 `yaml:"delete" toml:"delete"`
	ToggleMacros   uint8 `yaml:"toggleMacros" toml:"toggleMacros"`
	TogglePrograms uint8 `yaml:"togglePrograms" toml:"togglePrograms"`
	// Digit1 is the first of LayoutSlots consecutive physical digit keys (1..9, 0).
	Digit1 uint8 `yaml:"digit1" toml:"digit1"`
}

// LayoutSlots is the number of saved layouts addressable by digit keys.
const LayoutSlots = 10

// Board is one hardware variant.
type Board struct {
	Name      string
	Rows      int
	Cols      int
	Matrix    [][]uint8 // [row][col] -> physical key, NoKey for empty
	LayerSize int
	Layers    int
	Defaults  []hid.Keycode // indexed by logical key
	Keys      BuiltinKeys
}

var (
	ErrInvalidBoard = errors.New("invalid board definition")
)

// NumLogicalKeys is the size of the logical key space over all layers.
func (b *Board) NumLogicalKeys() int {
	return b.LayerSize * b.Layers
}

// Validate checks the board's internal consistency.
func (b *Board) Validate() error {
	if b.Rows <= 0 || b.Cols <= 0 {
		return fmt.Errorf("%w: matrix is %dx%d", ErrInvalidBoard, b.Rows, b.Cols)
	}
	if len(b.Matrix) != b.Rows {
		return fmt.Errorf("%w: matrix has %d rows, want %d", ErrInvalidBoard, len(b.Matrix), b.Rows)
	}
	if b.LayerSize <= 0 || b.LayerSize > 255 {
		return fmt.Errorf("%w: layer size %d", ErrInvalidBoard, b.LayerSize)
	}
	if b.Layers <= 0 || b.NumLogicalKeys() > 255 {
		return fmt.Errorf("%w: %d layers of %d keys do not fit a logical keycode", ErrInvalidBoard, b.Layers, b.LayerSize)
	}
	seen := make(map[uint8]bool)
	for r, row := range b.Matrix {
		if len(row) != b.Cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidBoard, r, len(row), b.Cols)
		}
		for c, p := range row {
			if p == NoKey {
				continue
			}
			if int(p) >= b.LayerSize {
				return fmt.Errorf("%w: position %d/%d maps to key %d outside the layer", ErrInvalidBoard, r, c, p)
			}
			// two positions on one key would debounce against each other
			if seen[p] {
				return fmt.Errorf("%w: key %d mapped twice", ErrInvalidBoard, p)
			}
			seen[p] = true
		}
	}
	if len(b.Defaults) != b.NumLogicalKeys() {
		return fmt.Errorf("%w: %d defaults for %d logical keys", ErrInvalidBoard, len(b.Defaults), b.NumLogicalKeys())
	}
	if int(b.Keys.Digit1)+LayoutSlots > b.LayerSize {
		return fmt.Errorf("%w: digit keys run past the layer", ErrInvalidBoard)
	}
	return nil
}

// Position returns the matrix position of physical key p.
func (b *Board) Position(p uint8) (row, col int, ok bool) {
	for r, cols := range b.Matrix {
		for c, k := range cols {
			if k == p {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// PhysicalFor returns the first physical key whose layer-0 default is h.
func (b *Board) PhysicalFor(h hid.Keycode) (uint8, bool) {
	for p := 0; p < b.LayerSize; p++ {
		if b.Defaults[p] == h {
			return uint8(p), true
		}
	}
	return NoKey, false
}
