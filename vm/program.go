// Package vm runs the bytecode programs bound to chords. Every program gets
// its own Instance; a Pool steps all of them once per tick, cooperatively.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Method is one entry of a program's method table. Offset is relative to
// the start of the program.
type Method struct {
	NArgs   uint8
	NLocals uint8
	Offset  uint16
}

// Program is a parsed program image. Method 0 is the entry point.
type Program struct {
	NGlobals uint8
	Methods  []Method
	Code     []byte // the whole image, addressed by method offsets
}

const (
	headerSize = 2
	methodSize = 4
)

var ErrBadProgram = errors.New("malformed program")

// Parse validates a program image:
//
//	nglobals u8, nmethods u8, nmethods x {nargs u8, nlocals u8, offset u16le}, code...
func Parse(image []byte) (*Program, error) {
	if len(image) < headerSize {
		return nil, fmt.Errorf("%w: %d byte image", ErrBadProgram, len(image))
	}
	p := &Program{NGlobals: image[0], Code: image}
	n := int(image[1])
	if n == 0 {
		return nil, fmt.Errorf("%w: no methods", ErrBadProgram)
	}
	codeStart := headerSize + n*methodSize
	if len(image) <= codeStart {
		return nil, fmt.Errorf("%w: method table runs past the image", ErrBadProgram)
	}
	if int(p.NGlobals) > StackSize {
		return nil, fmt.Errorf("%w: %d globals exceed the stack", ErrBadProgram, p.NGlobals)
	}
	for i := 0; i < n; i++ {
		raw := image[headerSize+i*methodSize:]
		m := Method{NArgs: raw[0], NLocals: raw[1], Offset: binary.LittleEndian.Uint16(raw[2:])}
		if int(m.Offset) < codeStart || int(m.Offset) >= len(image) {
			return nil, fmt.Errorf("%w: method %d starts at %d outside code [%d, %d)", ErrBadProgram, i, m.Offset, codeStart, len(image))
		}
		p.Methods = append(p.Methods, m)
	}
	return p, nil
}

// CodeStart is the offset of the first instruction.
func (p *Program) CodeStart() int { return headerSize + len(p.Methods)*methodSize }
