package vm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Alia5/chordkb/hid"
)

// ErrAssemble wraps every assembler diagnostic.
var ErrAssemble = errors.New("assemble")

// Assemble translates program source into a loadable image.
//
//	; comment
//	.globals 2
//	.method main 0 1     ; name, argument bytes, extra local bytes
//	loop:
//	    bconst @a        ; '@' takes a HID key name
//	    presskey
//	    goto loop
//
// The first method is the entry point. Branch operands are labels, CALL
// takes a method name or number.
func Assemble(r io.Reader) ([]byte, error) {
	a := &assembler{labels: map[string]int{}, methodIndex: map[string]int{}}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if err := a.line(sc.Text()); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrAssemble, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssemble, err)
	}
	return a.link()
}

// AssembleString is Assemble for in-memory source.
func AssembleString(src string) ([]byte, error) {
	return Assemble(strings.NewReader(src))
}

type asmMethod struct {
	name    string
	nargs   uint8
	nlocals uint8
	start   int
}

type fixup struct {
	at     int // operand position in code
	opAt   int // opcode position in code
	label  string
	method bool
	line   string
}

type assembler struct {
	globals     uint8
	methods     []asmMethod
	methodIndex map[string]int
	labels      map[string]int
	code        []byte
	fixups      []fixup
}

func (a *assembler) line(text string) error {
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if strings.HasSuffix(fields[0], ":") {
		name := strings.TrimSuffix(fields[0], ":")
		if _, dup := a.labels[name]; dup {
			return fmt.Errorf("label %q defined twice", name)
		}
		a.labels[name] = len(a.code)
		fields = fields[1:]
		if len(fields) == 0 {
			return nil
		}
	}

	switch fields[0] {
	case ".globals":
		if len(fields) != 2 {
			return errors.New(".globals takes one count")
		}
		n, err := parseUint8(fields[1])
		if err != nil {
			return err
		}
		a.globals = n
		return nil
	case ".method":
		if len(fields) != 4 {
			return errors.New(".method takes name, nargs and nlocals")
		}
		nargs, err := parseUint8(fields[2])
		if err != nil {
			return err
		}
		nlocals, err := parseUint8(fields[3])
		if err != nil {
			return err
		}
		if _, dup := a.methodIndex[fields[1]]; dup {
			return fmt.Errorf("method %q defined twice", fields[1])
		}
		a.methodIndex[fields[1]] = len(a.methods)
		a.methods = append(a.methods, asmMethod{name: fields[1], nargs: nargs, nlocals: nlocals, start: len(a.code)})
		return nil
	}

	if len(a.methods) == 0 {
		return errors.New("instruction outside .method")
	}
	op, ok := opByName[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown instruction %q", fields[0])
	}
	kind := op.Operand()
	if want := min(kind.Size(), 1); len(fields)-1 != want {
		return fmt.Errorf("%s takes %d operand(s)", op, want)
	}
	opAt := len(a.code)
	a.code = append(a.code, byte(op))

	switch kind {
	case OperandNone:
	case OperandIndex:
		v, err := parseUint8(fields[1])
		if err != nil {
			return err
		}
		a.code = append(a.code, v)
	case OperandByte:
		v, err := parseConst(fields[1], 8)
		if err != nil {
			return err
		}
		a.code = append(a.code, byte(v))
	case OperandShort:
		v, err := parseConst(fields[1], 16)
		if err != nil {
			return err
		}
		a.code = binary.LittleEndian.AppendUint16(a.code, uint16(v))
	case OperandBranch:
		a.fixups = append(a.fixups, fixup{at: len(a.code), opAt: opAt, label: fields[1], line: text})
		a.code = append(a.code, 0, 0)
	case OperandMethod:
		if v, err := parseUint8(fields[1]); err == nil {
			a.code = append(a.code, v)
			break
		}
		a.fixups = append(a.fixups, fixup{at: len(a.code), label: fields[1], method: true, line: text})
		a.code = append(a.code, 0)
	}
	return nil
}

func (a *assembler) link() ([]byte, error) {
	if len(a.methods) == 0 {
		return nil, fmt.Errorf("%w: no methods", ErrAssemble)
	}
	if len(a.methods) > 255 {
		return nil, fmt.Errorf("%w: too many methods", ErrAssemble)
	}
	for _, f := range a.fixups {
		if f.method {
			m, ok := a.methodIndex[f.label]
			if !ok {
				return nil, fmt.Errorf("%w: unknown method %q in %q", ErrAssemble, f.label, strings.TrimSpace(f.line))
			}
			a.code[f.at] = byte(m)
			continue
		}
		target, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("%w: unknown label %q in %q", ErrAssemble, f.label, strings.TrimSpace(f.line))
		}
		off := target - f.opAt
		if off < -32768 || off > 32767 {
			return nil, fmt.Errorf("%w: branch to %q out of range", ErrAssemble, f.label)
		}
		binary.LittleEndian.PutUint16(a.code[f.at:], uint16(int16(off)))
	}

	start := headerSize + len(a.methods)*methodSize
	if start+len(a.code) > 0xFFFF {
		return nil, fmt.Errorf("%w: program too large", ErrAssemble)
	}
	out := make([]byte, 0, start+len(a.code))
	out = append(out, a.globals, byte(len(a.methods)))
	for _, m := range a.methods {
		if m.start >= len(a.code) {
			return nil, fmt.Errorf("%w: method %q is empty", ErrAssemble, m.name)
		}
		out = append(out, m.nargs, m.nlocals)
		out = binary.LittleEndian.AppendUint16(out, uint16(start+m.start))
	}
	return append(out, a.code...), nil
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q", s)
	}
	return uint8(v), nil
}

// parseConst accepts signed integers, '@' key names and quoted characters.
func parseConst(s string, bits int) (int64, error) {
	if name, ok := strings.CutPrefix(s, "@"); ok {
		k, ok := hid.KeyByName(name)
		if !ok {
			return 0, fmt.Errorf("unknown key %q", name)
		}
		return int64(k), nil
	}
	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return int64(s[1]), nil
	}
	v, err := strconv.ParseInt(s, 0, bits)
	if err != nil {
		// Allow unsigned spellings such as 0xFF for a byte.
		u, uerr := strconv.ParseUint(s, 0, bits)
		if uerr != nil {
			return 0, fmt.Errorf("bad constant %q", s)
		}
		return int64(u), nil
	}
	return v, nil
}
