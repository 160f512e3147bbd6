package sim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/hid"
)

var ErrScript = errors.New("script error")

// Op is a script instruction.
type Op int

const (
	OpPress Op = iota
	OpRelease
	OpReleaseAll
	OpTap
	OpWait
	OpType
)

// Step is one parsed script line.
type Step struct {
	Op   Op
	Keys []uint8 // physical keys
	Wait time.Duration
	Text string
	Line int
}

// ParseScript reads a headless session. One instruction per line, lines
// starting with '#' are comments:
//
//	press Program R     hold keys (HID names of layer 0 or physical numbers as #N)
//	release R           release keys, "release all" releases everything
//	tap A               press, settle, release, settle
//	wait 50ms           let time pass
//	type Hello, world   tap the keys producing the text
func ParseScript(r io.Reader, b *board.Board) ([]Step, error) {
	var steps []Step
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		verb, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)
		st := Step{Line: line}
		var err error
		switch strings.ToLower(verb) {
		case "press":
			st.Op = OpPress
			st.Keys, err = parseKeys(rest, b)
		case "release":
			if strings.EqualFold(rest, "all") {
				st.Op = OpReleaseAll
				break
			}
			st.Op = OpRelease
			st.Keys, err = parseKeys(rest, b)
		case "tap":
			st.Op = OpTap
			st.Keys, err = parseKeys(rest, b)
		case "wait":
			st.Op = OpWait
			st.Wait, err = time.ParseDuration(rest)
		case "type":
			st.Op = OpType
			st.Text = rest
			err = checkTypeable(rest, b)
		default:
			err = fmt.Errorf("unknown instruction %q", verb)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrScript, line, err)
		}
		steps = append(steps, st)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

// ParseKey resolves a key token: "#N" is physical key N, anything else a HID
// name looked up in the board's layer 0 defaults.
func ParseKey(tok string, b *board.Board) (uint8, error) {
	if n, ok := strings.CutPrefix(tok, "#"); ok {
		v, err := strconv.ParseUint(n, 10, 8)
		if err != nil || int(v) >= b.LayerSize {
			return 0, fmt.Errorf("bad physical key %q", tok)
		}
		return uint8(v), nil
	}
	h, ok := hid.KeyByName(tok)
	if !ok {
		return 0, fmt.Errorf("unknown key %q", tok)
	}
	p, ok := b.PhysicalFor(h)
	if !ok {
		return 0, fmt.Errorf("no key for %s on board %s", hid.Name(h), b.Name)
	}
	return p, nil
}

func parseKeys(s string, b *board.Board) ([]uint8, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.New("missing keys")
	}
	keys := make([]uint8, 0, len(fields))
	for _, f := range fields {
		p, err := ParseKey(f, b)
		if err != nil {
			return nil, err
		}
		keys = append(keys, p)
	}
	return keys, nil
}

// charKeys returns the physical keys to hold for c.
func charKeys(c byte, b *board.Board) ([]uint8, error) {
	code := hid.CharToHID(c)
	if code == hid.KeyNone {
		return nil, fmt.Errorf("cannot type %q", c)
	}
	p, ok := b.PhysicalFor(code)
	if !ok {
		return nil, fmt.Errorf("no key for %q", c)
	}
	if !hid.NeedsShift(c) {
		return []uint8{p}, nil
	}
	shift, ok := b.PhysicalFor(hid.KeyLeftShift)
	if !ok {
		return nil, fmt.Errorf("no shift key for %q", c)
	}
	return []uint8{shift, p}, nil
}

func checkTypeable(s string, b *board.Board) error {
	for i := 0; i < len(s); i++ {
		if _, err := charKeys(s[i], b); err != nil {
			return err
		}
	}
	return nil
}

// settle steps until the debouncer has accepted the matrix.
func (s *Sim) settle() error {
	for i := 0; i < s.d.DebounceWindow()+2; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) tap(keys []uint8) error {
	s.mat.Press(keys...)
	if err := s.settle(); err != nil {
		return err
	}
	s.mat.Release(keys...)
	return s.settle()
}

// RunScript executes steps against virtual time.
func (s *Sim) RunScript(steps []Step) error {
	for _, st := range steps {
		var err error
		switch st.Op {
		case OpPress:
			s.mat.Press(st.Keys...)
			err = s.settle()
		case OpRelease:
			s.mat.Release(st.Keys...)
			err = s.settle()
		case OpReleaseAll:
			s.mat.ReleaseAll()
			err = s.settle()
		case OpTap:
			err = s.tap(st.Keys)
		case OpWait:
			for d := time.Duration(0); d < st.Wait && err == nil; d += s.interval {
				err = s.Step()
			}
		case OpType:
			for i := 0; i < len(st.Text) && err == nil; i++ {
				var keys []uint8
				if keys, err = charKeys(st.Text[i], s.board); err == nil {
					err = s.tap(keys)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", st.Line, err)
		}
	}
	return nil
}
