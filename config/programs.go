package config

import (
	"errors"
	"fmt"
)

// ProgramCount is the number of program slots.
const ProgramCount = 6

const (
	programIndexSize = 4 * ProgramCount
	programEmpty     = 0xFFFF
)

// The program area starts with an index of {offset, len uint16} per slot,
// offset relative to the data that follows it. Data is kept packed.

func (s *Store) programIndex(i int) (off, n uint16, err error) {
	if off, err = s.programs.Short(int64(4 * i)); err != nil {
		return 0, 0, err
	}
	if n, err = s.programs.Short(int64(4*i + 2)); err != nil {
		return 0, 0, err
	}
	return off, n, nil
}

func (s *Store) setProgramIndex(i int, off, n uint16) error {
	if err := s.programs.SetShort(int64(4*i), off); err != nil {
		return err
	}
	return s.programs.SetShort(int64(4*i+2), n)
}

func checkSlot(i int) error {
	if i < 0 || i >= ProgramCount {
		return fmt.Errorf("program slot %d: %w", i, ErrNoProgram)
	}
	return nil
}

// ProgramCapacity is the number of bytes available to all programs.
func (s *Store) ProgramCapacity() int {
	return int(s.programs.Len) - programIndexSize
}

// Program returns the bytecode in slot i.
func (s *Store) Program(i int) ([]byte, error) {
	if err := checkSlot(i); err != nil {
		return nil, err
	}
	off, n, err := s.programIndex(i)
	if err != nil {
		return nil, fmt.Errorf("read program index: %w", err)
	}
	if off == programEmpty {
		return nil, ErrNoProgram
	}
	code, err := s.programs.Bytes(programIndexSize+int64(off), int(n))
	if err != nil {
		return nil, fmt.Errorf("read program %d: %w", i, err)
	}
	return code, nil
}

// Programs returns the bytecode of every slot, nil for empty ones.
func (s *Store) Programs() ([ProgramCount][]byte, error) {
	var out [ProgramCount][]byte
	for i := range out {
		code, err := s.Program(i)
		if errors.Is(err, ErrNoProgram) {
			continue
		}
		if err != nil {
			return out, err
		}
		out[i] = code
	}
	return out, nil
}

func (s *Store) programsEnd() (int, error) {
	end := 0
	for j := 0; j < ProgramCount; j++ {
		off, n, err := s.programIndex(j)
		if err != nil {
			return 0, fmt.Errorf("read program index: %w", err)
		}
		if off != programEmpty && int(off)+int(n) > end {
			end = int(off) + int(n)
		}
	}
	return end, nil
}

// SaveProgram stores code in slot i, replacing the previous program.
func (s *Store) SaveProgram(i int, code []byte) error {
	if err := checkSlot(i); err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("empty program for slot %d", i)
	}
	if err := s.DeleteProgram(i); err != nil && !errors.Is(err, ErrNoProgram) {
		return err
	}
	end, err := s.programsEnd()
	if err != nil {
		return err
	}
	if end+len(code) > s.ProgramCapacity() {
		return ErrNoSpace
	}
	if _, err := s.programs.WriteAt(code, programIndexSize+int64(end)); err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	if err := s.setProgramIndex(i, uint16(end), uint16(len(code))); err != nil {
		return fmt.Errorf("write program index: %w", err)
	}
	s.logger.Debug("Saved program", "slot", i, "bytes", len(code))
	return s.programs.WaitForLastWrite()
}

// DeleteProgram empties slot i and packs the remaining programs.
func (s *Store) DeleteProgram(i int) error {
	if err := checkSlot(i); err != nil {
		return err
	}
	off, n, err := s.programIndex(i)
	if err != nil {
		return fmt.Errorf("read program index: %w", err)
	}
	if off == programEmpty {
		return ErrNoProgram
	}
	end, err := s.programsEnd()
	if err != nil {
		return err
	}
	if err := s.setProgramIndex(i, programEmpty, programEmpty); err != nil {
		return fmt.Errorf("clear program index: %w", err)
	}
	for j := 0; j < ProgramCount; j++ {
		jo, jn, err := s.programIndex(j)
		if err != nil {
			return fmt.Errorf("read program index: %w", err)
		}
		if jo == programEmpty || jo <= off {
			continue
		}
		if err := s.setProgramIndex(j, jo-n, jn); err != nil {
			return fmt.Errorf("move program index: %w", err)
		}
	}
	if tail := end - int(off) - int(n); tail > 0 {
		base := int64(programIndexSize)
		if err := s.programs.Memmove(base+int64(off), base+int64(off)+int64(n), tail); err != nil {
			return fmt.Errorf("pack programs: %w", err)
		}
	}
	return s.programs.WaitForLastWrite()
}

// ResetPrograms empties every program slot.
func (s *Store) ResetPrograms() error {
	if err := s.programs.Memset(0, 0xFF, programIndexSize); err != nil {
		return fmt.Errorf("reset program index: %w", err)
	}
	return nil
}
