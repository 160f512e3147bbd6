// Package config holds the persistent keyboard configuration: the current
// logical-to-HID mapping, feature flags, saved layouts and program slots.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/storage"
)

// Sentinel marks an initialized store. Anything else triggers a full reset.
const Sentinel = 43

const (
	offSentinel = 0
	offFlags    = 1
	offMapping  = 2
)

var (
	ErrNoLayout  = errors.New("no layout")
	ErrNoSpace   = errors.New("no space")
	ErrNoChange  = errors.New("no change")
	ErrNoProgram = errors.New("no program")
)

// Flags are the persisted feature toggles.
type Flags struct {
	KeySound         bool `yaml:"keySound"`
	MacrosDisabled   bool `yaml:"macrosDisabled"`
	ProgramsDisabled bool `yaml:"programsDisabled"`
}

func (f Flags) byte() byte {
	var b byte
	if f.KeySound {
		b |= 1
	}
	if f.MacrosDisabled {
		b |= 2
	}
	if f.ProgramsDisabled {
		b |= 4
	}
	return b
}

func flagsFrom(b byte) Flags {
	return Flags{
		KeySound:         b&1 != 0,
		MacrosDisabled:   b&2 != 0,
		ProgramsDisabled: b&4 != 0,
	}
}

// Store is the configuration of one board over its storage areas. The
// mapping and flags are cached in memory and written through.
type Store struct {
	board    *board.Board
	mapping  *storage.Region
	layouts  *storage.Region
	programs *storage.Region
	logger   *slog.Logger

	current []hid.Keycode
	flags   Flags
	resets  []func() error
}

// New returns a store over the mapping, layout and program areas of l. Call
// Init before use.
func New(b *board.Board, l *storage.Layout, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if need := int64(offMapping + b.NumLogicalKeys()); l.Mapping.Len < need {
		return nil, fmt.Errorf("mapping area holds %d bytes, board needs %d", l.Mapping.Len, need)
	}
	if l.Layouts.Len < layoutIndexSize+2 {
		return nil, fmt.Errorf("layout area of %d bytes is too small", l.Layouts.Len)
	}
	if l.Programs.Len < programIndexSize {
		return nil, fmt.Errorf("program area of %d bytes is too small", l.Programs.Len)
	}
	return &Store{
		board:    b,
		mapping:  l.Mapping,
		layouts:  l.Layouts,
		programs: l.Programs,
		logger:   logger,
		current:  make([]hid.Keycode, b.NumLogicalKeys()),
	}, nil
}

// OnReset registers fn to run during ResetFully, after the flags, layout
// index and program index are cleared and before the mapping is restored.
func (s *Store) OnReset(fn func() error) {
	s.resets = append(s.resets, fn)
}

// Init loads the configuration, resetting everything if the sentinel is
// missing.
func (s *Store) Init() error {
	v, err := s.mapping.Byte(offSentinel)
	if err != nil {
		return fmt.Errorf("read sentinel: %w", err)
	}
	if v != Sentinel {
		s.logger.Info("Storage not initialized, resetting", "sentinel", v)
		return s.ResetFully()
	}
	return s.load()
}

func (s *Store) load() error {
	raw, err := s.mapping.Bytes(offMapping, len(s.current))
	if err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}
	copy(s.current, raw)
	fb, err := s.mapping.Byte(offFlags)
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	s.flags = flagsFrom(fb)
	return nil
}

// Board returns the board the store was created for.
func (s *Store) Board() *board.Board { return s.board }

// Definition returns the current HID code of logical key l, NoKey if l is
// outside the board.
func (s *Store) Definition(l uint8) hid.Keycode {
	if int(l) >= len(s.current) {
		return hid.NoKey
	}
	return s.current[l]
}

// DefaultDefinition returns the board default of logical key l.
func (s *Store) DefaultDefinition(l uint8) hid.Keycode {
	if int(l) >= len(s.board.Defaults) {
		return hid.NoKey
	}
	return s.board.Defaults[l]
}

// SaveDefinition remaps logical key l to h.
func (s *Store) SaveDefinition(l uint8, h hid.Keycode) error {
	if int(l) >= len(s.current) {
		return fmt.Errorf("logical key %d: %w", l, storage.ErrOutOfRange)
	}
	if err := s.mapping.SetByte(offMapping+int64(l), h); err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	s.current[l] = h
	s.logger.Debug("Remapped key", "logical", l, "hid", hid.Name(h))
	return nil
}

// Mapping returns a copy of the current mapping.
func (s *Store) Mapping() []hid.Keycode {
	out := make([]hid.Keycode, len(s.current))
	copy(out, s.current)
	return out
}

// Flags returns the feature toggles.
func (s *Store) Flags() Flags { return s.flags }

// SaveFlags persists f.
func (s *Store) SaveFlags(f Flags) error {
	if err := s.mapping.SetByte(offFlags, f.byte()); err != nil {
		return fmt.Errorf("save flags: %w", err)
	}
	s.flags = f
	return nil
}

// ResetDefaults restores the board defaults into the current mapping.
func (s *Store) ResetDefaults() error {
	if _, err := s.mapping.WriteAt(s.board.Defaults, offMapping); err != nil {
		return fmt.Errorf("reset mapping: %w", err)
	}
	copy(s.current, s.board.Defaults)
	return s.mapping.WaitForLastWrite()
}

// ResetFully clears flags, saved layouts, programs and everything registered
// through OnReset, restores the default mapping and finally writes the
// sentinel.
func (s *Store) ResetFully() error {
	if err := s.SaveFlags(Flags{}); err != nil {
		return err
	}
	if err := s.layouts.Memset(0, board.NoKey, layoutIndexSize); err != nil {
		return fmt.Errorf("reset layout index: %w", err)
	}
	if err := s.ResetPrograms(); err != nil {
		return err
	}
	for _, fn := range s.resets {
		if err := fn(); err != nil {
			return err
		}
	}
	if err := s.ResetDefaults(); err != nil {
		return err
	}
	if err := s.mapping.SetByte(offSentinel, Sentinel); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	s.logger.Info("Configuration reset")
	return s.mapping.WaitForLastWrite()
}
