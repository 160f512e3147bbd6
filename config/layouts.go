package config

import (
	"errors"
	"fmt"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/hid"
)

// Saved layouts are stored as their differences from the board defaults: a
// packed list of (logical, hid) pairs, with an index of inclusive
// [start, end] pair positions per slot. Empty slots hold NoKey in both.
const layoutIndexSize = 2 * board.LayoutSlots

func (s *Store) pairCapacity() int {
	n := int(s.layouts.Len-layoutIndexSize) / 2
	if n > 256 {
		n = 256
	}
	return n
}

func (s *Store) layoutIndex(i int) (start, end uint8, err error) {
	if start, err = s.layouts.Byte(int64(2 * i)); err != nil {
		return 0, 0, err
	}
	if end, err = s.layouts.Byte(int64(2*i + 1)); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (s *Store) setLayoutIndex(i int, start, end uint8) error {
	if err := s.layouts.SetByte(int64(2*i), start); err != nil {
		return err
	}
	return s.layouts.SetByte(int64(2*i+1), end)
}

func pairOffset(p int) int64 { return layoutIndexSize + 2*int64(p) }

// LayoutUsed reports whether slot i holds a saved layout.
func (s *Store) LayoutUsed(i int) bool {
	if i < 0 || i >= board.LayoutSlots {
		return false
	}
	start, _, err := s.layoutIndex(i)
	return err == nil && start != board.NoKey
}

// DeleteLayout removes saved layout i and packs the remaining ones.
func (s *Store) DeleteLayout(i int) error {
	if i < 0 || i >= board.LayoutSlots {
		return ErrNoLayout
	}
	start, end, err := s.layoutIndex(i)
	if err != nil {
		return fmt.Errorf("read layout index: %w", err)
	}
	if start == board.NoKey {
		return ErrNoLayout
	}
	length := int(end) - int(start) + 1
	if err := s.setLayoutIndex(i, board.NoKey, board.NoKey); err != nil {
		return fmt.Errorf("clear layout index: %w", err)
	}

	maxEnd := int(end)
	for j := 0; j < board.LayoutSlots; j++ {
		js, je, err := s.layoutIndex(j)
		if err != nil {
			return fmt.Errorf("read layout index: %w", err)
		}
		if js == board.NoKey || js <= end {
			continue
		}
		if int(je) > maxEnd {
			maxEnd = int(je)
		}
		if err := s.setLayoutIndex(j, js-uint8(length), je-uint8(length)); err != nil {
			return fmt.Errorf("move layout index: %w", err)
		}
	}
	if moved := maxEnd - int(end); moved > 0 {
		if err := s.layouts.Memmove(pairOffset(int(start)), pairOffset(int(end)+1), 2*moved); err != nil {
			return fmt.Errorf("pack layouts: %w", err)
		}
	}
	s.logger.Debug("Deleted layout", "slot", i, "pairs", length)
	return s.layouts.WaitForLastWrite()
}

// SaveLayout stores the differences between the current mapping and the
// defaults in slot i, replacing what was there. A mapping equal to the
// defaults is not saved.
func (s *Store) SaveLayout(i int) error {
	if i < 0 || i >= board.LayoutSlots {
		return ErrNoLayout
	}
	if err := s.DeleteLayout(i); err != nil && !errors.Is(err, ErrNoLayout) {
		return err
	}

	next := 0
	for j := 0; j < board.LayoutSlots; j++ {
		js, je, err := s.layoutIndex(j)
		if err != nil {
			return fmt.Errorf("read layout index: %w", err)
		}
		if js != board.NoKey && int(je)+1 > next {
			next = int(je) + 1
		}
	}

	limit := s.pairCapacity() - 1
	cursor := next
	for l, h := range s.current {
		if h == s.board.Defaults[l] {
			continue
		}
		if cursor >= limit {
			return ErrNoSpace
		}
		if _, err := s.layouts.WriteAt([]byte{uint8(l), h}, pairOffset(cursor)); err != nil {
			return fmt.Errorf("write layout: %w", err)
		}
		cursor++
	}
	if cursor == next {
		return ErrNoChange
	}
	if err := s.setLayoutIndex(i, uint8(next), uint8(cursor-1)); err != nil {
		return fmt.Errorf("write layout index: %w", err)
	}
	s.logger.Debug("Saved layout", "slot", i, "pairs", cursor-next)
	return s.layouts.WaitForLastWrite()
}

// LoadLayout replaces the current mapping with the defaults overlaid by
// saved layout i.
func (s *Store) LoadLayout(i int) error {
	diff, err := s.Layout(i)
	if err != nil {
		return err
	}
	next := make([]hid.Keycode, len(s.current))
	copy(next, s.board.Defaults)
	for l, h := range diff {
		if int(l) < len(next) {
			next[l] = h
		}
	}
	if _, err := s.mapping.WriteAt(next, offMapping); err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	copy(s.current, next)
	s.logger.Debug("Loaded layout", "slot", i, "pairs", len(diff))
	return s.mapping.WaitForLastWrite()
}

// Layout returns the saved differences of slot i keyed by logical key.
func (s *Store) Layout(i int) (map[uint8]hid.Keycode, error) {
	if i < 0 || i >= board.LayoutSlots {
		return nil, ErrNoLayout
	}
	start, end, err := s.layoutIndex(i)
	if err != nil {
		return nil, fmt.Errorf("read layout index: %w", err)
	}
	if start == board.NoKey {
		return nil, ErrNoLayout
	}
	raw, err := s.layouts.Bytes(pairOffset(int(start)), 2*(int(end)-int(start)+1))
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	out := make(map[uint8]hid.Keycode, len(raw)/2)
	for p := 0; p+1 < len(raw); p += 2 {
		out[raw[p]] = raw[p+1]
	}
	return out, nil
}
