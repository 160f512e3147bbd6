// Package keystate tracks the debounced physical keys, resolves them through
// the active layer into logical and HID keys and tells interested parties
// about logical key transitions.
package keystate

import (
	"log/slog"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/matrix"
)

// SlotCount is the number of keys tracked at once. Further presses are
// ignored until a slot frees up.
const SlotCount = 14

// Kind selects which identity of a key a query works on.
type Kind int

const (
	Physical Kind = iota
	Logical
	HID
)

// Definitions resolves logical keys to HID codes and provides the feature
// flags. config.Store implements it.
type Definitions interface {
	Definition(l uint8) hid.Keycode
	Flags() config.Flags
}

// ChangeHook receives every notified logical key transition.
type ChangeHook interface {
	KeyChanged(l uint8, pressed bool)
}

// HookFunc adapts a function to ChangeHook.
type HookFunc func(l uint8, pressed bool)

func (f HookFunc) KeyChanged(l uint8, pressed bool) { f(l, pressed) }

type noHook struct{}

func (noHook) KeyChanged(uint8, bool) {}

// NoHook is the hook installed when nothing is registered.
var NoHook ChangeHook = noHook{}

// PhysicalKey is one tracked slot. Key is board.NoKey for a free slot.
type PhysicalKey struct {
	Key       uint8
	State     bool
	PrevState bool
	// Hidden keys are left out of reports and the press count until
	// released.
	Hidden bool
}

var emptySlot = PhysicalKey{Key: board.NoKey}

// Layer is the active keymap selection. Base forces layer 0 while a program
// or macro shift key is held.
type Layer struct {
	Base   bool
	Locked bool
	ID     uint8
}

// lookup is the layer used to resolve logical keys.
func (l Layer) lookup() uint8 {
	if l.Base {
		return 0
	}
	return l.ID
}

// key identifies a layer for edge detection; base differs from every id.
func (l Layer) key() uint8 {
	if l.Base {
		return 0xFF
	}
	return l.ID
}

const mouseInterval = 25

// State is the key state of one keyboard.
type State struct {
	board  *board.Board
	defs   Definitions
	buzz   buzzer.Buzzer
	logger *slog.Logger

	slots     [SlotCount]PhysicalKey
	pressed   int
	layer     Layer
	prevLayer Layer
	hook      ChangeHook

	mouseTime    uint16
	mouseNext    uint16
	mouseButtons uint8
}

// New returns an empty key state.
func New(b *board.Board, defs Definitions, bz buzzer.Buzzer, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	if bz == nil {
		bz = buzzer.Silent{}
	}
	s := &State{board: b, defs: defs, buzz: bz, logger: logger, hook: NoHook}
	s.Reset()
	return s
}

// Reset forgets every tracked key and returns to layer 0.
func (s *State) Reset() {
	for i := range s.slots {
		s.slots[i] = emptySlot
	}
	s.pressed = 0
	s.layer = Layer{}
	s.prevLayer = Layer{}
	s.mouseTime, s.mouseNext, s.mouseButtons = 0, 0, 0
}

// RegisterChangeHook installs h; nil installs NoHook.
func (s *State) RegisterChangeHook(h ChangeHook) {
	if h == nil {
		h = NoHook
	}
	s.hook = h
}

// notifiable filters out the layer shift and lock keys, which are consumed
// here and never reach higher levels.
func notifiable(h hid.Keycode) bool {
	return h < hid.LayerLock || h >= hid.MacroShift
}

func (s *State) extract(l Layer, k *PhysicalKey, kind Kind) uint8 {
	if kind == Physical {
		return k.Key
	}
	logical := int(k.Key) + int(l.lookup())*s.board.LayerSize
	if logical > 0xFF {
		logical = 0xFF
	}
	if kind == Logical {
		return uint8(logical)
	}
	return s.defs.Definition(uint8(logical))
}

// Update applies one debounced pass: changed holds the keys whose stable
// state flipped.
func (s *State) Update(stable, changed matrix.Bitset) {
	changed.Each(func(p uint8) {
		down := stable.Has(p)
		free := -1
		for i := range s.slots {
			if s.slots[i].Key == p {
				s.slots[i].State = down
				return
			}
			if free < 0 && s.slots[i].Key == board.NoKey {
				free = i
			}
		}
		if !down {
			return
		}
		if free < 0 {
			s.logger.Debug("Key slots full, dropping press", "key", p)
			return
		}
		s.slots[free] = PhysicalKey{Key: p, State: true}
	})

	for i := range s.slots {
		k := &s.slots[i]
		if k.Key == board.NoKey || k.State == k.PrevState {
			continue
		}
		if h := s.defs.Definition(k.Key); hid.NoRemap(h) {
			s.updateLayer(h, k.State)
		}
	}

	layerChange := s.layer.key() != s.prevLayer.key()
	for i := range s.slots {
		k := &s.slots[i]
		if k.Key == board.NoKey {
			continue
		}
		if !layerChange && k.PrevState == k.State {
			continue
		}
		if notifiable(s.defs.Definition(k.Key)) {
			s.notifyChange(layerChange, k)
		}
		if k.PrevState && !k.State {
			*k = emptySlot
		} else {
			k.PrevState = k.State
		}
	}
	s.prevLayer = s.layer
	s.recount()
}

func (s *State) updateLayer(h hid.Keycode, down bool) {
	switch h {
	case hid.LayerLock:
		if down {
			switch {
			case s.layer.Locked:
				s.layer.Locked = false
				s.layer.ID = 0
			case s.layer.ID == 0:
				s.layer.Locked = true
				s.layer.ID = board.LayerKeypad
			default:
				s.layer.Locked = true
			}
		}
	case hid.KeypadShift:
		if down {
			s.layer.ID = board.LayerKeypad
		} else if !s.layer.Locked {
			s.layer.ID = 0
		}
	case hid.FunctionShift:
		if down {
			s.layer.ID = board.LayerFunction
		} else if !s.layer.Locked {
			s.layer.ID = 0
		}
	case hid.MacroShift, hid.Program:
		s.layer.Base = down
	}
	if s.layer.key() == s.prevLayer.key() {
		return
	}
	s.logger.Debug("Layer changed", "layer", s.layer.key(), "locked", s.layer.Locked)
	if h == hid.LayerLock {
		tone := buzzer.OffTone
		if s.layer.key() != 0 {
			tone = buzzer.OnTone
		}
		s.buzz.Start(100, tone)
		return
	}
	s.buzz.Beep()
}

func (s *State) notifyChange(layerChange bool, k *PhysicalKey) {
	switch {
	case layerChange && k.PrevState && k.State:
		s.hook.KeyChanged(s.extract(s.prevLayer, k, Logical), false)
		s.notifyPressed(k)
	case k.State:
		s.notifyPressed(k)
	case k.PrevState || !layerChange:
		l := s.layer
		if layerChange {
			l = s.prevLayer
		}
		s.hook.KeyChanged(s.extract(l, k, Logical), false)
	}
}

func (s *State) notifyPressed(k *PhysicalKey) {
	s.hook.KeyChanged(s.extract(s.layer, k, Logical), true)
	if s.defs.Flags().KeySound {
		s.buzz.Beep()
	}
}

func (s *State) recount() {
	n := 0
	for i := range s.slots {
		k := &s.slots[i]
		if k.Key != board.NoKey && k.State && !k.Hidden && notifiable(s.defs.Definition(k.Key)) {
			n++
		}
	}
	s.pressed = n
}

// KeyPressCount is the number of pressed, visible keys other than layer
// shift and lock keys.
func (s *State) KeyPressCount() int { return s.pressed }

// Layer returns the active layer.
func (s *State) Layer() Layer { return s.layer }

// LayerID returns the layer logical keys are currently resolved on.
func (s *State) LayerID() uint8 { return s.layer.lookup() }

// Slots returns a copy of the tracked keys.
func (s *State) Slots() [SlotCount]PhysicalKey { return s.slots }

// Logical returns the logical key of physical key p on the active layer.
func (s *State) Logical(p uint8) uint8 {
	k := PhysicalKey{Key: p}
	return s.extract(s.layer, &k, Logical)
}

// HID returns the HID code of physical key p on the active layer.
func (s *State) HID(p uint8) hid.Keycode {
	k := PhysicalKey{Key: p}
	return s.extract(s.layer, &k, HID)
}

// Hide suppresses the physical key behind logical key l from reports until
// it is released.
func (s *State) Hide(l uint8) {
	p := l % uint8(s.board.LayerSize)
	for i := range s.slots {
		if s.slots[i].Key == p {
			s.slots[i].Hidden = true
			break
		}
	}
	s.recount()
}

// IsHidden reports whether the key behind logical key l is hidden. Keys that
// are not tracked count as hidden.
func (s *State) IsHidden(l uint8) bool {
	p := l % uint8(s.board.LayerSize)
	for i := range s.slots {
		if s.slots[i].Key == p {
			return s.slots[i].Hidden
		}
	}
	return true
}

// CheckKey reports whether key k of the given kind is pressed.
func (s *State) CheckKey(k uint8, kind Kind) bool {
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.Key == board.NoKey {
			continue
		}
		if s.extract(s.layer, slot, kind) == k {
			return slot.State
		}
	}
	return false
}

// CheckKeys reports whether all keys are pressed.
func (s *State) CheckKeys(kind Kind, keys []uint8) bool {
	if len(keys) > s.pressed {
		return false
	}
	for _, k := range keys {
		if !s.CheckKey(k, kind) {
			return false
		}
	}
	return true
}

// CheckAnyKey reports whether at least one of keys is pressed.
func (s *State) CheckAnyKey(kind Kind, keys []uint8) bool {
	if s.pressed == 0 {
		return false
	}
	for _, k := range keys {
		if s.CheckKey(k, kind) {
			return true
		}
	}
	return false
}

// Keys lists the pressed visible keys in slot order, skipping layer keys.
func (s *State) Keys(kind Kind) []uint8 {
	out := make([]uint8, 0, s.pressed)
	for i := range s.slots {
		k := &s.slots[i]
		if len(out) == s.pressed {
			break
		}
		if k.Key == board.NoKey || !k.State || k.Hidden {
			continue
		}
		if !notifiable(s.extract(s.layer, k, HID)) {
			continue
		}
		out = append(out, s.extract(s.layer, k, kind))
	}
	return out
}

// CheckHIDKey returns the HID code of the first pressed key mapped to h, or
// of any pressed key when h is 0. NoKey when there is none.
func (s *State) CheckHIDKey(h hid.Keycode) hid.Keycode {
	for i := range s.slots {
		k := &s.slots[i]
		if k.Key == board.NoKey || !k.State {
			continue
		}
		if got := s.extract(s.layer, k, HID); h == 0 || got == h {
			return got
		}
	}
	return hid.NoKey
}

// IsLayerShift reports whether logical key l is a layer shift or lock key.
func (s *State) IsLayerShift(l uint8) bool { return hid.IsLayerShift(s.defs.Definition(l)) }

// IsModifier reports whether logical key l maps to a modifier.
func (s *State) IsModifier(l uint8) bool { return hid.IsModifier(s.defs.Definition(l)) }
