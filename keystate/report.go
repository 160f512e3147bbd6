package keystate

import "github.com/Alia5/chordkb/hid"

// FillKeyboardReport adds the visible pressed keys to r. A held program key
// or more keys than the report holds turn the report into rollover, so
// program chords never type.
func (s *State) FillKeyboardReport(r *hid.KeyboardReport) {
	rollover := false
	for i := range s.slots {
		k := &s.slots[i]
		if !k.State || k.Hidden {
			continue
		}
		h := s.extract(s.layer, k, HID)
		if h == hid.Program {
			rollover = true
			continue
		}
		if !r.Press(h) {
			rollover = true
			break
		}
	}
	if rollover {
		r.Rollover()
	}
}

// FillMouseReport adds mouse emulation keys to r. Reports are rate limited to
// one every 25 calls; movement speeds up linearly while a movement key stays
// held.
func (s *State) FillMouseReport(r *hid.MouseReport) {
	s.mouseTime++
	if s.mouseTime < s.mouseNext {
		r.Buttons = s.mouseButtons
		return
	}
	s.mouseNext += mouseInterval

	move := s.mouseTime / mouseInterval
	if move > 127 {
		move = 127
	}
	moving := false
	for i := range s.slots {
		k := &s.slots[i]
		if !k.State || k.Hidden {
			continue
		}
		h := s.extract(s.layer, k, HID)
		switch {
		case h >= hid.MouseButton1 && h <= hid.MouseButton5:
			r.Buttons |= 1 << (h - hid.MouseButton1)
		case h == hid.MouseForward:
			moving = true
			r.Y = -int8(move)
		case h == hid.MouseBack:
			moving = true
			r.Y = int8(move)
		case h == hid.MouseLeft:
			moving = true
			r.X = -int8(move)
		case h == hid.MouseRight:
			moving = true
			r.X = int8(move)
		}
	}
	if !moving {
		s.mouseTime = 0
		s.mouseNext = mouseInterval
	}
	s.mouseButtons = r.Buttons
}
