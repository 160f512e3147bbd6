package hid

import (
	"io"
)

// ReportKeyCount is the number of simple keycode slots of a boot keyboard report.
const ReportKeyCount = 6

// KeyboardReport is the boot protocol keyboard report the firmware fills once
// per tick.
type KeyboardReport struct {
	Modifier uint8
	Keys     [ReportKeyCount]Keycode
}

// MouseReport is the boot protocol mouse report. Deltas are one-shot: the
// report is rebuilt from scratch every poll.
type MouseReport struct {
	// Button bitfield: bit 0=Left, 1=Right, 2=Middle, 3=Back, 4=Forward
	Buttons uint8
	X, Y    int8
	Wheel   int8
}

// Press adds k to the report: modifiers set their bit, other codes take the
// next free key slot. Returns false when no slot is free.
func (r *KeyboardReport) Press(k Keycode) bool {
	if IsModifier(k) {
		r.Modifier |= 1 << (k - KeyLeftCtrl)
		return true
	}
	if k == KeyNone || IsSpecial(k) || k == NoKey {
		return true
	}
	for i, c := range r.Keys {
		if c == k {
			return true
		}
		if c == KeyNone {
			r.Keys[i] = k
			return true
		}
	}
	return false
}

// Release removes k from r, keeping the remaining key slots packed.
func (r *KeyboardReport) Release(k Keycode) {
	if IsModifier(k) {
		r.Modifier &^= 1 << (k - KeyLeftCtrl)
		return
	}
	j := 0
	for _, c := range r.Keys {
		if c != k {
			r.Keys[j] = c
			j++
		}
	}
	for ; j < len(r.Keys); j++ {
		r.Keys[j] = KeyNone
	}
}

// Contains reports whether k is held in r.
func (r *KeyboardReport) Contains(k Keycode) bool {
	if IsModifier(k) {
		return r.Modifier&(1<<(k-KeyLeftCtrl)) != 0
	}
	for _, c := range r.Keys {
		if c == k {
			return true
		}
	}
	return false
}

// Rollover fills every key slot with the ErrorRollOver usage.
func (r *KeyboardReport) Rollover() {
	for i := range r.Keys {
		r.Keys[i] = KeyErrorRollover
	}
}

// IsRollover reports whether r signals a phantom/overflow state.
func (r *KeyboardReport) IsRollover() bool {
	return r.Keys[0] == KeyErrorRollover
}

// Merge ORs the modifiers of o into r and adds its keys, switching to
// rollover if they do not fit.
func (r *KeyboardReport) Merge(o KeyboardReport) {
	if r.IsRollover() {
		return
	}
	if o.IsRollover() {
		r.Rollover()
		return
	}
	r.Modifier |= o.Modifier
	for _, k := range o.Keys {
		if k == KeyNone {
			continue
		}
		if !r.Press(k) {
			r.Rollover()
			return
		}
	}
}

// Pressed lists the keys and modifiers held in r.
func (r *KeyboardReport) Pressed() []Keycode {
	var out []Keycode
	for i := 0; i < 8; i++ {
		if r.Modifier&(1<<i) != 0 {
			out = append(out, KeyLeftCtrl+Keycode(i))
		}
	}
	for _, k := range r.Keys {
		if k != KeyNone {
			out = append(out, k)
		}
	}
	return out
}

// BuildReport encodes r into the 8-byte boot keyboard report.
//
// Report layout (8 bytes):
//
//	Byte 0: Modifiers (8 bits)
//	Byte 1: Reserved (0x00)
//	Bytes 2-7: Key codes
func (r KeyboardReport) BuildReport() []byte {
	b := make([]byte, 8)
	b[0] = r.Modifier
	copy(b[2:], r.Keys[:])
	return b
}

// MarshalBinary encodes r in the boot report layout.
func (r *KeyboardReport) MarshalBinary() ([]byte, error) {
	return r.BuildReport(), nil
}

// UnmarshalBinary decodes an 8-byte boot keyboard report.
func (r *KeyboardReport) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return io.ErrUnexpectedEOF
	}
	r.Modifier = data[0]
	copy(r.Keys[:], data[2:8])
	return nil
}

// Merge ORs buttons and adds the deltas of o, saturating at the int8 range.
func (m *MouseReport) Merge(o MouseReport) {
	m.Buttons |= o.Buttons
	m.X = addSat(m.X, o.X)
	m.Y = addSat(m.Y, o.Y)
	m.Wheel = addSat(m.Wheel, o.Wheel)
}

func addSat(a, b int8) int8 {
	s := int16(a) + int16(b)
	if s > 127 {
		return 127
	}
	if s < -127 {
		return -127
	}
	return int8(s)
}

// BuildReport encodes m into the 4-byte boot mouse report.
//
// Report layout (4 bytes):
//
//	Byte 0: Button bitfield (bits 0-4, bits 5-7 padding)
//	Byte 1: X (int8)
//	Byte 2: Y (int8)
//	Byte 3: Wheel (int8)
func (m MouseReport) BuildReport() []byte {
	return []byte{m.Buttons & 0x1F, byte(m.X), byte(m.Y), byte(m.Wheel)}
}

// MarshalBinary encodes m in the boot report layout.
func (m *MouseReport) MarshalBinary() ([]byte, error) {
	return m.BuildReport(), nil
}

// UnmarshalBinary decodes a 4-byte boot mouse report.
func (m *MouseReport) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return io.ErrUnexpectedEOF
	}
	m.Buttons = data[0]
	m.X = int8(data[1])
	m.Y = int8(data[2])
	m.Wheel = int8(data[3])
	return nil
}
