package sim

import "github.com/Alia5/chordkb/hid"

type typed struct {
	code  hid.Keycode
	shift bool
}

var charFor = func() map[typed]byte {
	m := make(map[typed]byte)
	for c := 0; c < 128; c++ {
		code := hid.CharToHID(byte(c))
		if code == hid.KeyNone {
			continue
		}
		k := typed{code: code, shift: hid.NeedsShift(byte(c))}
		if _, ok := m[k]; !ok {
			m[k] = byte(c)
		}
	}
	return m
}()

// Host plays the computer on the other end of the USB cable: it turns the
// keyboard reports it receives into text.
type Host struct {
	prev  hid.KeyboardReport
	text  []byte
	limit int
}

// NewHost returns a Host keeping the last limit bytes of text (0 keeps all).
func NewHost(limit int) *Host {
	return &Host{limit: limit}
}

// Receive processes one keyboard report. Keys are typed when they appear;
// rollover reports are ignored.
func (h *Host) Receive(r hid.KeyboardReport) {
	if r.IsRollover() {
		return
	}
	shift := r.Modifier&(hid.ModLeftShift|hid.ModRightShift) != 0
	for _, k := range r.Keys {
		if k == hid.KeyNone || h.prev.Contains(k) {
			continue
		}
		if k == hid.KeyBackspace {
			if n := len(h.text); n > 0 {
				h.text = h.text[:n-1]
			}
			continue
		}
		if c, ok := charFor[typed{code: k, shift: shift}]; ok {
			h.text = append(h.text, c)
		}
	}
	if h.limit > 0 && len(h.text) > h.limit {
		h.text = append(h.text[:0], h.text[len(h.text)-h.limit:]...)
	}
	h.prev = r
}

// Text returns everything typed so far.
func (h *Host) Text() string { return string(h.text) }
