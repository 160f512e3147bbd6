// Package printing types short status messages to the host by emitting key
// reports, one press or release per report.
package printing

import (
	"github.com/Alia5/chordkb/hid"
)

// Printer holds the message being typed.
type Printer struct {
	buf     []byte
	pos     int
	pressed bool
}

// SetMessage replaces the pending output with s.
func (p *Printer) SetMessage(s string) {
	p.buf = append(p.buf[:0], s...)
	p.pos = 0
	p.pressed = false
}

// Empty reports whether everything has been typed and released.
func (p *Printer) Empty() bool { return p.pos >= len(p.buf) }

// FillKeyboardReport writes the next report of the message into r:
// characters are pressed and released on alternate calls.
func (p *Printer) FillKeyboardReport(r *hid.KeyboardReport) {
	if p.Empty() {
		*r = hid.KeyboardReport{}
		return
	}
	press, release := hid.TypeChar(p.buf[p.pos])
	if !p.pressed {
		*r = press
		p.pressed = true
		return
	}
	*r = release
	p.pressed = false
	p.pos++
}
