package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Alia5/chordkb/hid"
)

const (
	cellWidth   = 9
	redrawEvery = 33 * time.Millisecond
	// DefaultHold is how long a terminal key press keeps the matrix key
	// closed; terminals report no key releases.
	DefaultHold = 60 * time.Millisecond
)

var (
	styleTitle   = tcell.StyleDefault.Bold(true)
	styleHelp    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	stylePressed = tcell.StyleDefault.Reverse(true)
	styleSticky  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Reverse(true)
	styleText    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
)

// UI is the interactive terminal front end of a Sim.
type UI struct {
	sim    *Sim
	screen tcell.Screen
	hold   time.Duration

	sticky  map[uint8]bool
	latched map[uint8]bool
	pending map[uint8]time.Time
	latch   bool
	status  string
}

// NewUI returns a UI drawing on screen, which must already be initialized.
func NewUI(s *Sim, screen tcell.Screen, hold time.Duration) *UI {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &UI{
		sim:     s,
		screen:  screen,
		hold:    hold,
		sticky:  map[uint8]bool{},
		latched: map[uint8]bool{},
		pending: map[uint8]time.Time{},
	}
}

// Run drives the keyboard and the screen until Escape is pressed or ctx is
// done.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- u.sim.Run(ctx) }()

	events := make(chan tcell.Event, 64)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(redrawEvery)
	defer ticker.Stop()
	u.draw()
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return <-errCh
		case ev, ok := <-events:
			if !ok || u.handle(ev) {
				cancel()
				return <-errCh
			}
		case now := <-ticker.C:
			u.releaseDue(now)
			u.draw()
		}
	}
}

// handle processes one terminal event and reports whether to quit.
func (u *UI) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		u.screen.Sync()
	case *tcell.EventKey:
		return u.handleKey(ev)
	}
	return false
}

var specialKeys = map[tcell.Key]hid.Keycode{
	tcell.KeyEnter:      hid.KeyEnter,
	tcell.KeyTab:        hid.KeyTab,
	tcell.KeyBackspace:  hid.KeyBackspace,
	tcell.KeyBackspace2: hid.KeyBackspace,
	tcell.KeyDelete:     hid.KeyDelete,
	tcell.KeyUp:         hid.KeyUp,
	tcell.KeyDown:       hid.KeyDown,
	tcell.KeyLeft:       hid.KeyLeft,
	tcell.KeyRight:      hid.KeyRight,
	tcell.KeyHome:       hid.KeyHome,
	tcell.KeyEnd:        hid.KeyEnd,
	tcell.KeyPgUp:       hid.KeyPageUp,
	tcell.KeyPgDn:       hid.KeyPageDown,
}

var stickyKeys = map[tcell.Key]hid.Keycode{
	tcell.KeyF1: hid.Program,
	tcell.KeyF2: hid.KeypadShift,
	tcell.KeyF3: hid.FunctionShift,
	tcell.KeyF4: hid.MacroShift,
}

func (u *UI) handleKey(ev *tcell.EventKey) bool {
	b := u.sim.Board()
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyF5:
		u.latch = !u.latch
		if !u.latch {
			for p := range u.latched {
				u.sim.Matrix().Release(p)
			}
			clear(u.latched)
		}
		return false
	case tcell.KeyF10:
		u.status = "image saved"
		if err := u.sim.Save(); err != nil {
			u.status = err.Error()
		}
		return false
	case tcell.KeyRune:
		r := ev.Rune()
		if r >= 128 {
			return false
		}
		keys, err := charKeys(byte(r), b)
		if err != nil {
			u.status = err.Error()
			return false
		}
		u.press(keys...)
		return false
	}

	if h, ok := stickyKeys[ev.Key()]; ok {
		p, ok := b.PhysicalFor(h)
		if !ok {
			u.status = "no " + hid.Name(h) + " key on this board"
			return false
		}
		u.sticky[p] = !u.sticky[p]
		if u.sticky[p] {
			u.sim.Matrix().Press(p)
		} else {
			delete(u.sticky, p)
			u.sim.Matrix().Release(p)
		}
		return false
	}
	if h, ok := specialKeys[ev.Key()]; ok {
		if p, ok := b.PhysicalFor(h); ok {
			u.press(p)
		}
	}
	return false
}

func (u *UI) press(keys ...uint8) {
	u.sim.Matrix().Press(keys...)
	for _, p := range keys {
		if u.latch {
			u.latched[p] = true
			continue
		}
		u.pending[p] = time.Now().Add(u.hold)
	}
}

func (u *UI) releaseDue(now time.Time) {
	for p, at := range u.pending {
		if now.Before(at) {
			continue
		}
		delete(u.pending, p)
		if !u.sticky[p] && !u.latched[p] {
			u.sim.Matrix().Release(p)
		}
	}
}

func (u *UI) put(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		u.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (u *UI) draw() {
	v := u.sim.View()
	b := u.sim.Board()
	w, h := u.screen.Size()
	u.screen.Clear()

	u.put(0, 0, fmt.Sprintf("chordkb %s  state: %s  layer: %d  tone: %d", b.Name, v.State, v.Layer, v.Tone), styleTitle)
	latch := "off"
	if u.latch {
		latch = "on"
	}
	u.put(0, 1, "F1 program  F2 keypad  F3 function  F4 macro  F5 latch ("+latch+")  F10 save  Esc quit", styleHelp)

	y := 3
	for _, row := range b.Matrix {
		for c, p := range row {
			if int(p) >= len(v.Names) {
				continue
			}
			style := tcell.StyleDefault
			switch {
			case u.sticky[p]:
				style = styleSticky
			case u.latched[p], !u.pending[p].IsZero():
				style = stylePressed
			}
			name := v.Names[p]
			if len(name) > cellWidth-1 {
				name = name[:cellWidth-1]
			}
			u.put(c*cellWidth, y, name, style)
		}
		y++
	}

	y++
	progs := make([]string, len(v.Programs))
	for i, s := range v.Programs {
		progs[i] = s.String()
	}
	u.put(0, y, "programs: "+strings.Join(progs, " "), tcell.StyleDefault)
	y++
	u.put(0, y, "report:   "+describe(v.Keyboard), tcell.StyleDefault)
	y++
	if u.status != "" {
		u.put(0, y, u.status, styleHelp)
	}
	y += 2

	for _, line := range tail(wrap(v.Text, w), h-y) {
		u.put(0, y, line, styleText)
		y++
	}
	u.screen.Show()
}

func describe(r hid.KeyboardReport) string {
	var parts []string
	for _, k := range r.Pressed() {
		parts = append(parts, hid.Name(k))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "+")
}

// wrap splits text into lines no wider than w.
func wrap(text string, w int) []string {
	if w <= 0 {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\t", "    ")
		for len(line) > w {
			out = append(out, line[:w])
			line = line[w:]
		}
		out = append(out, line)
	}
	return out
}

func tail(lines []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}
