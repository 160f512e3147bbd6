package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/matrix"
)

// Sink receives the reports the keyboard sends to its host.
type Sink interface {
	SendKeyboard(r hid.KeyboardReport) error
	SendMouse(r hid.MouseReport) error
}

// Observer is implemented by sinks that want to look at the dispatcher after
// every tick. It is called on the goroutine driving the dispatcher.
type Observer interface {
	Observe(d *Dispatcher)
}

// FillKeyboardReport builds the keyboard report for the current state.
func (d *Dispatcher) FillKeyboardReport(r *hid.KeyboardReport) {
	*r = hid.KeyboardReport{}
	switch d.state {
	case Normal:
		d.keys.FillKeyboardReport(r)
		d.programs.AppendKeyboardReport(r)
	case Printing:
		d.printer.FillKeyboardReport(r)
	case MacroRecord:
		// recorded through the change hook, passed through to the host
		d.keys.FillKeyboardReport(r)
	case MacroPlay, MergingMacroPlay:
		if d.state == MergingMacroPlay {
			d.keys.FillKeyboardReport(r)
		}
		if !d.macros.FillNextReport(r) {
			d.wait(Normal)
		}
	}
}

// FillMouseReport builds the mouse report for the current state.
func (d *Dispatcher) FillMouseReport(r *hid.MouseReport) {
	*r = hid.MouseReport{}
	switch d.state {
	case Normal:
		d.keys.FillMouseReport(r)
		d.programs.AppendMouseReport(r)
	case MacroRecord:
		d.keys.FillMouseReport(r)
	}
}

// Emitter fills reports after each tick and passes on the ones that changed.
// Mouse reports carrying movement are always sent.
type Emitter struct {
	sink  Sink
	kbd   hid.KeyboardReport
	mouse hid.MouseReport
	sent  bool
}

// NewEmitter returns an Emitter sending to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit fills both reports from d and sends them if needed.
func (e *Emitter) Emit(d *Dispatcher) error {
	var kbd hid.KeyboardReport
	d.FillKeyboardReport(&kbd)
	if !e.sent || kbd != e.kbd {
		if err := e.sink.SendKeyboard(kbd); err != nil {
			return err
		}
		e.kbd = kbd
	}

	var mouse hid.MouseReport
	d.FillMouseReport(&mouse)
	moving := mouse.X != 0 || mouse.Y != 0 || mouse.Wheel != 0
	if !e.sent || mouse != e.mouse || moving {
		if err := e.sink.SendMouse(mouse); err != nil {
			return err
		}
		e.mouse = mouse
	}
	e.sent = true

	if o, ok := e.sink.(Observer); ok {
		o.Observe(d)
	}
	return nil
}

// Run ticks the keyboard every TickInterval until ctx is done, emitting
// reports to sink. It returns nil when ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, src matrix.Source, sink Sink) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	em := NewEmitter(sink)
	start := time.Now()
	d.logger.Debug("Dispatcher running", "interval", d.interval)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case t := <-ticker.C:
			d.Tick(uint32(t.Sub(start).Milliseconds()), src)
			if err := em.Emit(d); err != nil {
				return err
			}
		}
	}
}
