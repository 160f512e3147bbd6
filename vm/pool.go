package vm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/hid"
)

var (
	ErrAlreadyRunning = errors.New("program already running")
	ErrNoProgram      = errors.New("no program in slot")
)

// Pool owns one Instance per program slot and schedules them round robin.
type Pool struct {
	keys      Keys
	buzz      buzzer.Buzzer
	logger    *slog.Logger
	instances []*Instance
}

// NewPool returns an empty pool. Call Load before starting programs.
func NewPool(keys Keys, bz buzzer.Buzzer, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{keys: keys, buzz: bz, logger: logger}
}

// Load replaces every instance with the given program images. Empty or
// malformed images leave their slot in NoProgram.
func (p *Pool) Load(images [][]byte) {
	p.instances = make([]*Instance, len(images))
	for i, img := range images {
		var prog *Program
		if len(img) > 0 {
			var err error
			if prog, err = Parse(img); err != nil {
				p.logger.Warn("Ignoring program", "slot", i, "error", err)
				prog = nil
			}
		}
		p.instances[i] = NewInstance(prog)
	}
	p.logger.Debug("Loaded programs", "slots", len(images))
}

// Len is the number of slots.
func (p *Pool) Len() int { return len(p.instances) }

// Instance returns slot i.
func (p *Pool) Instance(i int) *Instance { return p.instances[i] }

// Start launches slot i with the physical key that triggered it.
func (p *Pool) Start(i int, trigger uint8) error {
	if i < 0 || i >= len(p.instances) {
		return fmt.Errorf("%w: slot %d", ErrNoProgram, i)
	}
	in := p.instances[i]
	if err := in.Start(trigger); err != nil {
		if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNoProgram) {
			return err
		}
		p.logger.Warn("Program crashed on entry", "slot", i, "error", err)
		return err
	}
	p.logger.Debug("Started program", "slot", i, "trigger", trigger)
	return nil
}

// Running reports whether slot i is active.
func (p *Pool) Running(i int) bool {
	return i >= 0 && i < len(p.instances) && p.instances[i].state.Active()
}

// StepAll gives every active instance one scheduling turn. A turn ends when
// the instance stops or suspends, or after StepBudget instructions, in which
// case it resumes on the next call.
func (p *Pool) StepAll(now uint32) {
	h := host{keys: p.keys, buzz: p.buzz, now: now}
	for i, in := range p.instances {
		if !in.state.Active() {
			continue
		}
		in.step(h)
		switch {
		case in.state == Crashed:
			p.logger.Warn("Program crashed", "slot", i, "fault", in.fault.Error())
		case in.state == Stopped:
			p.logger.Debug("Program exited", "slot", i)
		}
	}
}

// AppendKeyboardReport adds the keys held by programs to r and wakes the
// instances waiting for a keyboard report.
func (p *Pool) AppendKeyboardReport(r *hid.KeyboardReport) {
	for _, in := range p.instances {
		if !in.state.Active() {
			continue
		}
		r.Merge(in.keys)
		if in.state == WaitReport {
			in.state = Running
		}
	}
}

// AppendMouseReport adds program mouse movement and buttons to r and wakes
// the instances waiting for a mouse report. Movement is consumed.
func (p *Pool) AppendMouseReport(r *hid.MouseReport) {
	for _, in := range p.instances {
		if !in.state.Active() {
			continue
		}
		r.Merge(in.mouse)
		in.mouse.X, in.mouse.Y, in.mouse.Wheel = 0, 0, 0
		if in.state == WaitMouseReport {
			in.state = Running
		}
	}
}

// Reset stops every instance.
func (p *Pool) Reset() {
	for _, in := range p.instances {
		in.Stop()
	}
}
