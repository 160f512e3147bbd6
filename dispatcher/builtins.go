package dispatcher

import (
	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/keystate"
)

// builtin handles the program key chords. It reports whether the pressed
// keys were one.
func (d *Dispatcher) builtin(count int) bool {
	switch count {
	case 2:
		return d.builtinPair()
	case 3:
		return d.builtinTriple()
	}
	return false
}

func (d *Dispatcher) builtinPair() bool {
	k := d.board.Keys
	keys := d.keys.Keys(keystate.Physical)
	if len(keys) != 2 {
		return false
	}
	other := keys[0]
	if other == k.Program {
		other = keys[1]
	}

	switch other {
	case k.MacroRecord:
		if d.cfg.Flags().MacrosDisabled {
			d.buzz.Start(200, buzzer.FailureTone)
			d.wait(Normal)
			return true
		}
		d.captured, d.lastCount = nil, 0
		d.wait(MacroRecordTrigger)
	case k.Remap:
		d.wait(ProgrammingSrc)
	case k.Reboot:
		if err := d.reboot(); err != nil {
			d.fail(err)
			return true
		}
		d.wait(Normal)
	case k.ToggleBuzzer:
		flags := d.cfg.Flags()
		flags.KeySound = !flags.KeySound
		if !d.saveFlags(flags) {
			return true
		}
		d.toggleTone(flags.KeySound)
		d.wait(Normal)
	case k.ToggleMacros:
		flags := d.cfg.Flags()
		flags.MacrosDisabled = !flags.MacrosDisabled
		if !d.saveFlags(flags) {
			return true
		}
		d.toggleTone(!flags.MacrosDisabled)
		d.wait(Normal)
	case k.TogglePrograms:
		flags := d.cfg.Flags()
		flags.ProgramsDisabled = !flags.ProgramsDisabled
		if !d.saveFlags(flags) {
			return true
		}
		if flags.ProgramsDisabled {
			d.programs.Reset()
		}
		d.toggleTone(!flags.ProgramsDisabled)
		d.wait(Normal)
	case k.ResetConfig:
		if err := d.cfg.ResetDefaults(); err != nil {
			d.fail(err)
			return true
		}
		d.wait(Normal)
	default:
		return false
	}
	return true
}

func (d *Dispatcher) saveFlags(f config.Flags) bool {
	if err := d.cfg.SaveFlags(f); err != nil {
		d.fail(err)
		return false
	}
	return true
}

func (d *Dispatcher) toggleTone(on bool) {
	tone := buzzer.OffTone
	if on {
		tone = buzzer.OnTone
	}
	d.buzz.Start(100, tone)
}

// builtinTriple handles the full reset chord and the layout commands
// program + save/load/delete + digit.
func (d *Dispatcher) builtinTriple() bool {
	k := d.board.Keys
	if d.keys.CheckKeys(keystate.Physical, []uint8{k.ResetConfig, k.ResetFully}) {
		if err := d.cfg.ResetFully(); err != nil {
			d.fail(err)
			return true
		}
		d.wait(Normal)
		return true
	}

	op, slot := board.NoKey, -1
	for _, p := range d.keys.Keys(keystate.Physical) {
		switch {
		case p == k.Save || p == k.Load || p == k.Delete:
			op = p
		case p >= k.Digit1 && int(p) < int(k.Digit1)+board.LayoutSlots:
			slot = int(p - k.Digit1)
		}
	}
	if op == board.NoKey || slot < 0 {
		return false
	}

	var err error
	switch op {
	case k.Save:
		err = d.cfg.SaveLayout(slot)
	case k.Load:
		err = d.cfg.LoadLayout(slot)
	default:
		err = d.cfg.DeleteLayout(slot)
	}
	if err != nil {
		d.fail(err)
		return true
	}
	d.logger.Info("Layout command done", "slot", slot)
	d.buzz.Start(200, buzzer.SuccessTone)
	d.wait(Normal)
	return true
}
