package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/internal/sim"
	"github.com/Alia5/chordkb/vm"
)

// ProgramCommand groups the program slot subcommands.
type ProgramCommand struct {
	Assemble ProgramAssemble `cmd:"" help:"Assemble a program into a slot"`
	Bind     ProgramBind     `cmd:"" help:"Bind a key chord to a program slot"`
	Unbind   ProgramUnbind   `cmd:"" help:"Remove the program or macro bound to a key chord"`
	Delete   ProgramDelete   `cmd:"" help:"Empty a program slot and drop its bindings"`
}

// ProgramAssemble assembles a source file into a program slot of the image.
type ProgramAssemble struct {
	Device `embed:""`
	Source string `arg:"" type:"existingfile" help:"Assembly source file"`
	Slot   int    `help:"Program slot" default:"0"`
	Output string `help:"Write the binary to this file instead of the image" type:"path"`
}

// Run is called by Kong when the program assemble command is executed.
func (c *ProgramAssemble) Run(logger *slog.Logger) error {
	f, err := os.Open(c.Source)
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := vm.Assemble(f)
	if err != nil {
		return err
	}
	p, err := vm.Parse(img)
	if err != nil {
		return err
	}
	logger.Info("Assembled program", "source", c.Source, "bytes", len(img), "methods", len(p.Methods), "globals", p.NGlobals)

	if c.Output != "" {
		return os.WriteFile(c.Output, img, 0o644)
	}
	k, d, err := c.keyboard(logger)
	if err != nil {
		return err
	}
	if err := d.Config().SaveProgram(c.Slot, img); err != nil {
		return fmt.Errorf("store program in slot %d: %w", c.Slot, err)
	}
	return k.save(logger)
}

// parseChord turns key tokens on a layer into a chord.
func parseChord(d *dispatcher.Dispatcher, keys []string, layer int) (chord.Chord, error) {
	b := d.Board()
	if layer < 0 || layer >= b.Layers {
		return chord.Empty, fmt.Errorf("board %s has no layer %d", b.Name, layer)
	}
	logical := make([]uint8, 0, len(keys))
	for _, tok := range keys {
		p, err := sim.ParseKey(tok, b)
		if err != nil {
			return chord.Empty, err
		}
		logical = append(logical, p+uint8(layer*b.LayerSize))
	}
	c, ok := chord.Format(logical, d.Keys())
	if !ok {
		return chord.Empty, fmt.Errorf("%s is not a valid trigger", strings.Join(keys, "+"))
	}
	return c, nil
}

// ProgramBind binds a chord to a program slot.
type ProgramBind struct {
	Device `embed:""`
	Slot   int      `arg:"" help:"Program slot"`
	Keys   []string `arg:"" help:"Trigger keys: HID names of layer 0 keys or physical numbers as #N"`
	Layer  int      `help:"Layer the trigger is typed on" default:"0"`
}

// Run is called by Kong when the program bind command is executed.
func (c *ProgramBind) Run(logger *slog.Logger) error {
	if c.Slot < 0 || c.Slot >= config.ProgramCount {
		return fmt.Errorf("slot %d out of range", c.Slot)
	}
	k, d, err := c.keyboard(logger)
	if err != nil {
		return err
	}
	trigger, err := parseChord(d, c.Keys, c.Layer)
	if err != nil {
		return err
	}
	payload := chord.Program(uint16(c.Slot))
	if e, ok := d.Index().Lookup(trigger); ok {
		if e.Payload.Kind == chord.KindMacro {
			if err := d.Macros().Remove(trigger); err != nil {
				return err
			}
		} else if err := d.Index().Update(trigger, payload); err != nil {
			return err
		}
	}
	if _, ok := d.Index().Lookup(trigger); !ok {
		if _, err := d.Index().Create(trigger, payload); err != nil {
			return err
		}
	}
	logger.Info("Bound program", "slot", c.Slot, "trigger", trigger.String())
	return k.save(logger)
}

// ProgramUnbind removes whatever a chord is bound to.
type ProgramUnbind struct {
	Device `embed:""`
	Keys   []string `arg:"" help:"Trigger keys"`
	Layer  int      `help:"Layer the trigger is typed on" default:"0"`
}

// Run is called by Kong when the program unbind command is executed.
func (c *ProgramUnbind) Run(logger *slog.Logger) error {
	k, d, err := c.keyboard(logger)
	if err != nil {
		return err
	}
	trigger, err := parseChord(d, c.Keys, c.Layer)
	if err != nil {
		return err
	}
	e, ok := d.Index().Lookup(trigger)
	if !ok {
		return fmt.Errorf("%s: %w", trigger, chord.ErrNotFound)
	}
	if e.Payload.Kind == chord.KindMacro {
		err = d.Macros().Remove(trigger)
	} else {
		err = d.Index().Remove(trigger)
	}
	if err != nil {
		return err
	}
	return k.save(logger)
}

// ProgramDelete empties a slot.
type ProgramDelete struct {
	Device `embed:""`
	Slot   int `arg:"" help:"Program slot"`
}

// Run is called by Kong when the program delete command is executed.
func (c *ProgramDelete) Run(logger *slog.Logger) error {
	k, d, err := c.keyboard(logger)
	if err != nil {
		return err
	}
	if err := d.Config().DeleteProgram(c.Slot); err != nil && !errors.Is(err, config.ErrNoProgram) {
		return err
	}
	var bound []chord.Chord
	d.Index().Iterate(func(e chord.Entry) bool {
		if e.Payload == chord.Program(uint16(c.Slot)) {
			bound = append(bound, e.Chord)
		}
		return true
	})
	for _, b := range bound {
		if err := d.Index().Remove(b); err != nil {
			return err
		}
	}
	logger.Info("Deleted program", "slot", c.Slot, "bindings", len(bound))
	return k.save(logger)
}
