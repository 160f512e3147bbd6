package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	yaml "gopkg.in/yaml.v3"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/storage"
	"github.com/Alia5/chordkb/vm"
)

// ImageCommand groups storage image subcommands.
type ImageCommand struct {
	Inspect ImageInspect `cmd:"" help:"Describe the contents of a storage image"`
}

// ImageInspect dumps an image as YAML.
type ImageInspect struct {
	File  string `arg:"" type:"existingfile" help:"Storage image"`
	Board string `help:"Board definition file; the built-in board when empty" type:"path"`
}

// Remap is one logical key whose HID code differs from the board default.
type Remap struct {
	Key     string `yaml:"key"`
	Logical uint8  `yaml:"logical"`
	Default string `yaml:"default"`
	Current string `yaml:"current"`
}

// Trigger is one chord index entry.
type Trigger struct {
	Keys    []string `yaml:"keys"`
	Kind    string   `yaml:"kind"`
	Slot    *uint16  `yaml:"slot,omitempty"`
	Offset  *uint16  `yaml:"offset,omitempty"`
	Macro   []string `yaml:"macro,omitempty"`
	Problem string   `yaml:"problem,omitempty"`
}

// ProgramSlot describes one stored program.
type ProgramSlot struct {
	Slot    int    `yaml:"slot"`
	Bytes   int    `yaml:"bytes"`
	Globals uint8  `yaml:"globals,omitempty"`
	Methods int    `yaml:"methods,omitempty"`
	Problem string `yaml:"problem,omitempty"`
}

// Inspection is the YAML document written by image inspect.
type Inspection struct {
	Board      string           `yaml:"board"`
	Flags      config.Flags     `yaml:"flags"`
	Remaps     []Remap          `yaml:"remaps,omitempty"`
	Layouts    map[int][]Remap  `yaml:"layouts,omitempty"`
	Triggers   []Trigger        `yaml:"triggers,omitempty"`
	Programs   []ProgramSlot    `yaml:"programs,omitempty"`
	MacroUsage map[string]int64 `yaml:"macroStorage"`
}

// Run is called by Kong when the image inspect command is executed.
func (c *ImageInspect) Run(logger *slog.Logger) error {
	b := board.Default()
	if c.Board != "" {
		var err error
		if b, err = board.Load(c.Board); err != nil {
			return err
		}
	}
	mem, name, err := storage.LoadImageFile(c.File)
	if err != nil {
		return err
	}
	if name != "" && name != b.Name {
		logger.Warn("Image was saved for another board", "image", name, "board", b.Name)
	}
	d, err := dispatcher.New(b, mem, dispatcher.Options{Logger: logger})
	if err != nil {
		return err
	}
	ins, err := Inspect(d)
	if err != nil {
		return err
	}
	return writeYAML(os.Stdout, ins)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// keyName names logical key l by its board default, with the layer when it
// is not the first.
func keyName(b *board.Board, l uint8) string {
	name := hid.Name(b.Defaults[int(l)%b.LayerSize])
	if layer := int(l) / b.LayerSize; layer > 0 {
		return fmt.Sprintf("%s@%d", name, layer)
	}
	return name
}

func remaps(b *board.Board, diff map[uint8]hid.Keycode) []Remap {
	out := make([]Remap, 0, len(diff))
	for l, h := range diff {
		if int(l) >= len(b.Defaults) {
			continue
		}
		out = append(out, Remap{
			Key:     keyName(b, l),
			Logical: l,
			Default: hid.Name(b.Defaults[l]),
			Current: hid.Name(h),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Logical < out[j].Logical })
	return out
}

// Inspect describes everything stored for d.
func Inspect(d *dispatcher.Dispatcher) (*Inspection, error) {
	b := d.Board()
	cfg := d.Config()
	ins := &Inspection{
		Board: b.Name,
		Flags: cfg.Flags(),
		MacroUsage: map[string]int64{
			"used": d.Macros().Used(),
			"free": d.Macros().Free(),
		},
	}

	current := map[uint8]hid.Keycode{}
	for l, h := range cfg.Mapping() {
		if h != b.Defaults[l] {
			current[uint8(l)] = h
		}
	}
	ins.Remaps = remaps(b, current)

	for i := 0; i < board.LayoutSlots; i++ {
		if !cfg.LayoutUsed(i) {
			continue
		}
		diff, err := cfg.Layout(i)
		if err != nil {
			return nil, fmt.Errorf("layout %d: %w", i, err)
		}
		if ins.Layouts == nil {
			ins.Layouts = map[int][]Remap{}
		}
		ins.Layouts[i] = remaps(b, diff)
	}

	for _, e := range d.Index().Entries() {
		t := Trigger{Kind: e.Payload.Kind.String()}
		for _, l := range e.Chord.Keys() {
			t.Keys = append(t.Keys, keyName(b, l))
		}
		v := e.Payload.Value
		if e.Payload.Kind == chord.KindMacro {
			t.Offset = &v
			codes, err := d.Macros().Codes(v)
			if err != nil {
				t.Problem = err.Error()
			}
			for _, h := range codes {
				t.Macro = append(t.Macro, hid.Name(h))
			}
		} else {
			t.Slot = &v
		}
		ins.Triggers = append(ins.Triggers, t)
	}

	for i := 0; i < config.ProgramCount; i++ {
		code, err := cfg.Program(i)
		if errors.Is(err, config.ErrNoProgram) {
			continue
		}
		if err != nil {
			return nil, err
		}
		slot := ProgramSlot{Slot: i, Bytes: len(code)}
		if p, err := vm.Parse(code); err != nil {
			slot.Problem = err.Error()
		} else {
			slot.Globals = p.NGlobals
			slot.Methods = len(p.Methods)
		}
		ins.Programs = append(ins.Programs, slot)
	}
	return ins, nil
}
