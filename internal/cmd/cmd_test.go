package cmd_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/internal/cmd"
	"github.com/Alia5/chordkb/storage"
	"github.com/Alia5/chordkb/vm"
)

const exitProgram = ".method main 0 0\nvmexit\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInspect(t *testing.T) {
	d, err := dispatcher.New(board.Default(), storage.NewMemory(storage.DefaultSize), dispatcher.Options{Logger: quietLogger()})
	require.NoError(t, err)
	cfg := d.Config()

	a := board.Letter('A')
	require.NoError(t, cfg.SaveDefinition(a, hid.KeyB))
	require.NoError(t, cfg.SaveLayout(1))

	require.NoError(t, d.Macros().Start(chord.Single(board.Letter('G'))))
	require.NoError(t, d.Macros().Append(hid.KeyA))
	require.NoError(t, d.Macros().Append(hid.KeyA))
	require.NoError(t, d.Macros().Commit())

	img, err := vm.Assemble(strings.NewReader(exitProgram))
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProgram(3, img))
	_, err = d.Index().Create(chord.Single(board.Letter('H')), chord.Program(3))
	require.NoError(t, err)

	ins, err := cmd.Inspect(d)
	require.NoError(t, err)

	assert.Equal(t, "default", ins.Board)
	want := []cmd.Remap{{Key: "A", Logical: a, Default: "A", Current: "B"}}
	assert.Equal(t, want, ins.Remaps)
	assert.Equal(t, map[int][]cmd.Remap{1: want}, ins.Layouts)

	require.Len(t, ins.Triggers, 2)
	for _, tr := range ins.Triggers {
		switch tr.Kind {
		case chord.KindMacro.String():
			assert.Equal(t, []string{"G"}, tr.Keys)
			assert.Equal(t, []string{"A", "A"}, tr.Macro)
			require.NotNil(t, tr.Offset)
			assert.Nil(t, tr.Slot)
		default:
			assert.Equal(t, []string{"H"}, tr.Keys)
			require.NotNil(t, tr.Slot)
			assert.Equal(t, uint16(3), *tr.Slot)
		}
	}

	require.Len(t, ins.Programs, 1)
	assert.Equal(t, 3, ins.Programs[0].Slot)
	assert.Equal(t, len(img), ins.Programs[0].Bytes)
	assert.Equal(t, 1, ins.Programs[0].Methods)
	assert.Empty(t, ins.Programs[0].Problem)

	assert.Equal(t, int64(4), ins.MacroUsage["used"])
}

func TestTemplate(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    map[string]any
		wantErr bool
	}{
		{
			name:    "sim flattens the device flags",
			command: "sim",
			want: map[string]any{
				"board":    "",
				"image":    "",
				"size":     int64(4096),
				"tick":     "2ms",
				"debounce": int64(3),
				"hold":     "60ms",
				"script":   "",
				"wav":      "",
				"no_save":  false,
			},
		},
		{
			name:    "device",
			command: "device",
			want:    map[string]any{"board": "", "image": "", "size": int64(4096)},
		},
		{name: "unknown", command: "server", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cmd.Template(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "sim.yaml")

	c := cmd.ConfigInit{Command: "sim", Format: "yaml", Output: dest}
	require.NoError(t, c.Run())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debounce: 3\n")
	assert.Contains(t, string(data), "tick: 2ms\n")
	assert.Contains(t, string(data), "no_save: false\n")

	assert.Error(t, c.Run())
	c.Force = true
	assert.NoError(t, c.Run())
}

func TestBoardDump(t *testing.T) {
	tests := []struct {
		name   string
		format string
		file   string
	}{
		{name: "yaml", format: "yaml", file: "board.yaml"},
		{name: "toml", format: "toml", file: "board.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), tt.file)
			c := cmd.BoardDump{Format: tt.format, Output: out}
			require.NoError(t, c.Run())

			b, err := board.Load(out)
			require.NoError(t, err)
			def := board.Default()
			assert.Equal(t, def.Name, b.Name)
			assert.Equal(t, def.Defaults, b.Defaults)
			assert.Equal(t, def.Keys, b.Keys)
		})
	}
}

func TestProgramCommands(t *testing.T) {
	dir := t.TempDir()
	dev := cmd.Device{Image: filepath.Join(dir, "state", "eeprom.cbor"), Size: storage.DefaultSize}
	src := filepath.Join(dir, "exit.asm")
	require.NoError(t, os.WriteFile(src, []byte(exitProgram), 0o644))
	logger := quietLogger()

	reopen := func(t *testing.T) *dispatcher.Dispatcher {
		t.Helper()
		mem, name, err := storage.LoadImageFile(dev.Image)
		require.NoError(t, err)
		assert.Equal(t, "default", name)
		d, err := dispatcher.New(board.Default(), mem, dispatcher.Options{Logger: logger})
		require.NoError(t, err)
		return d
	}
	trigger := chord.Single(board.Letter('G'))

	asm := cmd.ProgramAssemble{Device: dev, Source: src, Slot: 2}
	require.NoError(t, asm.Run(logger))
	d := reopen(t)
	code, err := d.Config().Program(2)
	require.NoError(t, err)
	_, err = vm.Parse(code)
	require.NoError(t, err)

	bind := cmd.ProgramBind{Device: dev, Slot: 2, Keys: []string{"g"}}
	require.NoError(t, bind.Run(logger))
	e, ok := reopen(t).Index().Lookup(trigger)
	require.True(t, ok)
	assert.Equal(t, chord.Program(2), e.Payload)

	unbind := cmd.ProgramUnbind{Device: dev, Keys: []string{"G"}}
	require.NoError(t, unbind.Run(logger))
	_, ok = reopen(t).Index().Lookup(trigger)
	assert.False(t, ok)
	assert.ErrorIs(t, unbind.Run(logger), chord.ErrNotFound)

	require.NoError(t, bind.Run(logger))
	del := cmd.ProgramDelete{Device: dev, Slot: 2}
	require.NoError(t, del.Run(logger))
	d = reopen(t)
	_, ok = d.Index().Lookup(trigger)
	assert.False(t, ok)
	_, err = d.Config().Program(2)
	assert.Error(t, err)

	bad := cmd.ProgramBind{Device: dev, Slot: 2, Keys: []string{"G"}, Layer: 9}
	assert.Error(t, bad.Run(logger))
}

func TestAssembleToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "program.bin")
	src := filepath.Join(t.TempDir(), "exit.asm")
	require.NoError(t, os.WriteFile(src, []byte(exitProgram), 0o644))

	asm := cmd.ProgramAssemble{Source: src, Output: out}
	require.NoError(t, asm.Run(quietLogger()))
	img, err := os.ReadFile(out)
	require.NoError(t, err)
	p, err := vm.Parse(img)
	require.NoError(t, err)
	assert.Len(t, p.Methods, 1)
}
