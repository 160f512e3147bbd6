package sim_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/internal/sim"
	"github.com/Alia5/chordkb/storage"
)

func newSim(t *testing.T, o sim.Options) *sim.Sim {
	t.Helper()
	s, err := sim.New(o)
	require.NoError(t, err)
	return s
}

func runScript(t *testing.T, s *sim.Sim, src string) {
	t.Helper()
	steps, err := sim.ParseScript(strings.NewReader(src), s.Board())
	require.NoError(t, err)
	require.NoError(t, s.RunScript(steps))
}

func TestHostDecodesReports(t *testing.T) {
	h := sim.NewHost(0)
	shiftH, _ := hid.TypeChar('H')
	i, _ := hid.TypeChar('i')
	var rollover hid.KeyboardReport
	rollover.Rollover()

	for _, r := range []hid.KeyboardReport{
		shiftH, shiftH, {}, i, {},
		rollover, {},
		{Keys: [6]hid.Keycode{hid.KeyX}}, {},
		{Keys: [6]hid.Keycode{hid.KeyBackspace}}, {},
	} {
		h.Receive(r)
	}
	assert.Equal(t, "Hi", h.Text())
}

func TestHostLimit(t *testing.T) {
	h := sim.NewHost(3)
	for _, r := range hid.TypeString("abcde") {
		h.Receive(r)
	}
	assert.Equal(t, "cde", h.Text())
}

func TestScriptTypes(t *testing.T) {
	s := newSim(t, sim.Options{})
	runScript(t, s, `
# greet
type Hi!
tap Enter
wait 10ms
`)
	assert.Equal(t, "Hi!\n", s.Text())
	assert.Equal(t, dispatcher.Normal, s.View().State)
}

func TestScriptRemap(t *testing.T) {
	s := newSim(t, sim.Options{DebounceWindow: 2})
	runScript(t, s, `
tap Program R
tap A
tap B
tap Program R
type b
`)
	assert.Equal(t, "a", s.Text())
	assert.Equal(t, "A", s.View().Names[board.Letter('B')])
}

func TestScriptHeldChord(t *testing.T) {
	s := newSim(t, sim.Options{DebounceWindow: 2})
	runScript(t, s, "press LeftShift\ntap #4\nrelease all")
	assert.Equal(t, "A", s.Text())
}

func TestRebootSavesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.cbor")
	s := newSim(t, sim.Options{ImagePath: path, DebounceWindow: 2})
	runScript(t, s, "tap Program Z\ntap Program B")

	mem, name, err := storage.LoadImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, "default", name)

	again := newSim(t, sim.Options{Memory: mem})
	assert.True(t, again.Dispatcher().Config().Flags().KeySound)
}

func TestWriteWAV(t *testing.T) {
	s := newSim(t, sim.Options{DebounceWindow: 2})
	runScript(t, s, "tap Program Z\nwait 200ms")
	require.NotEmpty(t, s.Buzzes())

	path := filepath.Join(t.TempDir(), "buzz.wav")
	require.NoError(t, s.WriteWAV(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	var on bool
	for _, b := range s.Buzzes() {
		on = on || b.Tone == buzzer.OnTone
	}
	assert.True(t, on)
}

func TestParseScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown instruction", src: "jump A"},
		{name: "unknown key", src: "press Hyper"},
		{name: "missing keys", src: "tap"},
		{name: "bad physical key", src: "press #200"},
		{name: "bad duration", src: "wait soon"},
		{name: "untypeable", src: "type caf\xe9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sim.ParseScript(strings.NewReader(tc.src), board.Default())
			assert.ErrorIs(t, err, sim.ErrScript)
		})
	}
}

func TestParseKey(t *testing.T) {
	b := board.Default()
	tests := []struct {
		name string
		tok  string
		want uint8
	}{
		{name: "physical number", tok: "#7", want: 7},
		{name: "program", tok: "Program", want: board.KeyProgram},
		{name: "letter", tok: "q", want: board.Letter('Q')},
		{name: "digit", tok: "1", want: board.KeyDigit1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := sim.ParseKey(tc.tok, b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p)
		})
	}
}

func TestUI(t *testing.T) {
	s := newSim(t, sim.Options{DebounceWindow: 2, TickInterval: time.Millisecond})
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()
	screen.SetSize(100, 30)

	ui := sim.NewUI(s, screen, 20*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- ui.Run(context.Background()) }()

	screen.InjectKey(tcell.KeyRune, 'k', tcell.ModNone)
	assert.Eventually(t, func() bool { return s.Text() == "k" }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		cells, w, _ := screen.GetContents()
		var top strings.Builder
		for _, c := range cells[:w] {
			if len(c.Runes) > 0 {
				top.WriteRune(c.Runes[0])
			}
		}
		return strings.HasPrefix(top.String(), "chordkb default")
	}, 2*time.Second, 5*time.Millisecond)

	screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("UI did not stop")
	}
}
