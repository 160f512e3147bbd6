// Package sim runs a chordkb keyboard on the host: a virtual matrix feeds the
// dispatcher, reports go to an in-process Host, and the storage image is
// kept in a file between runs.
package sim

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/internal/log"
	"github.com/Alia5/chordkb/matrix"
	"github.com/Alia5/chordkb/storage"
	"github.com/Alia5/chordkb/vm"
)

const hostTextLimit = 4096

// Options configure a Sim.
type Options struct {
	Board  *board.Board
	Memory *storage.Memory
	// ImagePath receives the storage image on Save and on reboot. Empty
	// keeps storage in memory only.
	ImagePath      string
	TickInterval   time.Duration
	DebounceWindow int
	Logger         *slog.Logger
	Reports        log.ReportLogger
}

// View is a snapshot of the keyboard taken after a tick.
type View struct {
	State    dispatcher.State
	Layer    uint8
	Names    []string // HID name of every physical key on the active layer
	Keyboard hid.KeyboardReport
	Mouse    hid.MouseReport
	Tone     buzzer.Tone
	Programs []vm.State
	Text     string
	Ticks    uint64
}

// Sim is one simulated keyboard.
type Sim struct {
	board     *board.Board
	mem       *storage.Memory
	imagePath string
	interval  time.Duration
	logger    *slog.Logger
	reports   log.ReportLogger

	mat  *matrix.Virtual
	buzz *buzzer.Tracker
	d    *dispatcher.Dispatcher

	mu   sync.Mutex
	host *Host
	view View

	now     uint32
	emitter *dispatcher.Emitter
}

// New builds a Sim; a nil Memory starts from erased storage.
func New(o Options) (*Sim, error) {
	if o.Board == nil {
		o.Board = board.Default()
	}
	if o.Memory == nil {
		o.Memory = storage.NewMemory(storage.DefaultSize)
	}
	if o.TickInterval == 0 {
		o.TickInterval = dispatcher.DefaultTickInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Reports == nil {
		o.Reports = log.NewReport(nil)
	}
	s := &Sim{
		board:     o.Board,
		mem:       o.Memory,
		imagePath: o.ImagePath,
		interval:  o.TickInterval,
		logger:    o.Logger,
		reports:   o.Reports,
		mat:       matrix.NewVirtual(o.Board),
		buzz:      buzzer.NewTracker(0, nil),
		host:      NewHost(hostTextLimit),
	}
	d, err := dispatcher.New(o.Board, o.Memory, dispatcher.Options{
		DebounceWindow: o.DebounceWindow,
		TickInterval:   o.TickInterval,
		Buzzer:         s.buzz,
		System:         s,
		Logger:         o.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.d = d
	s.emitter = dispatcher.NewEmitter(s)
	return s, nil
}

// Dispatcher returns the simulated keyboard. It must not be used while Run
// is active.
func (s *Sim) Dispatcher() *dispatcher.Dispatcher { return s.d }

// Matrix returns the virtual key matrix; it is safe for concurrent use.
func (s *Sim) Matrix() *matrix.Virtual { return s.mat }

// Board returns the simulated board.
func (s *Sim) Board() *board.Board { return s.board }

// SendKeyboard implements dispatcher.Sink.
func (s *Sim) SendKeyboard(r hid.KeyboardReport) error {
	s.reports.Log("KBD", &r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host.Receive(r)
	s.view.Keyboard = r
	s.view.Text = s.host.Text()
	return nil
}

// SendMouse implements dispatcher.Sink.
func (s *Sim) SendMouse(r hid.MouseReport) error {
	s.reports.Log("MOUSE", &r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Mouse = r
	return nil
}

// Observe implements dispatcher.Observer.
func (s *Sim) Observe(d *dispatcher.Dispatcher) {
	names := make([]string, s.board.LayerSize)
	for p := range names {
		names[p] = hid.Name(d.Keys().HID(uint8(p)))
	}
	progs := make([]vm.State, d.Programs().Len())
	for i := range progs {
		progs[i] = d.Programs().Instance(i).State()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.State = d.State()
	s.view.Layer = d.Keys().LayerID()
	s.view.Names = names
	s.view.Programs = progs
	s.view.Tone = s.buzz.Current()
	s.view.Ticks++
}

// View returns the latest snapshot.
func (s *Sim) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Text returns what the host has received so far.
func (s *Sim) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host.Text()
}

// Buzzes returns every tone the buzzer played.
func (s *Sim) Buzzes() []buzzer.Buzz { return s.buzz.History() }

// Reboot implements dispatcher.System by persisting storage, as a power
// cycle would keep it.
func (s *Sim) Reboot() error {
	s.logger.Info("Reboot requested")
	return s.Save()
}

// Save writes the storage image when an image path is configured.
func (s *Sim) Save() error {
	if s.imagePath == "" {
		return nil
	}
	if err := storage.SaveImageFile(s.imagePath, s.mem, s.board.Name); err != nil {
		return err
	}
	s.logger.Debug("Saved storage image", "path", s.imagePath)
	return nil
}

// WriteWAV renders the buzzer history to a WAV file.
func (s *Sim) WriteWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := buzzer.WriteWAV(f, s.Buzzes()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Run drives the keyboard in real time until ctx is done.
func (s *Sim) Run(ctx context.Context) error {
	return s.d.Run(ctx, s.mat, s)
}

// Step advances virtual time by one tick interval. It must not be mixed
// with Run.
func (s *Sim) Step() error {
	s.now += uint32(s.interval.Milliseconds())
	s.d.Tick(s.now, s.mat)
	return s.emitter.Emit(s.d)
}
