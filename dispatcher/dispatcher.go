// Package dispatcher is the top-level keyboard state machine. Every tick it
// scans the matrix, updates the key state and then lets the current state
// react: normal typing with chord triggers, key remapping, macro recording
// and playback, or typing out a status message.
package dispatcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/keystate"
	"github.com/Alia5/chordkb/macro"
	"github.com/Alia5/chordkb/matrix"
	"github.com/Alia5/chordkb/printing"
	"github.com/Alia5/chordkb/storage"
	"github.com/Alia5/chordkb/vm"
)

// State is a dispatcher mode.
type State int

const (
	Normal State = iota
	Waiting
	Printing
	ProgrammingSrc
	ProgrammingDst
	MacroRecordTrigger
	MacroRecord
	MacroPlay
	MergingMacroPlay
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Waiting:
		return "waiting"
	case Printing:
		return "printing"
	case ProgrammingSrc:
		return "remap source"
	case ProgrammingDst:
		return "remap destination"
	case MacroRecordTrigger:
		return "macro trigger"
	case MacroRecord:
		return "macro record"
	case MacroPlay:
		return "macro play"
	case MergingMacroPlay:
		return "merging macro play"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// System performs the hardware actions the firmware cannot do by itself.
type System interface {
	// Reboot restarts the device. When it returns nil the dispatcher
	// reloads its state from storage like a freshly booted keyboard.
	Reboot() error
}

// DefaultTickInterval is the scan period.
const DefaultTickInterval = 2 * time.Millisecond

// Options tune a Dispatcher. Zero values pick defaults.
type Options struct {
	Sizes          storage.Sizes
	DebounceWindow int
	TickInterval   time.Duration
	Buzzer         buzzer.Buzzer
	// System handles reboot requests. Without one the dispatcher only
	// reloads its state from storage.
	System System
	Logger *slog.Logger
}

// Dispatcher owns every component of one keyboard.
type Dispatcher struct {
	board    *board.Board
	cfg      *config.Store
	keys     *keystate.State
	debounce *matrix.Debouncer
	buzz     buzzer.Buzzer
	index    *chord.Index
	macros   *macro.Engine
	programs *vm.Pool
	printer  printing.Printer
	sys      System
	logger   *slog.Logger
	interval time.Duration

	state State
	next  State

	raw     matrix.Bitset
	last    uint32
	started bool

	remapSource hid.Keycode
	captured    []uint8
	lastCount   int
	hooked      bool
}

// New builds a keyboard for b over backend, initializing storage when it
// has never been written.
func New(b *board.Board, backend storage.Backend, opts Options) (*Dispatcher, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if opts.Sizes == (storage.Sizes{}) {
		opts.Sizes = storage.DefaultSizes
	}
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = matrix.DefaultWindow
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Buzzer == nil {
		opts.Buzzer = buzzer.Silent{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	layout, err := storage.NewLayout(backend, opts.Sizes)
	if err != nil {
		return nil, err
	}
	cfg, err := config.New(b, layout, opts.Logger)
	if err != nil {
		return nil, err
	}
	deb, err := matrix.NewDebouncer(b.LayerSize, opts.DebounceWindow)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		board:    b,
		cfg:      cfg,
		debounce: deb,
		buzz:     opts.Buzzer,
		sys:      opts.System,
		logger:   opts.Logger,
		interval: opts.TickInterval,
		raw:      matrix.NewBitset(b.LayerSize),
	}
	d.index = chord.NewIndex(layout.Chords, opts.Logger)
	d.macros = macro.New(layout.Macros, d.index, opts.Logger)
	d.keys = keystate.New(b, cfg, opts.Buzzer, opts.Logger)
	d.programs = vm.NewPool(d.keys, opts.Buzzer, opts.Logger)

	cfg.OnReset(d.index.Reset)
	cfg.OnReset(d.macros.Reset)
	cfg.OnReset(func() error {
		d.programs.Load(make([][]byte, config.ProgramCount))
		return nil
	})

	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// load reads every persisted component and returns to the normal state.
func (d *Dispatcher) load() error {
	if err := d.cfg.Init(); err != nil {
		return fmt.Errorf("init config: %w", err)
	}
	if err := d.index.Load(); err != nil {
		return err
	}
	if err := d.macros.Load(); err != nil {
		return err
	}
	if err := d.ReloadPrograms(); err != nil {
		return err
	}
	d.keys.Reset()
	d.keys.RegisterChangeHook(nil)
	d.hooked = false
	d.state, d.next = Normal, Normal
	return nil
}

// ReloadPrograms stops every program and reloads the slots from storage.
func (d *Dispatcher) ReloadPrograms() error {
	progs, err := d.cfg.Programs()
	if err != nil {
		return err
	}
	d.programs.Reset()
	d.programs.Load(progs[:])
	return nil
}

// Board returns the board definition.
func (d *Dispatcher) Board() *board.Board { return d.board }

// Config returns the configuration store.
func (d *Dispatcher) Config() *config.Store { return d.cfg }

// Keys returns the key state.
func (d *Dispatcher) Keys() *keystate.State { return d.keys }

// Index returns the chord trigger index.
func (d *Dispatcher) Index() *chord.Index { return d.index }

// Macros returns the macro engine.
func (d *Dispatcher) Macros() *macro.Engine { return d.macros }

// Programs returns the program pool.
func (d *Dispatcher) Programs() *vm.Pool { return d.programs }

// DebounceWindow is the number of scans a key change must hold for.
func (d *Dispatcher) DebounceWindow() int { return d.debounce.Window() }

// State returns the current state.
func (d *Dispatcher) State() State { return d.state }

// Next returns the state Waiting and Printing will continue with.
func (d *Dispatcher) Next() State { return d.next }

// Tick runs one scan pass at time now (milliseconds since start).
func (d *Dispatcher) Tick(now uint32, src matrix.Source) {
	if d.started {
		d.buzz.Update(now - d.last)
	}
	d.started, d.last = true, now

	d.raw = matrix.Scan(src, d.board, d.raw)
	stable, changed := d.debounce.Push(d.raw)
	d.keys.Update(stable, changed)

	switch d.state {
	case Normal:
		d.handleNormal()
	case Waiting:
		if d.keys.KeyPressCount() == 0 {
			d.state, d.next = d.next, Normal
		}
	case Printing:
		if d.printer.Empty() {
			d.state = Waiting
		}
	case ProgrammingSrc, ProgrammingDst:
		d.handleProgramming()
	case MacroRecordTrigger:
		d.handleRecordTrigger()
	case MacroRecord:
		d.handleRecord()
	case MacroPlay, MergingMacroPlay:
		// driven by FillKeyboardReport
	}

	if d.state == Normal {
		d.programs.StepAll(now)
	}
}

func (d *Dispatcher) wait(next State) {
	d.state, d.next = Waiting, next
}

// fail sounds the failure tone and types err.
func (d *Dispatcher) fail(err error) {
	d.logger.Warn("Command failed", "error", err)
	d.buzz.Start(200, buzzer.FailureTone)
	d.printer.SetMessage(err.Error())
	d.state, d.next = Printing, Normal
}

func (d *Dispatcher) handleNormal() {
	count := d.keys.KeyPressCount()
	if count >= 2 && d.keys.CheckKey(d.board.Keys.Program, keystate.Physical) {
		if d.builtin(count) {
			return
		}
	}
	if count >= 1 && count <= chord.MaxKeys {
		d.trigger()
	}
}

// trigger starts whatever the pressed chord is bound to.
func (d *Dispatcher) trigger() {
	tr, ok := d.index.Resolve(d.keys.Keys(keystate.Logical), d.keys)
	if !ok {
		return
	}
	flags := d.cfg.Flags()
	p := tr.Entry.Payload
	switch p.Kind {
	case chord.KindProgram:
		if flags.ProgramsDisabled || d.programs.Running(int(p.Value)) {
			return
		}
		phys := tr.MainKey % uint8(d.board.LayerSize)
		if err := d.programs.Start(int(p.Value), phys); err != nil {
			d.logger.Debug("Program not started", "slot", p.Value, "error", err)
			return
		}
		d.hideTrigger(tr)
	case chord.KindMacro:
		if flags.MacrosDisabled {
			return
		}
		if err := d.macros.StartPlayback(p.Value); err != nil {
			d.logger.Warn("Macro playback failed", "error", err)
			d.buzz.Start(200, buzzer.FailureTone)
			return
		}
		d.hideTrigger(tr)
		d.state = MacroPlay
		if !tr.Exact {
			d.state = MergingMacroPlay
		}
	}
}

// hideTrigger keeps the trigger keys out of reports and out of further chord
// matching until they are released. Keys that only reached the entry through
// the single-key fallback stay live.
func (d *Dispatcher) hideTrigger(tr chord.Trigger) {
	if !tr.Exact {
		d.keys.Hide(tr.MainKey)
		return
	}
	for _, l := range tr.Entry.Chord.Keys() {
		d.keys.Hide(l)
	}
}

func (d *Dispatcher) handleProgramming() {
	k := d.board.Keys
	if d.keys.CheckKeys(keystate.Physical, []uint8{k.Program, k.Remap}) {
		d.wait(Normal)
		return
	}
	if d.keys.KeyPressCount() != 1 {
		return
	}
	l := d.keys.Keys(keystate.Logical)[0]
	def := d.cfg.DefaultDefinition(l)
	if hid.NoRemap(def) {
		return
	}
	if d.state == ProgrammingSrc {
		d.remapSource = def
		d.wait(ProgrammingDst)
		return
	}
	if err := d.cfg.SaveDefinition(l, d.remapSource); err != nil {
		d.fail(err)
		return
	}
	d.wait(ProgrammingSrc)
}

func (d *Dispatcher) handleRecordTrigger() {
	k := d.board.Keys
	switch {
	case d.keys.CheckKeys(keystate.Physical, []uint8{k.Program, k.MacroRecord}):
		d.lastCount = 0
		d.wait(Normal)
		return
	case d.keys.CheckKey(k.Program, keystate.Physical), d.keys.CheckKey(k.Keypad, keystate.Physical):
		return
	}
	count := d.keys.KeyPressCount()
	if count > chord.MaxKeys {
		d.buzz.Start(200, buzzer.FailureTone)
		d.lastCount = 0
		d.wait(Normal)
		return
	}
	if count >= d.lastCount {
		d.captured = d.keys.Keys(keystate.Logical)
		d.lastCount = count
		return
	}

	d.lastCount = 0
	c, ok := chord.Format(d.captured, d.keys)
	if !ok {
		d.buzz.Start(200, buzzer.FailureTone)
		d.wait(Normal)
		return
	}
	if err := d.macros.Start(c); err != nil {
		d.logger.Warn("Cannot record macro", "trigger", c.String(), "error", err)
		d.buzz.Start(200, buzzer.FailureTone)
		d.wait(Normal)
		return
	}
	d.wait(MacroRecord)
}

func (d *Dispatcher) handleRecord() {
	if !d.hooked {
		d.hooked = true
		d.keys.RegisterChangeHook(keystate.HookFunc(d.recordKey))
	}
	k := d.board.Keys
	if !d.keys.CheckKeys(keystate.Physical, []uint8{k.Program, k.MacroRecord}) {
		return
	}
	d.unhook()
	if err := d.macros.Commit(); err != nil {
		d.fail(err)
		return
	}
	d.wait(Normal)
}

func (d *Dispatcher) unhook() {
	d.hooked = false
	d.keys.RegisterChangeHook(nil)
}

// recordKey is the key change hook installed while recording.
func (d *Dispatcher) recordKey(l uint8, _ bool) {
	k := d.board.Keys
	if d.keys.CheckKey(k.Program, keystate.Physical) || d.keys.CheckKey(k.Keypad, keystate.Physical) {
		return
	}
	h := d.cfg.Definition(l)
	if h == hid.KeyNone || h == hid.NoKey || hid.IsSpecial(h) {
		return
	}
	if err := d.macros.Append(h); err != nil {
		d.unhook()
		d.macros.Abort()
		d.logger.Warn("Macro recording aborted", "error", err)
		d.buzz.Start(200, buzzer.FailureTone)
		d.wait(Normal)
	}
}

// reboot hands over to the System and reloads from storage.
func (d *Dispatcher) reboot() error {
	d.buzz.Start(100, buzzer.DefaultTone)
	if d.sys != nil {
		if err := d.sys.Reboot(); err != nil {
			return err
		}
	}
	d.logger.Info("Rebooting")
	d.macros.Abort()
	d.macros.StopPlayback()
	return d.load()
}
