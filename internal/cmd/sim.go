package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/Alia5/chordkb/internal/configpaths"
	"github.com/Alia5/chordkb/internal/log"
	"github.com/Alia5/chordkb/internal/sim"
)

// Sim runs a keyboard in the terminal, or headless from a script.
type Sim struct {
	Device   `embed:""`
	Tick     time.Duration `help:"Matrix scan interval" default:"2ms"`
	Debounce int           `help:"Debounce window in scans" default:"3"`
	Hold     time.Duration `help:"How long a terminal key press keeps the key closed" default:"60ms"`
	Script   string        `help:"Run this script headless instead of the terminal UI; '-' reads stdin"`
	Wav      string        `help:"Write everything the buzzer played to this WAV file on exit" type:"path"`
	NoSave   bool          `help:"Do not write the storage image back"`
}

// Run is called by Kong when the sim command is executed.
func (c *Sim) Run(logger *slog.Logger, reports log.ReportLogger, logOpts log.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := c.Script == "" &&
		term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		// the screen belongs to the UI
		logOpts.Quiet = true
		quiet, closers, err := log.SetupLogger(logOpts)
		if err != nil {
			return err
		}
		defer func() {
			for _, cl := range closers {
				_ = cl.Close()
			}
		}()
		logger = quiet
	}

	k, err := c.open(logger)
	if err != nil {
		return err
	}
	imagePath := ""
	if !c.NoSave {
		if err := configpaths.EnsureDir(k.path); err != nil {
			return err
		}
		imagePath = k.path
	}
	s, err := sim.New(sim.Options{
		Board:          k.board,
		Memory:         k.mem,
		ImagePath:      imagePath,
		TickInterval:   c.Tick,
		DebounceWindow: c.Debounce,
		Logger:         logger,
		Reports:        reports,
	})
	if err != nil {
		return err
	}

	if interactive {
		err = c.runUI(ctx, s)
	} else {
		err = c.runScript(s, os.Stdout)
	}
	if err == nil {
		err = s.Save()
	}
	if c.Wav != "" {
		err = errors.Join(err, s.WriteWAV(c.Wav))
	}
	return err
}

func (c *Sim) runUI(ctx context.Context, s *sim.Sim) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	return sim.NewUI(s, screen, c.Hold).Run(ctx)
}

func (c *Sim) runScript(s *sim.Sim, out io.Writer) error {
	var r io.Reader = os.Stdin
	if c.Script != "" && c.Script != "-" {
		f, err := os.Open(c.Script)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	steps, err := sim.ParseScript(r, s.Board())
	if err != nil {
		return err
	}
	if err := s.RunScript(steps); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, s.Text())
	return err
}
