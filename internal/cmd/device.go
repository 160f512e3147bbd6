package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/dispatcher"
	"github.com/Alia5/chordkb/internal/configpaths"
	"github.com/Alia5/chordkb/storage"
)

// Device selects the board and the storage image a command works on.
type Device struct {
	Board string `help:"Board definition file (YAML or TOML); the built-in board when empty" type:"path" env:"CHORDKB_BOARD"`
	Image string `help:"Storage image file; eeprom.cbor in the config directory when empty" type:"path" env:"CHORDKB_IMAGE"`
	Size  int    `help:"Storage size in bytes of a new image" default:"4096"`
}

// keyboard is an opened device.
type keyboard struct {
	board *board.Board
	mem   *storage.Memory
	path  string
}

func (d *Device) imagePath() (string, error) {
	if d.Image != "" {
		return d.Image, nil
	}
	return configpaths.DefaultImagePath()
}

func (d *Device) loadBoard() (*board.Board, error) {
	if d.Board == "" {
		return board.Default(), nil
	}
	return board.Load(d.Board)
}

// open loads the board and the storage image, starting from erased storage
// when the image does not exist yet.
func (d *Device) open(logger *slog.Logger) (*keyboard, error) {
	b, err := d.loadBoard()
	if err != nil {
		return nil, err
	}
	path, err := d.imagePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path: %w", err)
	}
	mem, name, err := storage.LoadImageFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("Creating new storage image", "path", path, "size", d.Size)
		mem = storage.NewMemory(d.Size)
	case err != nil:
		return nil, err
	case name != "" && name != b.Name:
		return nil, fmt.Errorf("image %s belongs to board %q, not %q", path, name, b.Name)
	}
	return &keyboard{board: b, mem: mem, path: path}, nil
}

// keyboard opens the device and builds its keyboard core.
func (d *Device) keyboard(logger *slog.Logger) (*keyboard, *dispatcher.Dispatcher, error) {
	k, err := d.open(logger)
	if err != nil {
		return nil, nil, err
	}
	disp, err := k.dispatcher(logger)
	if err != nil {
		return nil, nil, err
	}
	return k, disp, nil
}

// dispatcher builds the keyboard core over the image, initializing storage
// if needed.
func (k *keyboard) dispatcher(logger *slog.Logger) (*dispatcher.Dispatcher, error) {
	return dispatcher.New(k.board, k.mem, dispatcher.Options{Logger: logger})
}

func (k *keyboard) save(logger *slog.Logger) error {
	if err := configpaths.EnsureDir(k.path); err != nil {
		return err
	}
	if err := storage.SaveImageFile(k.path, k.mem, k.board.Name); err != nil {
		return err
	}
	logger.Debug("Saved storage image", "path", k.path)
	return nil
}
