package cmd

import (
	"os"

	"github.com/Alia5/chordkb/board"
)

// BoardCommand groups board definition subcommands.
type BoardCommand struct {
	Dump BoardDump `cmd:"" help:"Print a board definition, the built-in one by default"`
}

// BoardDump writes a board definition file.
type BoardDump struct {
	File   string `help:"Board definition to read instead of the built-in board" type:"existingfile"`
	Format string `help:"Output format" enum:"yaml,toml" default:"yaml"`
	Output string `help:"Destination file; stdout when empty" type:"path"`
}

// Run is called by Kong when the board dump command is executed.
func (c *BoardDump) Run() error {
	b := board.Default()
	if c.File != "" {
		var err error
		if b, err = board.Load(c.File); err != nil {
			return err
		}
	}
	data, err := b.Marshal(c.Format)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(c.Output, data, 0o644)
}
