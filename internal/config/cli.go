package config

import "github.com/Alia5/chordkb/internal/cmd"

// CLI is the root command line of chordkb.
type CLI struct {
	Config string `help:"Path to a JSON, YAML or TOML configuration file" env:"CHORDKB_CONFIG" type:"path"`
	Log    Log    `embed:"" prefix:"log."`

	Sim     cmd.Sim            `cmd:"" help:"Run a simulated keyboard in the terminal"`
	Program cmd.ProgramCommand `cmd:"" help:"Assemble, bind and delete stored programs"`
	Image   cmd.ImageCommand   `cmd:"" help:"Inspect storage images"`
	Board   cmd.BoardCommand   `cmd:"" help:"Board definitions"`

	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
}

// Log configures the process logger.
type Log struct {
	Level      string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"CHORDKB_LOG_LEVEL"`
	File       string `help:"Also write logs to this file" type:"path" env:"CHORDKB_LOG_FILE"`
	JSON       bool   `name:"json" help:"Log as JSON"`
	ReportFile string `help:"Write every HID report sent to the host to this file" type:"path"`
}
