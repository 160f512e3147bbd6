package board

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/Alia5/chordkb/hid"
)

// File is the on-disk form of a Board. Key codes are written by name.
type File struct {
	Name      string      `yaml:"name" toml:"name"`
	Rows      int         `yaml:"rows" toml:"rows"`
	Cols      int         `yaml:"cols" toml:"cols"`
	Matrix    [][]int     `yaml:"matrix" toml:"matrix"`
	LayerSize int         `yaml:"layerSize" toml:"layerSize"`
	Keymap    [][]string  `yaml:"keymap" toml:"keymap"`
	Keys      BuiltinKeys `yaml:"keys" toml:"keys"`
}

// Load reads a board from a YAML or TOML file, chosen by extension.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(data, format)
}

// Parse decodes a board file in the given format ("yaml" or "toml").
func Parse(data []byte, format string) (*Board, error) {
	var f File
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse board yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse board toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported board format %q", format)
	}
	return f.Board()
}

// Board converts the file form into a validated Board.
func (f *File) Board() (*Board, error) {
	b := &Board{
		Name:      f.Name,
		Rows:      f.Rows,
		Cols:      f.Cols,
		LayerSize: f.LayerSize,
		Layers:    len(f.Keymap),
		Keys:      f.Keys,
	}
	b.Matrix = make([][]uint8, len(f.Matrix))
	for r, row := range f.Matrix {
		b.Matrix[r] = make([]uint8, len(row))
		for c, p := range row {
			if p < 0 || p > 255 {
				return nil, fmt.Errorf("%w: matrix value %d at %d/%d", ErrInvalidBoard, p, r, c)
			}
			b.Matrix[r][c] = uint8(p)
		}
	}
	for l, names := range f.Keymap {
		if len(names) != f.LayerSize {
			return nil, fmt.Errorf("%w: layer %d has %d keys, want %d", ErrInvalidBoard, l, len(names), f.LayerSize)
		}
		for i, n := range names {
			k, ok := hid.KeyByName(n)
			if !ok {
				return nil, fmt.Errorf("%w: layer %d key %d: unknown key name %q", ErrInvalidBoard, l, i, n)
			}
			b.Defaults = append(b.Defaults, k)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ToFile converts b into its on-disk form.
func (b *Board) ToFile() *File {
	f := &File{
		Name:      b.Name,
		Rows:      b.Rows,
		Cols:      b.Cols,
		LayerSize: b.LayerSize,
		Keys:      b.Keys,
	}
	for _, row := range b.Matrix {
		out := make([]int, len(row))
		for c, p := range row {
			out[c] = int(p)
		}
		f.Matrix = append(f.Matrix, out)
	}
	for l := 0; l < b.Layers; l++ {
		names := make([]string, b.LayerSize)
		for i := range names {
			names[i] = hid.Name(b.Defaults[l*b.LayerSize+i])
		}
		f.Keymap = append(f.Keymap, names)
	}
	return f
}

// Marshal encodes b as "yaml" or "toml".
func (b *Board) Marshal(format string) ([]byte, error) {
	f := b.ToFile()
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(f)
	case "toml":
		return toml.Marshal(f)
	default:
		return nil, fmt.Errorf("unsupported board format %q", format)
	}
}
