package storage

// Sizes gives the byte length of each area carved out of a backend.
type Sizes struct {
	Mapping  int64 `yaml:"mapping" toml:"mapping"`
	Layouts  int64 `yaml:"layouts" toml:"layouts"`
	Chords   int64 `yaml:"chords" toml:"chords"`
	Macros   int64 `yaml:"macros" toml:"macros"`
	Programs int64 `yaml:"programs" toml:"programs"`
}

// DefaultSizes fits a board with up to 255 logical keys, 64 chord triggers
// and 1 KiB each of macro and program storage into 4 KiB.
var DefaultSizes = Sizes{
	Mapping:  2 + 256,
	Layouts:  2*10 + 2*256,
	Chords:   6 * 64,
	Macros:   1024,
	Programs: 1024,
}

// DefaultSize is the backend size used when none is configured.
const DefaultSize = 4096

// Total is the number of bytes the layout needs.
func (s Sizes) Total() int64 {
	return s.Mapping + s.Layouts + s.Chords + s.Macros + s.Programs
}

// Layout is a backend split into the firmware's persistent areas, laid out
// back to back in field order.
type Layout struct {
	Mapping  *Region
	Layouts  *Region
	Chords   *Region
	Macros   *Region
	Programs *Region
}

// NewLayout carves b according to s.
func NewLayout(b Backend, s Sizes) (*Layout, error) {
	var (
		l    Layout
		base int64
		err  error
	)
	for _, a := range []struct {
		dst **Region
		n   int64
	}{
		{&l.Mapping, s.Mapping},
		{&l.Layouts, s.Layouts},
		{&l.Chords, s.Chords},
		{&l.Macros, s.Macros},
		{&l.Programs, s.Programs},
	} {
		if *a.dst, err = NewRegion(b, base, a.n); err != nil {
			return nil, err
		}
		base += a.n
	}
	return &l, nil
}
