package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/config"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/storage"
)

func newStore(t *testing.T) (*config.Store, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory(storage.DefaultSize)
	l, err := storage.NewLayout(mem, storage.DefaultSizes)
	require.NoError(t, err)
	s, err := config.New(board.Default(), l, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init())
	return s, mem
}

func TestInitResetsErasedStorage(t *testing.T) {
	mem := storage.NewMemory(storage.DefaultSize)
	l, err := storage.NewLayout(mem, storage.DefaultSizes)
	require.NoError(t, err)
	s, err := config.New(board.Default(), l, nil)
	require.NoError(t, err)

	hooks := 0
	s.OnReset(func() error { hooks++; return nil })
	require.NoError(t, s.Init())

	assert.Equal(t, 1, hooks)
	assert.Equal(t, byte(config.Sentinel), mem.Snapshot()[0])
	assert.Equal(t, board.Default().Defaults, s.Mapping())
	assert.Equal(t, config.Flags{}, s.Flags())

	// a second store over the same memory keeps its state
	require.NoError(t, s.SaveDefinition(5, hid.KeyQ))
	s2, err := config.New(board.Default(), l, nil)
	require.NoError(t, err)
	s2.OnReset(func() error { hooks++; return nil })
	require.NoError(t, s2.Init())
	assert.Equal(t, 1, hooks)
	assert.Equal(t, hid.KeyQ, s2.Definition(5))
}

func TestFlags(t *testing.T) {
	s, _ := newStore(t)
	f := config.Flags{KeySound: true, ProgramsDisabled: true}
	require.NoError(t, s.SaveFlags(f))
	assert.Equal(t, f, s.Flags())
}

func TestDefinitions(t *testing.T) {
	s, _ := newStore(t)
	a := board.Letter('A')
	assert.Equal(t, hid.KeyA, s.Definition(a))

	require.NoError(t, s.SaveDefinition(a, hid.KeyB))
	assert.Equal(t, hid.KeyB, s.Definition(a))
	assert.Equal(t, hid.KeyA, s.DefaultDefinition(a))
	assert.Equal(t, hid.NoKey, s.Definition(250))

	require.NoError(t, s.ResetDefaults())
	assert.Equal(t, hid.KeyA, s.Definition(a))
}

func TestLayoutRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.SaveDefinition(board.Letter('A'), hid.KeyZ))
	require.NoError(t, s.SaveDefinition(board.Letter('Z'), hid.KeyA))
	require.NoError(t, s.SaveDefinition(100, hid.KeyF5))
	saved := s.Mapping()

	require.NoError(t, s.SaveLayout(3))
	require.NoError(t, s.ResetDefaults())
	assert.Equal(t, board.Default().Defaults, s.Mapping())

	require.NoError(t, s.LoadLayout(3))
	assert.Equal(t, saved, s.Mapping())
}

func TestLayoutErrors(t *testing.T) {
	s, _ := newStore(t)
	assert.ErrorIs(t, s.SaveLayout(0), config.ErrNoChange)
	assert.ErrorIs(t, s.LoadLayout(0), config.ErrNoLayout)
	assert.ErrorIs(t, s.DeleteLayout(0), config.ErrNoLayout)
	assert.ErrorIs(t, s.SaveLayout(board.LayoutSlots), config.ErrNoLayout)

	// remap more keys than the saved layout area holds
	for l := 0; l < 240; l++ {
		require.NoError(t, s.SaveDefinition(uint8(l), hid.KeyKp0))
	}
	require.NoError(t, s.SaveLayout(0))
	require.NoError(t, s.ResetDefaults())
	for c := byte('B'); c <= 'R'; c++ {
		require.NoError(t, s.SaveDefinition(board.Letter(c), hid.KeyKp1))
	}
	assert.ErrorIs(t, s.SaveLayout(1), config.ErrNoSpace)
	assert.False(t, s.LayoutUsed(1))
	assert.True(t, s.LayoutUsed(0))
}

func TestDeleteLayoutPacks(t *testing.T) {
	s, _ := newStore(t)
	save := func(slot int, keys ...uint8) map[uint8]hid.Keycode {
		require.NoError(t, s.ResetDefaults())
		for _, k := range keys {
			require.NoError(t, s.SaveDefinition(k, hid.KeyF12))
		}
		require.NoError(t, s.SaveLayout(slot))
		d, err := s.Layout(slot)
		require.NoError(t, err)
		return d
	}
	save(1, 4, 5, 6)
	second := save(2, 7, 8)
	third := save(7, 9)

	require.NoError(t, s.DeleteLayout(1))
	assert.False(t, s.LayoutUsed(1))

	got, err := s.Layout(2)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	got, err = s.Layout(7)
	require.NoError(t, err)
	assert.Equal(t, third, got)

	// re-saving a slot replaces its contents
	again := save(2, 10, 11, 12, 13)
	got, err = s.Layout(2)
	require.NoError(t, err)
	assert.Equal(t, again, got)
	assert.Len(t, got, 4)
}

func TestPrograms(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Program(0)
	assert.ErrorIs(t, err, config.ErrNoProgram)

	require.NoError(t, s.SaveProgram(0, []byte{1, 2, 3}))
	require.NoError(t, s.SaveProgram(1, []byte{4, 5}))
	require.NoError(t, s.SaveProgram(2, []byte{6}))

	require.NoError(t, s.DeleteProgram(0))
	all, err := s.Programs()
	require.NoError(t, err)
	assert.Nil(t, all[0])
	assert.Equal(t, []byte{4, 5}, all[1])
	assert.Equal(t, []byte{6}, all[2])

	require.NoError(t, s.SaveProgram(1, []byte{7, 7, 7, 7}))
	code, err := s.Program(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7, 7}, code)
	code, err = s.Program(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, code)

	assert.ErrorIs(t, s.SaveProgram(3, make([]byte, s.ProgramCapacity())), config.ErrNoSpace)
	assert.ErrorIs(t, s.DeleteProgram(config.ProgramCount), config.ErrNoProgram)

	require.NoError(t, s.ResetFully())
	_, err = s.Program(1)
	assert.ErrorIs(t, err, config.ErrNoProgram)
}

func TestStorageFailurePropagates(t *testing.T) {
	s, mem := newStore(t)
	mem.FailAfter = 1
	assert.ErrorIs(t, s.SaveDefinition(4, hid.KeyB), storage.ErrIO)
	assert.Equal(t, hid.KeyA, s.Definition(4))
}
