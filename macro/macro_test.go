package macro_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/chord"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/macro"
	"github.com/Alia5/chordkb/storage"
)

type rig struct {
	mem    *storage.Memory
	data   *storage.Region
	index  *chord.Index
	engine *macro.Engine
}

func newRig(t *testing.T, dataSize int64) *rig {
	t.Helper()
	const entries = 8
	mem := storage.NewMemory(int(dataSize) + entries*chord.EntrySize)
	data, err := storage.NewRegion(mem, 0, dataSize)
	require.NoError(t, err)
	idx, err := storage.NewRegion(mem, dataSize, entries*chord.EntrySize)
	require.NoError(t, err)
	r := &rig{mem: mem, data: data, index: chord.NewIndex(idx, nil)}
	require.NoError(t, r.index.Load())
	r.engine = macro.New(data, r.index, nil)
	require.NoError(t, r.engine.Load())
	return r
}

func (r *rig) record(t *testing.T, c chord.Chord, codes ...hid.Keycode) {
	t.Helper()
	require.NoError(t, r.engine.Start(c))
	for _, h := range codes {
		require.NoError(t, r.engine.Append(h))
	}
	require.NoError(t, r.engine.Commit())
}

func TestRecordAndPlay(t *testing.T) {
	r := newRig(t, 64)
	trigger := chord.Single(4)
	r.record(t, trigger, hid.KeyLeftShift, hid.KeyA, hid.KeyA, hid.KeyLeftShift)

	e, ok := r.index.Lookup(trigger)
	require.True(t, ok)
	assert.Equal(t, chord.Macro(0), e.Payload)
	assert.Equal(t, int64(6), r.engine.Used())

	shift := uint8(1 << (hid.KeyLeftShift - hid.KeyLeftCtrl))
	want := []hid.KeyboardReport{
		{Modifier: shift},
		{Modifier: shift, Keys: [6]hid.Keycode{hid.KeyA}},
		{Modifier: shift},
		{},
		{},
	}
	require.NoError(t, r.engine.StartPlayback(e.Payload.Value))
	for i, w := range want {
		var rep hid.KeyboardReport
		require.True(t, r.engine.FillNextReport(&rep), "report %d", i)
		assert.Equal(t, w, rep, "report %d", i)
	}
	var rep hid.KeyboardReport
	assert.False(t, r.engine.FillNextReport(&rep))
	assert.False(t, r.engine.Playing())
}

func TestPlaybackMergesLiveKeys(t *testing.T) {
	r := newRig(t, 16)
	r.record(t, chord.Single(9), hid.KeyB)
	require.NoError(t, r.engine.StartPlayback(0))

	rep := hid.KeyboardReport{Modifier: 1}
	require.True(t, r.engine.FillNextReport(&rep))
	assert.Equal(t, hid.KeyboardReport{Modifier: 1, Keys: [6]hid.Keycode{hid.KeyB}}, rep)
}

func TestRerecordCompacts(t *testing.T) {
	r := newRig(t, 64)
	x := chord.Single(4)
	y := chord.Chord{5, 6, hid.NoKey, hid.NoKey}
	r.record(t, x, hid.KeyA, hid.KeyA, hid.KeyB)
	r.record(t, y, hid.KeyC, hid.KeyC)
	assert.Equal(t, int64(5+4), r.engine.Used())

	r.record(t, x, hid.KeyD)
	assert.Equal(t, int64(4+3), r.engine.Used())

	ey, ok := r.index.Lookup(y)
	require.True(t, ok)
	assert.Equal(t, chord.Macro(0), ey.Payload)
	codes, err := r.engine.Codes(ey.Payload.Value)
	require.NoError(t, err)
	assert.Equal(t, []hid.Keycode{hid.KeyC, hid.KeyC}, codes)

	ex, ok := r.index.Lookup(x)
	require.True(t, ok)
	assert.Equal(t, chord.Macro(4), ex.Payload)
	codes, err = r.engine.Codes(ex.Payload.Value)
	require.NoError(t, err)
	assert.Equal(t, []hid.Keycode{hid.KeyD}, codes)

	// a fresh engine finds the same end of data
	again := macro.New(r.data, r.index, nil)
	require.NoError(t, again.Load())
	assert.Equal(t, r.engine.Used(), again.Used())
}

func TestAbort(t *testing.T) {
	r := newRig(t, 32)
	require.NoError(t, r.engine.Start(chord.Single(4)))
	require.NoError(t, r.engine.Append(hid.KeyA))
	r.engine.Abort()

	assert.False(t, r.engine.Recording())
	assert.Equal(t, 0, r.index.Len())
	assert.Equal(t, int64(0), r.engine.Used())
	assert.ErrorIs(t, r.engine.Append(hid.KeyA), macro.ErrNotRecording)
	assert.ErrorIs(t, r.engine.Commit(), macro.ErrNotRecording)

	require.NoError(t, r.engine.Load())
	assert.Equal(t, int64(0), r.engine.Used())
}

func TestStorageFull(t *testing.T) {
	r := newRig(t, 8)
	require.NoError(t, r.engine.Start(chord.Single(4)))
	for i := 0; i < 6; i++ {
		require.NoError(t, r.engine.Append(hid.KeyA))
	}
	assert.ErrorIs(t, r.engine.Append(hid.KeyA), macro.ErrFull)
	require.NoError(t, r.engine.Commit())

	assert.ErrorIs(t, r.engine.Start(chord.Single(5)), macro.ErrFull)
}

func TestRemoveAndReset(t *testing.T) {
	r := newRig(t, 32)
	r.record(t, chord.Single(4), hid.KeyA, hid.KeyA)
	r.record(t, chord.Single(5), hid.KeyB, hid.KeyB)
	_, err := r.index.Create(chord.Single(6), chord.Program(2))
	require.NoError(t, err)

	assert.ErrorIs(t, r.engine.Remove(chord.Single(6)), macro.ErrNotMacro)
	assert.ErrorIs(t, r.engine.Remove(chord.Single(7)), chord.ErrNotFound)
	require.NoError(t, r.engine.Remove(chord.Single(4)))
	e, ok := r.index.Lookup(chord.Single(5))
	require.True(t, ok)
	assert.Equal(t, chord.Macro(0), e.Payload)

	require.NoError(t, r.engine.Reset())
	assert.Equal(t, int64(0), r.engine.Used())
	require.Equal(t, 1, r.index.Len())
	_, ok = r.index.Lookup(chord.Single(6))
	assert.True(t, ok)
}

func TestStartPlaybackRejectsBadOffset(t *testing.T) {
	r := newRig(t, 16)
	assert.Error(t, r.engine.StartPlayback(0))
	r.record(t, chord.Single(4), hid.KeyA)
	assert.Error(t, r.engine.StartPlayback(1))
	assert.NoError(t, r.engine.StartPlayback(0))
}

func TestAbortKeepsExistingBinding(t *testing.T) {
	tests := []struct {
		name  string
		bind  func(t *testing.T, r *rig, c chord.Chord)
		abort func(t *testing.T, r *rig)
	}{
		{
			name: "macro",
			bind: func(t *testing.T, r *rig, c chord.Chord) {
				r.record(t, c, hid.KeyA, hid.KeyA)
			},
			abort: func(t *testing.T, r *rig) { r.engine.Abort() },
		},
		{
			name: "program",
			bind: func(t *testing.T, r *rig, c chord.Chord) {
				_, err := r.index.Create(c, chord.Program(2))
				require.NoError(t, err)
			},
			abort: func(t *testing.T, r *rig) { r.engine.Abort() },
		},
		{
			name: "macro when storage fills",
			bind: func(t *testing.T, r *rig, c chord.Chord) {
				r.record(t, c, hid.KeyA, hid.KeyA)
			},
			abort: func(t *testing.T, r *rig) {
				var err error
				for err == nil {
					err = r.engine.Append(hid.KeyB)
				}
				require.ErrorIs(t, err, macro.ErrFull)
				r.engine.Abort()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 16)
			trigger := chord.Single(4)
			tt.bind(t, r, trigger)
			before, ok := r.index.Lookup(trigger)
			require.True(t, ok)
			used := r.engine.Used()

			require.NoError(t, r.engine.Start(trigger))
			require.NoError(t, r.engine.Append(hid.KeyC))
			tt.abort(t, r)

			after, ok := r.index.Lookup(trigger)
			require.True(t, ok)
			assert.Equal(t, before, after)
			assert.Equal(t, 1, r.index.Len())
			assert.Equal(t, used, r.engine.Used())
			if before.Payload.Kind == chord.KindMacro {
				codes, err := r.engine.Codes(after.Payload.Value)
				require.NoError(t, err)
				assert.Equal(t, []hid.Keycode{hid.KeyA, hid.KeyA}, codes)
			}

			require.NoError(t, r.engine.Load())
			assert.Equal(t, used, r.engine.Used())
		})
	}
}

func TestRecordReplacesProgram(t *testing.T) {
	r := newRig(t, 32)
	trigger := chord.Single(9)
	_, err := r.index.Create(trigger, chord.Program(2))
	require.NoError(t, err)
	r.record(t, chord.Single(4), hid.KeyA, hid.KeyA)

	r.record(t, trigger, hid.KeyB, hid.KeyB)
	e, ok := r.index.Lookup(trigger)
	require.True(t, ok)
	assert.Equal(t, chord.Macro(4), e.Payload)
	assert.Equal(t, 2, r.index.Len())
	codes, err := r.engine.Codes(e.Payload.Value)
	require.NoError(t, err)
	assert.Equal(t, []hid.Keycode{hid.KeyB, hid.KeyB}, codes)
}

func TestReplayIsRepeatable(t *testing.T) {
	r := newRig(t, 32)
	r.record(t, chord.Single(4), hid.KeyLeftCtrl, hid.KeyC, hid.KeyC, hid.KeyLeftCtrl, hid.KeyV, hid.KeyV)

	play := func() []hid.KeyboardReport {
		require.NoError(t, r.engine.StartPlayback(0))
		var out []hid.KeyboardReport
		for {
			var rep hid.KeyboardReport
			if !r.engine.FillNextReport(&rep) {
				return out
			}
			out = append(out, rep)
		}
	}
	first := play()
	require.Len(t, first, 7)
	assert.Equal(t, first, play())
}

func TestCommitIntoFullIndexClearsData(t *testing.T) {
	r := newRig(t, 32)
	require.NoError(t, r.engine.Start(chord.Single(4)))
	require.NoError(t, r.engine.Append(hid.KeyA))
	for k := uint8(10); r.index.Len() < r.index.Cap(); k++ {
		_, err := r.index.Create(chord.Single(k), chord.Program(1))
		require.NoError(t, err)
	}

	assert.ErrorIs(t, r.engine.Commit(), chord.ErrFull)
	assert.False(t, r.engine.Recording())
	_, ok := r.index.Lookup(chord.Single(4))
	assert.False(t, ok)
	assert.Equal(t, int64(0), r.engine.Used())
	require.NoError(t, r.engine.Load())
	assert.Equal(t, int64(0), r.engine.Used())
}
