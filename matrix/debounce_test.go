package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/board"
	"github.com/Alia5/chordkb/matrix"
)

func raw(keys ...uint8) matrix.Bitset {
	b := matrix.NewBitset(80)
	for _, k := range keys {
		b.Set(k)
	}
	return b
}

func TestDebouncerNeedsFullWindow(t *testing.T) {
	d, err := matrix.NewDebouncer(80, 3)
	require.NoError(t, err)

	stable, changed := d.Push(raw(7))
	assert.False(t, stable.Has(7))
	assert.True(t, changed.Empty())

	stable, _ = d.Push(raw(7))
	assert.False(t, stable.Has(7))

	stable, changed = d.Push(raw(7))
	assert.True(t, stable.Has(7))
	assert.True(t, changed.Has(7))

	// held: no further transitions
	_, changed = d.Push(raw(7))
	assert.True(t, changed.Empty())

	for i := 0; i < 2; i++ {
		stable, _ = d.Push(raw())
		assert.True(t, stable.Has(7), "released after %d samples", i+1)
	}
	stable, changed = d.Push(raw())
	assert.False(t, stable.Has(7))
	assert.True(t, changed.Has(7))
}

func TestDebouncerIgnoresOutliers(t *testing.T) {
	tests := []struct {
		name    string
		samples []bool
	}{
		{name: "single spike", samples: []bool{false, true, false, false, false}},
		{name: "bouncing", samples: []bool{true, false, true, false, true, false, true, false}},
		{name: "two of three", samples: []bool{true, true, false, true, true, false, true, true, false}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := matrix.NewDebouncer(80, 3)
			require.NoError(t, err)
			for i, s := range tc.samples {
				in := raw()
				if s {
					in.Set(12)
				}
				stable, changed := d.Push(in)
				assert.False(t, stable.Has(12), "sample %d", i)
				assert.False(t, changed.Has(12), "sample %d", i)
			}
		})
	}
}

func TestDebouncerSetWindow(t *testing.T) {
	d, err := matrix.NewDebouncer(80, 2)
	require.NoError(t, err)
	d.Push(raw(3))
	stable, _ := d.Push(raw(3))
	require.True(t, stable.Has(3))

	require.NoError(t, d.SetWindow(5))
	assert.Equal(t, 5, d.Window())

	// the refilled window holds the stable set, so the key stays down
	stable, changed := d.Push(raw(3))
	assert.True(t, stable.Has(3))
	assert.True(t, changed.Empty())

	for i := 0; i < 4; i++ {
		stable, _ = d.Push(raw())
		assert.True(t, stable.Has(3))
	}
	stable, _ = d.Push(raw())
	assert.False(t, stable.Has(3))

	assert.Error(t, d.SetWindow(1))
	assert.Error(t, d.SetWindow(16))
	_, err = matrix.NewDebouncer(80, 0)
	assert.Error(t, err)
}

func TestScanVirtual(t *testing.T) {
	b := board.Default()
	v := matrix.NewVirtual(b)
	v.Press(board.KeyProgram, board.Letter('R'), 79)

	got := matrix.Scan(v, b, nil)
	assert.Equal(t, 3, got.Count())

	var keys []uint8
	got.Each(func(k uint8) { keys = append(keys, k) })
	assert.Equal(t, []uint8{board.KeyProgram, board.Letter('R'), 79}, keys)

	v.Release(board.KeyProgram)
	got = matrix.Scan(v, b, got)
	assert.False(t, got.Has(board.KeyProgram))

	v.ReleaseAll()
	assert.True(t, matrix.Scan(v, b, got).Empty())
	assert.False(t, v.SetKey(200, true))
}
