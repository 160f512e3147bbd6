package hid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/hid"
)

func TestKeyboardReportPress(t *testing.T) {
	tests := []struct {
		name     string
		keys     []hid.Keycode
		expected []byte
	}{
		{
			name:     "empty",
			expected: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:     "modifier and key",
			keys:     []hid.Keycode{hid.KeyLeftShift, hid.KeyA},
			expected: []byte{hid.ModLeftShift, 0, hid.KeyA, 0, 0, 0, 0, 0},
		},
		{
			name:     "special codes are dropped",
			keys:     []hid.Keycode{hid.Program, hid.MouseButton1, hid.KeyB},
			expected: []byte{0, 0, hid.KeyB, 0, 0, 0, 0, 0},
		},
		{
			name:     "duplicate key takes one slot",
			keys:     []hid.Keycode{hid.KeyC, hid.KeyC, hid.KeyRightGUI},
			expected: []byte{hid.ModRightGUI, 0, hid.KeyC, 0, 0, 0, 0, 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r hid.KeyboardReport
			for _, k := range tc.keys {
				assert.True(t, r.Press(k))
			}
			assert.Equal(t, tc.expected, r.BuildReport())
		})
	}
}

func TestKeyboardReportOverflow(t *testing.T) {
	var r hid.KeyboardReport
	for k := hid.KeyA; k < hid.KeyA+hid.ReportKeyCount; k++ {
		require.True(t, r.Press(k))
	}
	assert.False(t, r.Press(hid.KeyZ))

	var merged hid.KeyboardReport
	merged.Press(hid.KeyZ)
	merged.Merge(r)
	assert.True(t, merged.IsRollover())
}

func TestKeyboardReportRoundTrip(t *testing.T) {
	in := hid.KeyboardReport{Modifier: hid.ModLeftCtrl | hid.ModRightAlt, Keys: [6]hid.Keycode{hid.KeyQ, hid.KeyEnter}}
	b, err := in.MarshalBinary()
	require.NoError(t, err)

	var out hid.KeyboardReport
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
	assert.Equal(t, []hid.Keycode{hid.KeyLeftCtrl, hid.KeyRightAlt, hid.KeyQ, hid.KeyEnter}, out.Pressed())

	assert.Error(t, out.UnmarshalBinary(b[:3]))
}

func TestMouseReportMergeSaturates(t *testing.T) {
	m := hid.MouseReport{Buttons: 1, X: 100, Y: -100}
	m.Merge(hid.MouseReport{Buttons: 4, X: 100, Y: -100, Wheel: 3})
	assert.Equal(t, hid.MouseReport{Buttons: 5, X: 127, Y: -127, Wheel: 3}, m)
	assert.Equal(t, []byte{5, 127, 0x81, 3}, m.BuildReport())
}

func TestTypeString(t *testing.T) {
	reports := hid.TypeString("Hi!")
	require.Len(t, reports, 6)
	assert.Equal(t, uint8(hid.ModLeftShift), reports[0].Modifier)
	assert.Equal(t, hid.KeyH, reports[0].Keys[0])
	assert.Equal(t, hid.KeyboardReport{}, reports[1])
	assert.Equal(t, hid.KeyI, reports[2].Keys[0])
	assert.Equal(t, uint8(0), reports[2].Modifier)
	assert.Equal(t, hid.Key1, reports[4].Keys[0])
}

func TestKeyByName(t *testing.T) {
	k, ok := hid.KeyByName("program")
	assert.True(t, ok)
	assert.Equal(t, hid.Program, k)

	_, ok = hid.KeyByName("nonsense")
	assert.False(t, ok)

	assert.Equal(t, "Enter", hid.Name(hid.KeyEnter))
	assert.Equal(t, "0x9A", hid.Name(0x9A))
}
