package vm_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/keystate"
	"github.com/Alia5/chordkb/vm"
)

type fakeKeys struct {
	hid  map[hid.Keycode]bool
	phys map[uint8]bool
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{hid: map[hid.Keycode]bool{}, phys: map[uint8]bool{}}
}

func (f *fakeKeys) CheckHIDKey(h hid.Keycode) hid.Keycode {
	for k, down := range f.hid {
		if down && (h == 0 || k == h) {
			return k
		}
	}
	return hid.NoKey
}

func (f *fakeKeys) CheckKey(k uint8, kind keystate.Kind) bool {
	return kind == keystate.Physical && f.phys[k]
}

func newPool(t *testing.T, keys *fakeKeys, bz buzzer.Buzzer, sources ...string) *vm.Pool {
	t.Helper()
	if keys == nil {
		keys = newFakeKeys()
	}
	if bz == nil {
		bz = buzzer.Silent{}
	}
	images := make([][]byte, len(sources))
	for i, src := range sources {
		if src == "" {
			continue
		}
		img, err := vm.AssembleString(src)
		require.NoError(t, err)
		images[i] = img
	}
	p := vm.NewPool(keys, bz, nil)
	p.Load(images)
	return p
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []byte
	}{
		{name: "badd", body: "bconst 5\nbconst 7\nbadd\ngbstore 0", want: []byte{12, 0}},
		{name: "byte wraps", body: "bconst 127\nbconst_1\nbadd\ngbstore 0", want: []byte{0x80, 0}},
		{name: "bdivide truncates", body: "bconst -7\nbconst 2\nbdivide\ngbstore 0", want: []byte{0xFD, 0}},
		{name: "bmod", body: "bconst 17\nbconst 5\nbmod\ngbstore 0", want: []byte{2, 0}},
		{name: "bcmp less", body: "bconst_3\nbconst 5\nbcmp\ngbstore 0", want: []byte{0xFF, 0}},
		{name: "bcmp equal", body: "bconst_3\nbconst_3\nbcmp\ngbstore 0", want: []byte{0, 0}},
		{name: "brshift keeps sign", body: "bconst -8\nbconst_1\nbrshift\ngbstore 0", want: []byte{0xFC, 0}},
		{name: "bnot", body: "bconst_0\nbnot\ngbstore 0", want: []byte{0xFF, 0}},
		{name: "smultiply", body: "sconst 1000\nsconst_3\nsmultiply\ngsstore 0", want: []byte{0xB8, 0x0B}},
		{name: "b2s sign extends", body: "bconst -2\nb2s\ngsstore 0", want: []byte{0xFE, 0xFF}},
		{name: "s2b truncates", body: "sconst 0x1234\ns2b\ngbstore 1", want: []byte{0, 0x34}},
		{name: "scmp greater", body: "sconst 300\nsconst 200\nscmp\ngbstore 0", want: []byte{1, 0}},
		{name: "swap", body: "bconst_1\nbconst_2\nswap\ngbstore 0\ngbstore 1", want: []byte{1, 2}},
		{name: "dup2", body: "sconst 0x0102\ndup2\npop2\ngsstore 0", want: []byte{2, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPool(t, nil, nil, ".globals 2\n.method main 0 0\n"+tc.body+"\nvmexit\n")
			require.NoError(t, p.Start(0, 0))
			p.StepAll(0)
			in := p.Instance(0)
			require.Equal(t, vm.Stopped, in.State(), "fault: %v", in.Fault())
			assert.Equal(t, tc.want, in.Globals())
		})
	}
}

func TestCallsAndLocals(t *testing.T) {
	src := `
.globals 1
.method main 0 1
    bconst 20
    bstore_0
    bload_0
    bconst 22
    call add
    gbstore 0
    ret
.method add 2 1
    bload_0
    bload_1
    badd
    bstore_2
    bload_2
    bret
`
	p := newPool(t, nil, nil, src)
	require.NoError(t, p.Start(0, 0))
	p.StepAll(0)
	in := p.Instance(0)
	require.Equal(t, vm.Stopped, in.State(), "fault: %v", in.Fault())
	assert.Equal(t, []byte{42}, in.Globals())
}

func TestLoop(t *testing.T) {
	src := `
.globals 1
.method main 0 1
    bconst 10
    bstore_0
loop:
    bload_0
    ifeq done
    gbload 0
    bload_0
    badd
    gbstore 0
    bload_0
    bconst_1
    bsubtract
    bstore_0
    goto loop
done:
    vmexit
`
	p := newPool(t, nil, nil, src)
	require.NoError(t, p.Start(0, 0))
	p.StepAll(0)
	assert.Equal(t, []byte{55}, p.Instance(0).Globals())
}

func TestStepBudgetYields(t *testing.T) {
	spin := ".method main 0 0\nloop:\ngoto loop\n"
	count := ".globals 1\n.method main 0 0\nloop:\ngbload 0\nbconst_1\nbadd\ngbstore 0\nsconst 10\ndelay\ngoto loop\n"
	p := newPool(t, nil, nil, spin, count)
	require.NoError(t, p.Start(0, 0))
	require.NoError(t, p.Start(1, 0))

	for now := uint32(0); now < 30; now += 10 {
		p.StepAll(now)
	}
	assert.Equal(t, vm.Running, p.Instance(0).State())
	assert.Equal(t, []byte{3}, p.Instance(1).Globals())
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want vm.FaultCode
	}{
		{name: "division by zero", src: ".method m 0 0\nbconst_1\nbconst_0\nbdivide\nvmexit", want: vm.FaultDivideByZero},
		{name: "short division by zero", src: ".method m 0 0\nsconst_1\nsconst_0\nsmod\nvmexit", want: vm.FaultDivideByZero},
		{name: "underflow", src: ".method m 0 0\npop\nvmexit", want: vm.FaultStackUnderflow},
		{name: "operands cannot reach locals", src: ".method m 0 2\nbconst_1\npop2\nvmexit", want: vm.FaultStackUnderflow},
		{name: "overflow", src: ".method m 0 0\nloop:\nbconst_1\ngoto loop", want: vm.FaultStackOverflow},
		{name: "recursion", src: ".method m 0 0\ncall m\nvmexit", want: vm.FaultFrameOverflow},
		{name: "bad local", src: ".method m 0 1\nbload 1\nvmexit", want: vm.FaultBadLocal},
		{name: "bad global", src: ".globals 1\n.method m 0 0\ngsload 0\nvmexit", want: vm.FaultBadLocal},
		{name: "bad method", src: ".method m 0 0\ncall 3\nvmexit", want: vm.FaultBadCall},
		{name: "runs off the end", src: ".method m 0 0\nnop", want: vm.FaultBadJump},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPool(t, nil, nil, tc.src)
			require.NoError(t, p.Start(0, 0))
			p.StepAll(0)
			in := p.Instance(0)
			require.Equal(t, vm.Crashed, in.State())
			require.NotNil(t, in.Fault())
			assert.Equal(t, tc.want, in.Fault().Code)
		})
	}
}

func TestBadOpcode(t *testing.T) {
	// one method at offset 6 holding the unassigned opcode 40
	p := vm.NewPool(newFakeKeys(), buzzer.Silent{}, nil)
	p.Load([][]byte{{0, 1, 0, 0, 6, 0, 40}})
	require.NoError(t, p.Start(0, 0))
	p.StepAll(0)
	in := p.Instance(0)
	require.Equal(t, vm.Crashed, in.State())
	assert.Equal(t, vm.FaultBadOpcode, in.Fault().Code)
	assert.Equal(t, 6, in.Fault().IP)
}

func TestCrashIsIsolated(t *testing.T) {
	bad := ".method m 0 0\nloop:\nbconst_1\ngoto loop"
	good := ".globals 1\n.method m 0 0\nbconst 9\ngbstore 0\nvmexit"
	p := newPool(t, nil, nil, bad, good)
	require.NoError(t, p.Start(0, 0))
	require.NoError(t, p.Start(1, 0))
	p.StepAll(0)
	assert.Equal(t, vm.Crashed, p.Instance(0).State())
	assert.Equal(t, vm.Stopped, p.Instance(1).State())
	assert.Equal(t, []byte{9}, p.Instance(1).Globals())

	// a crashed slot can be started again
	require.NoError(t, p.Start(0, 0))
	assert.Equal(t, vm.Running, p.Instance(0).State())
	assert.Nil(t, p.Instance(0).Fault())
}

func TestDelay(t *testing.T) {
	for _, d := range []int{1, 2, 50, 1000} {
		src := ".globals 1\n.method m 0 0\nsconst " + strconv.Itoa(d) + "\ndelay\nbconst_1\ngbstore 0\nvmexit"
		p := newPool(t, nil, nil, src)
		require.NoError(t, p.Start(0, 0))
		start := uint32(5000)
		p.StepAll(start)
		for now := start + 1; now < start+uint32(d); now++ {
			p.StepAll(now)
			require.Equal(t, vm.Delay, p.Instance(0).State(), "delay %d resumed early at +%d", d, now-start)
		}
		p.StepAll(start + uint32(d))
		assert.Equal(t, vm.Stopped, p.Instance(0).State())
		assert.Equal(t, []byte{1}, p.Instance(0).Globals())
	}
}

func TestKeyboardReportHandshake(t *testing.T) {
	src := `
.globals 1
.method m 0 0
    bconst @a
    presskey
    bconst_1
    gbstore 0
    bconst @a
    releasekey
    vmexit
`
	p := newPool(t, nil, nil, src)
	require.NoError(t, p.Start(0, 0))

	p.StepAll(0)
	in := p.Instance(0)
	require.Equal(t, vm.WaitReport, in.State())
	assert.Equal(t, []byte{0}, in.Globals())

	p.StepAll(2)
	require.Equal(t, vm.WaitReport, in.State(), "no report was sent")

	var r hid.KeyboardReport
	p.AppendKeyboardReport(&r)
	assert.True(t, r.Contains(hid.KeyA))
	assert.Equal(t, vm.Running, in.State())

	p.StepAll(4)
	assert.Equal(t, []byte{1}, in.Globals())
	require.Equal(t, vm.WaitReport, in.State())
	r = hid.KeyboardReport{}
	p.AppendKeyboardReport(&r)
	assert.False(t, r.Contains(hid.KeyA))

	p.StepAll(6)
	assert.Equal(t, vm.Stopped, in.State())
}

func TestModifierHeldByProgram(t *testing.T) {
	src := ".method m 0 0\nbconst @leftshift\npresskey\nsconst 100\ndelay\nvmexit"
	p := newPool(t, nil, nil, src)
	require.NoError(t, p.Start(0, 0))
	p.StepAll(0)

	r := hid.KeyboardReport{Keys: [6]hid.Keycode{hid.KeyB}}
	p.AppendKeyboardReport(&r)
	assert.True(t, r.Contains(hid.KeyLeftShift))
	assert.True(t, r.Contains(hid.KeyB))

	// exiting drops what the program held
	p.StepAll(2)
	p.StepAll(200)
	r = hid.KeyboardReport{}
	p.AppendKeyboardReport(&r)
	assert.Equal(t, hid.KeyboardReport{}, r)
}

func TestMouse(t *testing.T) {
	src := `
.method m 0 0
    bconst 5
    bconst -3
    movemouse
    bconst_1
    pressmousebuttons
    vmexit
`
	p := newPool(t, nil, nil, src)
	require.NoError(t, p.Start(0, 0))
	p.StepAll(0)
	in := p.Instance(0)
	require.Equal(t, vm.WaitMouseReport, in.State())

	var r hid.MouseReport
	p.AppendMouseReport(&r)
	assert.Equal(t, hid.MouseReport{X: 5, Y: -3}, r)

	p.StepAll(2)
	r = hid.MouseReport{}
	p.AppendMouseReport(&r)
	assert.Equal(t, hid.MouseReport{Buttons: 1}, r, "movement is one-shot, buttons persist")

	p.StepAll(4)
	assert.Equal(t, vm.Stopped, in.State())
	r = hid.MouseReport{}
	p.AppendMouseReport(&r)
	assert.Equal(t, hid.MouseReport{}, r)
}

func TestWaitKey(t *testing.T) {
	src := ".globals 1\n.method m 0 0\nbconst @b\nsconst 50\nwaitkey\ngbstore 0\nvmexit"

	t.Run("timeout", func(t *testing.T) {
		p := newPool(t, nil, nil, src)
		require.NoError(t, p.Start(0, 0))
		p.StepAll(100)
		p.StepAll(149)
		require.Equal(t, vm.WaitKey, p.Instance(0).State())
		p.StepAll(150)
		assert.Equal(t, vm.Stopped, p.Instance(0).State())
		assert.Equal(t, []byte{0}, p.Instance(0).Globals())
	})

	t.Run("pressed", func(t *testing.T) {
		keys := newFakeKeys()
		p := newPool(t, keys, nil, src)
		require.NoError(t, p.Start(0, 0))
		p.StepAll(100)
		keys.hid[hid.KeyC] = true
		p.StepAll(110)
		require.Equal(t, vm.WaitKey, p.Instance(0).State(), "other keys do not satisfy the wait")
		keys.hid[hid.KeyB] = true
		p.StepAll(120)
		assert.Equal(t, []byte{hid.KeyB}, p.Instance(0).Globals())
	})

	t.Run("no timeout", func(t *testing.T) {
		p := newPool(t, nil, nil, ".method m 0 0\nbconst 0\nsconst 0\nwaitkey\nvmexit")
		require.NoError(t, p.Start(0, 0))
		for now := uint32(0); now < 60000; now += 1000 {
			p.StepAll(now)
		}
		assert.Equal(t, vm.WaitKey, p.Instance(0).State())
	})
}

func TestWaitPhysKeyTrigger(t *testing.T) {
	keys := newFakeKeys()
	keys.phys[7] = true
	src := ".globals 2\n.method m 0 0\nbconst_0\ncheckphyskey\ngbstore 0\nbconst_0\nsconst 10\nwaitphyskey\ngbstore 1\nvmexit"
	p := newPool(t, keys, nil, src)
	require.NoError(t, p.Start(0, 7))
	p.StepAll(0)
	assert.Equal(t, []byte{1, 1}, p.Instance(0).Globals())
	assert.Equal(t, uint8(7), p.Instance(0).Trigger())
}

func TestBuzzAndUptime(t *testing.T) {
	bz := buzzer.NewTracker(0, nil)
	src := ".globals 2\n.method m 0 0\nsconst 30\nbconst 80\nbuzzat\nsconst 20\nbuzz\ngetuptimems\ngsstore 0\nvmexit"
	p := newPool(t, nil, bz, src)
	require.NoError(t, p.Start(0, 0))
	p.StepAll(1234)
	hist := bz.History()
	require.Len(t, hist, 2)
	assert.Equal(t, uint16(30), hist[0].Ms)
	assert.Equal(t, buzzer.Tone(80), hist[0].Tone)
	assert.Equal(t, buzzer.DefaultTone, hist[1].Tone)
	assert.Equal(t, []byte{0xD2, 0x04}, p.Instance(0).Globals())
}

func TestPoolStart(t *testing.T) {
	p := newPool(t, nil, nil, ".method m 0 0\nloop:\nsconst 10\ndelay\ngoto loop", "")
	require.NoError(t, p.Start(0, 0))
	assert.ErrorIs(t, p.Start(0, 0), vm.ErrAlreadyRunning)
	assert.ErrorIs(t, p.Start(1, 0), vm.ErrNoProgram)
	assert.ErrorIs(t, p.Start(9, 0), vm.ErrNoProgram)
	assert.True(t, p.Running(0))

	p.Reset()
	assert.False(t, p.Running(0))
	assert.Equal(t, vm.NoProgram, p.Instance(1).State())
}

func TestEntryMethodWithArgumentsCrashes(t *testing.T) {
	p := newPool(t, nil, nil, ".method m 1 0\nvmexit")
	err := p.Start(0, 0)
	require.Error(t, err)
	assert.Equal(t, vm.Crashed, p.Instance(0).State())
}
