package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/keystate"
)

const (
	// StackSize is the per-instance memory for globals, locals and operands.
	StackSize = 96
	// MaxFrames bounds call depth.
	MaxFrames = 16
	// StepBudget is the number of instructions an instance may run per
	// tick before it has to yield.
	StepBudget = 256
)

// State is the scheduling state of an Instance.
type State int

const (
	Stopped State = iota
	Crashed
	NoProgram
	Running
	WaitReport
	WaitMouseReport
	Delay
	WaitKey
	WaitPhysKey
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Crashed:
		return "crashed"
	case NoProgram:
		return "no program"
	case Running:
		return "running"
	case WaitReport:
		return "wait report"
	case WaitMouseReport:
		return "wait mouse report"
	case Delay:
		return "delay"
	case WaitKey:
		return "wait key"
	case WaitPhysKey:
		return "wait physical key"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether an instance in state s still has work to do.
func (s State) Active() bool { return s >= Running }

// Keys is the view of the keyboard the syscalls query. keystate.State
// implements it.
type Keys interface {
	CheckHIDKey(h hid.Keycode) hid.Keycode
	CheckKey(k uint8, kind keystate.Kind) bool
}

// FaultCode says why an instance crashed.
type FaultCode int

const (
	FaultBadOpcode FaultCode = iota + 1
	FaultStackOverflow
	FaultStackUnderflow
	FaultFrameOverflow
	FaultBadJump
	FaultBadCall
	FaultBadLocal
	FaultDivideByZero
)

func (c FaultCode) String() string {
	switch c {
	case FaultBadOpcode:
		return "bad opcode"
	case FaultStackOverflow:
		return "stack overflow"
	case FaultStackUnderflow:
		return "stack underflow"
	case FaultFrameOverflow:
		return "frame overflow"
	case FaultBadJump:
		return "jump out of code"
	case FaultBadCall:
		return "bad method"
	case FaultBadLocal:
		return "variable out of range"
	case FaultDivideByZero:
		return "division by zero"
	}
	return fmt.Sprintf("fault(%d)", int(c))
}

// Fault is the error recorded when an instance crashes.
type Fault struct {
	Code FaultCode
	IP   int
	Op   Opcode
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %d (%s)", f.Code, f.IP, f.Op)
}

// Frame is one activation record. Locals live in the stack at
// [LocalsBase, LocalsEnd); operands are pushed above them.
type Frame struct {
	Method     int
	ReturnIP   int
	SavedTop   int
	Parent     int
	LocalsBase int
	LocalsEnd  int
}

// Instance is the execution state of one program slot.
type Instance struct {
	prog  *Program
	state State
	fault *Fault

	stack  [StackSize]byte
	top    int
	frames [MaxFrames]Frame
	depth  int

	ip int
	at int    // address of the instruction being executed
	op Opcode // and its opcode, for faults

	deadline uint32
	timed    bool
	waitKey  uint8
	trigger  uint8

	keys  hid.KeyboardReport
	mouse hid.MouseReport
}

// NewInstance returns an instance for p, or one in NoProgram when p is nil.
func NewInstance(p *Program) *Instance {
	in := &Instance{prog: p, state: Stopped}
	if p == nil {
		in.state = NoProgram
	}
	return in
}

// State returns the scheduling state.
func (in *Instance) State() State { return in.state }

// Fault returns why the instance crashed, or nil.
func (in *Instance) Fault() *Fault { return in.fault }

// Trigger is the physical key the instance was started with.
func (in *Instance) Trigger() uint8 { return in.trigger }

// Globals returns a copy of the global variables.
func (in *Instance) Globals() []byte {
	if in.prog == nil {
		return nil
	}
	out := make([]byte, in.prog.NGlobals)
	copy(out, in.stack[:in.prog.NGlobals])
	return out
}

// Start resets the instance and enters method 0.
func (in *Instance) Start(trigger uint8) error {
	if in.prog == nil {
		return ErrNoProgram
	}
	if in.state.Active() {
		return ErrAlreadyRunning
	}
	in.stack = [StackSize]byte{}
	in.top = int(in.prog.NGlobals)
	in.depth = 0
	in.fault = nil
	in.trigger = trigger
	in.keys = hid.KeyboardReport{}
	in.mouse = hid.MouseReport{}
	in.state = Running
	if err := in.call(0, -1); err != nil {
		in.crash(err)
		return err
	}
	return nil
}

// Stop halts the instance and drops its report contributions.
func (in *Instance) Stop() {
	if in.state == NoProgram {
		return
	}
	in.state = Stopped
	in.keys = hid.KeyboardReport{}
	in.mouse = hid.MouseReport{}
}

func (in *Instance) crash(err error) {
	f, ok := err.(*Fault)
	if !ok {
		f = &Fault{Code: FaultBadOpcode, IP: in.at, Op: in.op}
	}
	in.Stop()
	in.state = Crashed
	in.fault = f
}

func (in *Instance) fail(code FaultCode) error {
	return &Fault{Code: code, IP: in.at, Op: in.op}
}

// host is what an instance needs from its pool while stepping.
type host struct {
	keys Keys
	buzz buzzer.Buzzer
	now  uint32
}

func reached(now, deadline uint32) bool { return int32(now-deadline) >= 0 }

// step resumes the instance if its wait condition holds and runs it until it
// suspends, exits, crashes or uses up its budget.
func (in *Instance) step(h host) {
	switch in.state {
	case Running:
	case Delay:
		if !reached(h.now, in.deadline) {
			return
		}
		in.state = Running
	case WaitKey, WaitPhysKey:
		if !in.poll(h) {
			return
		}
	default:
		return
	}
	for n := 0; n < StepBudget && in.state == Running; n++ {
		if err := in.exec(h); err != nil {
			in.crash(err)
			return
		}
	}
}

func (in *Instance) poll(h host) bool {
	var result byte
	done := false
	if in.state == WaitKey {
		if k := h.keys.CheckHIDKey(in.waitKey); k != hid.NoKey {
			result, done = k, true
		}
	} else if h.keys.CheckKey(in.physical(in.waitKey), keystate.Physical) {
		result, done = 1, true
	}
	if !done && in.timed && reached(h.now, in.deadline) {
		result, done = 0, true
	}
	if !done {
		return false
	}
	in.state = Running
	if err := in.push(result); err != nil {
		in.crash(err)
		return false
	}
	return true
}

func (in *Instance) physical(k uint8) uint8 {
	if k == 0 {
		return in.trigger
	}
	return k
}

// Stack primitives. Operands may not dip into the locals of the current
// frame.

func (in *Instance) floor() int {
	if in.depth == 0 {
		return int(in.prog.NGlobals)
	}
	return in.frames[in.depth-1].LocalsEnd
}

func (in *Instance) push(v byte) error {
	if in.top >= StackSize {
		return in.fail(FaultStackOverflow)
	}
	in.stack[in.top] = v
	in.top++
	return nil
}

func (in *Instance) pop() (byte, error) {
	if in.top <= in.floor() {
		return 0, in.fail(FaultStackUnderflow)
	}
	in.top--
	return in.stack[in.top], nil
}

func (in *Instance) pushShort(v int16) error {
	if in.top+2 > StackSize {
		return in.fail(FaultStackOverflow)
	}
	binary.LittleEndian.PutUint16(in.stack[in.top:], uint16(v))
	in.top += 2
	return nil
}

func (in *Instance) popShort() (int16, error) {
	if in.top-2 < in.floor() {
		return 0, in.fail(FaultStackUnderflow)
	}
	in.top -= 2
	return int16(binary.LittleEndian.Uint16(in.stack[in.top:])), nil
}

// Code fetches.

func (in *Instance) fetch() (byte, error) {
	if in.ip < in.prog.CodeStart() || in.ip >= len(in.prog.Code) {
		return 0, in.fail(FaultBadJump)
	}
	b := in.prog.Code[in.ip]
	in.ip++
	return b, nil
}

func (in *Instance) fetchShort() (int16, error) {
	lo, err := in.fetch()
	if err != nil {
		return 0, err
	}
	hi, err := in.fetch()
	if err != nil {
		return 0, err
	}
	return int16(uint16(lo) | uint16(hi)<<8), nil
}

// Variables.

func (in *Instance) local(idx, size int) (int, error) {
	f := &in.frames[in.depth-1]
	at := f.LocalsBase + idx
	if at+size > f.LocalsEnd {
		return 0, in.fail(FaultBadLocal)
	}
	return at, nil
}

func (in *Instance) global(idx, size int) (int, error) {
	if idx+size > int(in.prog.NGlobals) {
		return 0, in.fail(FaultBadLocal)
	}
	return idx, nil
}

func (in *Instance) store(at, size int) error {
	if size == 1 {
		v, err := in.pop()
		if err != nil {
			return err
		}
		in.stack[at] = v
		return nil
	}
	v, err := in.popShort()
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(in.stack[at:], uint16(v))
	return nil
}

func (in *Instance) load(at, size int) error {
	if size == 1 {
		return in.push(in.stack[at])
	}
	return in.pushShort(int16(binary.LittleEndian.Uint16(in.stack[at:])))
}

// Calls.

// call enters method m. Its arguments are the top NArgs bytes of the
// caller's operands and become its first locals.
func (in *Instance) call(m int, returnIP int) error {
	if m >= len(in.prog.Methods) {
		return in.fail(FaultBadCall)
	}
	if in.depth >= MaxFrames {
		return in.fail(FaultFrameOverflow)
	}
	method := in.prog.Methods[m]
	base := in.top - int(method.NArgs)
	if base < in.floor() {
		return in.fail(FaultStackUnderflow)
	}
	end := in.top + int(method.NLocals)
	if end > StackSize {
		return in.fail(FaultStackOverflow)
	}
	clear(in.stack[in.top:end])
	in.frames[in.depth] = Frame{
		Method:     m,
		ReturnIP:   returnIP,
		SavedTop:   base,
		Parent:     in.depth - 1,
		LocalsBase: base,
		LocalsEnd:  end,
	}
	in.depth++
	in.top = end
	in.ip = int(method.Offset)
	return nil
}

// ret leaves the current frame. Returning from the entry method stops the
// instance.
func (in *Instance) ret() {
	f := in.frames[in.depth-1]
	in.depth--
	in.top = f.SavedTop
	if f.Parent < 0 {
		in.Stop()
		return
	}
	in.ip = f.ReturnIP
}

func (in *Instance) branch(at int, cond func(int8) bool) error {
	off, err := in.fetchShort()
	if err != nil {
		return err
	}
	var take bool
	if cond == nil {
		take = true
	} else {
		v, err := in.pop()
		if err != nil {
			return err
		}
		take = cond(int8(v))
	}
	if !take {
		return nil
	}
	target := at + int(off)
	if target < in.prog.CodeStart() || target >= len(in.prog.Code) {
		return in.fail(FaultBadJump)
	}
	in.ip = target
	return nil
}

func sign(d int) int8 {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

func (in *Instance) exec(h host) error {
	at := in.ip
	b, err := in.fetch()
	if err != nil {
		return err
	}
	in.at, in.op = at, Opcode(b)
	op := in.op

	switch {
	case op <= SLOAD_3:
		return in.variable(op)
	case op >= BADD && op <= BRSHIFT:
		return in.byteOp(op)
	case op >= SADD && op <= SRSHIFT:
		return in.shortOp(op)
	case op >= PRESSKEY:
		return in.syscall(op, h)
	}

	switch op {
	case GBSTORE, GBLOAD, GSSTORE, GSLOAD:
		idx, err := in.fetch()
		if err != nil {
			return err
		}
		size := 1
		if op == GSSTORE || op == GSLOAD {
			size = 2
		}
		g, err := in.global(int(idx), size)
		if err != nil {
			return err
		}
		if op == GBSTORE || op == GSSTORE {
			return in.store(g, size)
		}
		return in.load(g, size)

	case BCONST:
		v, err := in.fetch()
		if err != nil {
			return err
		}
		return in.push(v)
	case BCONST_0, BCONST_1, BCONST_2, BCONST_3:
		return in.push(byte(op - BCONST_0))
	case SCONST:
		v, err := in.fetchShort()
		if err != nil {
			return err
		}
		return in.pushShort(v)
	case SCONST_0, SCONST_1, SCONST_2, SCONST_3:
		return in.pushShort(int16(op - SCONST_0))

	case DUP:
		v, err := in.pop()
		if err != nil {
			return err
		}
		if err := in.push(v); err != nil {
			return err
		}
		return in.push(v)
	case DUP2:
		v, err := in.popShort()
		if err != nil {
			return err
		}
		if err := in.pushShort(v); err != nil {
			return err
		}
		return in.pushShort(v)
	case POP:
		_, err := in.pop()
		return err
	case POP2:
		_, err := in.popShort()
		return err
	case SWAP:
		if in.top-2 < in.floor() {
			return in.fail(FaultStackUnderflow)
		}
		in.stack[in.top-1], in.stack[in.top-2] = in.stack[in.top-2], in.stack[in.top-1]
		return nil

	case B2S:
		v, err := in.pop()
		if err != nil {
			return err
		}
		return in.pushShort(int16(int8(v)))
	case S2B:
		v, err := in.popShort()
		if err != nil {
			return err
		}
		return in.push(byte(v))

	case IFEQ:
		return in.branch(at, func(v int8) bool { return v == 0 })
	case IFNE:
		return in.branch(at, func(v int8) bool { return v != 0 })
	case IFLT:
		return in.branch(at, func(v int8) bool { return v < 0 })
	case IFGT:
		return in.branch(at, func(v int8) bool { return v > 0 })
	case IFGE:
		return in.branch(at, func(v int8) bool { return v >= 0 })
	case IFLE:
		return in.branch(at, func(v int8) bool { return v <= 0 })
	case GOTO:
		return in.branch(at, nil)
	case NOP:
		return nil

	case CALL:
		m, err := in.fetch()
		if err != nil {
			return err
		}
		return in.call(int(m), in.ip)
	case RET:
		in.ret()
		return nil
	case BRET:
		v, err := in.pop()
		if err != nil {
			return err
		}
		in.ret()
		if in.state != Running {
			return nil
		}
		return in.push(v)
	case SRET:
		v, err := in.popShort()
		if err != nil {
			return err
		}
		in.ret()
		if in.state != Running {
			return nil
		}
		return in.pushShort(v)
	case VMEXIT:
		in.Stop()
		return nil
	}
	return in.fail(FaultBadOpcode)
}

// variable executes the local load/store family.
func (in *Instance) variable(op Opcode) error {
	var (
		store bool
		size  = 1
		idx   int
		short bool
	)
	switch {
	case op <= BSTORE_3:
		store, idx, short = true, int(op-BSTORE), op != BSTORE
	case op <= SSTORE_3:
		store, size, idx, short = true, 2, int(op-SSTORE), op != SSTORE
	case op <= BLOAD_3:
		idx, short = int(op-BLOAD), op != BLOAD
	default:
		size, idx, short = 2, int(op-SLOAD), op != SLOAD
	}
	if short {
		idx--
	} else {
		b, err := in.fetch()
		if err != nil {
			return err
		}
		idx = int(b)
	}
	at, err := in.local(idx, size)
	if err != nil {
		return err
	}
	if store {
		return in.store(at, size)
	}
	return in.load(at, size)
}

func (in *Instance) byteOp(op Opcode) error {
	if op == BNOT {
		a, err := in.pop()
		if err != nil {
			return err
		}
		return in.push(^a)
	}
	bv, err := in.pop()
	if err != nil {
		return err
	}
	av, err := in.pop()
	if err != nil {
		return err
	}
	a, b := int8(av), int8(bv)
	var r int8
	switch op {
	case BADD:
		r = a + b
	case BSUBTRACT:
		r = a - b
	case BMULTIPLY:
		r = a * b
	case BDIVIDE, BMOD:
		if b == 0 {
			return in.fail(FaultDivideByZero)
		}
		if op == BDIVIDE {
			r = a / b
		} else {
			r = a % b
		}
	case BAND:
		r = a & b
	case BOR:
		r = a | b
	case BXOR:
		r = a ^ b
	case BCMP:
		r = sign(int(a) - int(b))
	case BLSHIFT:
		r = a << uint8(b)
	case BRSHIFT:
		r = a >> uint8(b)
	}
	return in.push(byte(r))
}

func (in *Instance) shortOp(op Opcode) error {
	if op == SNOT {
		a, err := in.popShort()
		if err != nil {
			return err
		}
		return in.pushShort(^a)
	}
	b, err := in.popShort()
	if err != nil {
		return err
	}
	a, err := in.popShort()
	if err != nil {
		return err
	}
	var r int16
	switch op {
	case SADD:
		r = a + b
	case SSUBTRACT:
		r = a - b
	case SMULTIPLY:
		r = a * b
	case SDIVIDE, SMOD:
		if b == 0 {
			return in.fail(FaultDivideByZero)
		}
		if op == SDIVIDE {
			r = a / b
		} else {
			r = a % b
		}
	case SAND:
		r = a & b
	case SOR:
		r = a | b
	case SXOR:
		r = a ^ b
	case SCMP:
		return in.push(byte(sign(int(a) - int(b))))
	case SLSHIFT:
		r = a << uint16(b)
	case SRSHIFT:
		r = a >> uint16(b)
	}
	return in.pushShort(r)
}
