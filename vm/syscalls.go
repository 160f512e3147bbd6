package vm

import (
	"github.com/Alia5/chordkb/buzzer"
	"github.com/Alia5/chordkb/hid"
	"github.com/Alia5/chordkb/keystate"
)

func (in *Instance) syscall(op Opcode, h host) error {
	switch op {
	case PRESSKEY, RELEASEKEY:
		k, err := in.pop()
		if err != nil {
			return err
		}
		if op == PRESSKEY {
			in.keys.Press(k)
		} else {
			in.keys.Release(k)
		}
		in.state = WaitReport
		return nil

	case CHECKKEY:
		k, err := in.pop()
		if err != nil {
			return err
		}
		return in.push(boolByte(h.keys.CheckHIDKey(k) != hid.NoKey))

	case CHECKPHYSKEY:
		k, err := in.pop()
		if err != nil {
			return err
		}
		return in.push(boolByte(h.keys.CheckKey(in.physical(k), keystate.Physical)))

	case WAITKEY, WAITPHYSKEY:
		timeout, err := in.popShort()
		if err != nil {
			return err
		}
		k, err := in.pop()
		if err != nil {
			return err
		}
		in.waitKey = k
		in.timed = timeout > 0
		in.deadline = h.now + uint32(max(timeout, 0))
		if op == WAITKEY {
			in.state = WaitKey
		} else {
			in.state = WaitPhysKey
		}
		in.poll(h)
		return nil

	case DELAY:
		ms, err := in.popShort()
		if err != nil {
			return err
		}
		if ms <= 0 {
			return nil
		}
		in.deadline = h.now + uint32(ms)
		in.state = Delay
		return nil

	case GETUPTIMEMS:
		return in.pushShort(int16(h.now))
	case GETUPTIME:
		return in.pushShort(int16(h.now / 1000))

	case BUZZ:
		ms, err := in.popShort()
		if err != nil {
			return err
		}
		h.buzz.Start(uint16(max(ms, 0)), buzzer.DefaultTone)
		return nil
	case BUZZAT:
		tone, err := in.pop()
		if err != nil {
			return err
		}
		ms, err := in.popShort()
		if err != nil {
			return err
		}
		if tone == 0 {
			tone = buzzer.DefaultTone
		}
		h.buzz.Start(uint16(max(ms, 0)), tone)
		return nil

	case MOVEMOUSE:
		y, err := in.pop()
		if err != nil {
			return err
		}
		x, err := in.pop()
		if err != nil {
			return err
		}
		in.mouse.Merge(hid.MouseReport{X: int8(x), Y: int8(y)})
		in.state = WaitMouseReport
		return nil
	case PRESSMOUSEBUTTONS, RELEASEMOUSEBUTTONS:
		mask, err := in.pop()
		if err != nil {
			return err
		}
		if op == PRESSMOUSEBUTTONS {
			in.mouse.Buttons |= mask
		} else {
			in.mouse.Buttons &^= mask
		}
		in.state = WaitMouseReport
		return nil
	}
	return in.fail(FaultBadOpcode)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
