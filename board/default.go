package board

import "github.com/Alia5/chordkb/hid"

// Layer indices of the default board.
const (
	LayerNormal   = 0
	LayerKeypad   = 1
	LayerFunction = 2
)

// Physical keys of the default board that are referenced by name.
const (
	KeyProgram     uint8 = 0
	KeyLayerLock   uint8 = 1
	KeyKeypadShift uint8 = 2
	KeyFuncShift   uint8 = 3
	KeyLetterA     uint8 = 4  // A..Z are 4..29
	KeyDigit1      uint8 = 30 // 1..9, 0 are 30..39
	KeyMacroShift  uint8 = 71
)

// Letter returns the physical key of a letter on the default board.
func Letter(c byte) uint8 {
	return KeyLetterA + (c - 'A')
}

var defaultNormal = []hid.Keycode{
	hid.Program, hid.LayerLock, hid.KeypadShift, hid.FunctionShift,

	hid.KeyA, hid.KeyB, hid.KeyC, hid.KeyD, hid.KeyE, hid.KeyF, hid.KeyG, hid.KeyH, hid.KeyI,
	hid.KeyJ, hid.KeyK, hid.KeyL, hid.KeyM, hid.KeyN, hid.KeyO, hid.KeyP, hid.KeyQ, hid.KeyR,
	hid.KeyS, hid.KeyT, hid.KeyU, hid.KeyV, hid.KeyW, hid.KeyX, hid.KeyY, hid.KeyZ,

	hid.Key1, hid.Key2, hid.Key3, hid.Key4, hid.Key5, hid.Key6, hid.Key7, hid.Key8, hid.Key9, hid.Key0,

	hid.KeySemicolon, hid.KeyComma, hid.KeyPeriod, hid.KeySlash,

	// left extra keys
	hid.KeyEqual, hid.KeyTab, hid.KeyEscape, hid.KeyDelete, hid.KeyGrave, hid.KeyNonUSBackslash,
	hid.KeyLeft, hid.KeyRight, hid.KeyPrintScreen, hid.KeyCapsLock, hid.KeyVolumeDown,

	// right extra keys
	hid.KeyMinus, hid.KeyBackslash, hid.KeyApostrophe, hid.KeyLeftBrace, hid.KeyRightBrace,
	hid.KeyUp, hid.KeyDown, hid.KeyScrollLock, hid.KeyPause, hid.KeyVolumeUp,

	// left thumb
	hid.KeyLeftAlt, hid.KeyLeftCtrl, hid.KeyHome, hid.KeyEnd, hid.KeyBackspace, hid.KeyLeftShift,
	hid.MacroShift,

	// right thumb
	hid.KeyRightAlt, hid.KeyRightCtrl, hid.KeyPageUp, hid.KeyPageDown, hid.KeyEnter, hid.KeySpace,
	hid.KeyRightShift, hid.KeyLeftGUI,
}

// Default returns the built-in 80 key board with normal, keypad and function
// layers on an 8x10 matrix.
func Default() *Board {
	const (
		rows = 8
		cols = 10
		size = rows * cols
	)
	b := &Board{
		Name:      "default",
		Rows:      rows,
		Cols:      cols,
		LayerSize: size,
		Layers:    3,
		Keys: BuiltinKeys{
			Program:        KeyProgram,
			Keypad:         KeyLayerLock,
			Remap:          Letter('R'),
			MacroRecord:    Letter('W'),
			Reboot:         Letter('B'),
			ToggleBuzzer:   Letter('Z'),
			ResetConfig:    Letter('C'),
			ResetFully:     Letter('F'),
			Save:           Letter('S'),
			Load:           Letter('E'),
			Delete:         Letter('D'),
			ToggleMacros:   Letter('Q'),
			TogglePrograms: Letter('P'),
			Digit1:         KeyDigit1,
		},
	}
	b.Matrix = make([][]uint8, rows)
	for r := range b.Matrix {
		b.Matrix[r] = make([]uint8, cols)
		for c := range b.Matrix[r] {
			b.Matrix[r][c] = uint8(r*cols + c)
		}
	}

	b.Defaults = make([]hid.Keycode, size*b.Layers)
	for l := 0; l < b.Layers; l++ {
		copy(b.Defaults[l*size:], defaultNormal)
	}

	keypad := b.Defaults[LayerKeypad*size:]
	for c, k := range map[byte]hid.Keycode{
		'U': hid.KeyKp4, 'I': hid.KeyKp5, 'O': hid.KeyKp6,
		'J': hid.KeyKp1, 'K': hid.KeyKp2, 'L': hid.KeyKp3,
		'M': hid.KeyKp0,
	} {
		keypad[Letter(c)] = k
	}
	keypad[KeyDigit1+6] = hid.KeyKp7
	keypad[KeyDigit1+7] = hid.KeyKp8
	keypad[KeyDigit1+8] = hid.KeyKp9
	keypad[KeyDigit1+9] = hid.KeyKpAsterisk
	keypad[40] = hid.KeyKpPlus
	keypad[42] = hid.KeyKpDot
	keypad[43] = hid.KeyKpSlash
	keypad[55] = hid.KeyKpMinus
	keypad[76] = hid.KeyKpEnter

	function := b.Defaults[LayerFunction*size:]
	for i := uint8(0); i < 10; i++ {
		function[KeyDigit1+i] = hid.KeyF1 + i
	}
	function[55] = hid.KeyF11
	function[44] = hid.KeyF12
	function[Letter('H')] = hid.KeyLeft
	function[Letter('J')] = hid.KeyDown
	function[Letter('K')] = hid.KeyUp
	function[Letter('L')] = hid.KeyRight
	function[Letter('W')] = hid.MouseForward
	function[Letter('S')] = hid.MouseBack
	function[Letter('A')] = hid.MouseLeft
	function[Letter('D')] = hid.MouseRight
	function[Letter('Q')] = hid.MouseButton1
	function[Letter('E')] = hid.MouseButton2

	return b
}
