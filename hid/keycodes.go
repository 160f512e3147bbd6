// Package hid holds the USB HID keyboard/mouse vocabulary shared by the key
// pipeline: usage codes, the firmware's private "special" codes and the boot
// protocol report structures every report-producing state fills.
package hid

import (
	"strconv"
	"strings"
)

// Keycode is a USB HID keyboard usage code (or one of the special codes
// above SpecialStart that never leave the firmware).
type Keycode = uint8

// Modifier bitmasks of the report's modifier byte.
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// Keyboard/Keypad usage page.
const (
	KeyNone          Keycode = 0x00
	KeyErrorRollover Keycode = 0x01

	KeyA Keycode = 0x04
	KeyB Keycode = 0x05
	KeyC Keycode = 0x06
	KeyD Keycode = 0x07
	KeyE Keycode = 0x08
	KeyF Keycode = 0x09
	KeyG Keycode = 0x0A
	KeyH Keycode = 0x0B
	KeyI Keycode = 0x0C
	KeyJ Keycode = 0x0D
	KeyK Keycode = 0x0E
	KeyL Keycode = 0x0F
	KeyM Keycode = 0x10
	KeyN Keycode = 0x11
	KeyO Keycode = 0x12
	KeyP Keycode = 0x13
	KeyQ Keycode = 0x14
	KeyR Keycode = 0x15
	KeyS Keycode = 0x16
	KeyT Keycode = 0x17
	KeyU Keycode = 0x18
	KeyV Keycode = 0x19
	KeyW Keycode = 0x1A
	KeyX Keycode = 0x1B
	KeyY Keycode = 0x1C
	KeyZ Keycode = 0x1D

	Key1 Keycode = 0x1E
	Key2 Keycode = 0x1F
	Key3 Keycode = 0x20
	Key4 Keycode = 0x21
	Key5 Keycode = 0x22
	Key6 Keycode = 0x23
	Key7 Keycode = 0x24
	Key8 Keycode = 0x25
	Key9 Keycode = 0x26
	Key0 Keycode = 0x27

	KeyEnter      Keycode = 0x28
	KeyEscape     Keycode = 0x29
	KeyBackspace  Keycode = 0x2A
	KeyTab        Keycode = 0x2B
	KeySpace      Keycode = 0x2C
	KeyMinus      Keycode = 0x2D
	KeyEqual      Keycode = 0x2E
	KeyLeftBrace  Keycode = 0x2F
	KeyRightBrace Keycode = 0x30
	KeyBackslash  Keycode = 0x31
	KeySemicolon  Keycode = 0x33
	KeyApostrophe Keycode = 0x34
	KeyGrave      Keycode = 0x35
	KeyComma      Keycode = 0x36
	KeyPeriod     Keycode = 0x37
	KeySlash      Keycode = 0x38
	KeyCapsLock   Keycode = 0x39

	KeyF1  Keycode = 0x3A
	KeyF2  Keycode = 0x3B
	KeyF3  Keycode = 0x3C
	KeyF4  Keycode = 0x3D
	KeyF5  Keycode = 0x3E
	KeyF6  Keycode = 0x3F
	KeyF7  Keycode = 0x40
	KeyF8  Keycode = 0x41
	KeyF9  Keycode = 0x42
	KeyF10 Keycode = 0x43
	KeyF11 Keycode = 0x44
	KeyF12 Keycode = 0x45

	KeyPrintScreen Keycode = 0x46
	KeyScrollLock  Keycode = 0x47
	KeyPause       Keycode = 0x48
	KeyInsert      Keycode = 0x49
	KeyHome        Keycode = 0x4A
	KeyPageUp      Keycode = 0x4B
	KeyDelete      Keycode = 0x4C
	KeyEnd         Keycode = 0x4D
	KeyPageDown    Keycode = 0x4E
	KeyRight       Keycode = 0x4F
	KeyLeft        Keycode = 0x50
	KeyDown        Keycode = 0x51
	KeyUp          Keycode = 0x52

	KeyNumLock    Keycode = 0x53
	KeyKpSlash    Keycode = 0x54
	KeyKpAsterisk Keycode = 0x55
	KeyKpMinus    Keycode = 0x56
	KeyKpPlus     Keycode = 0x57
	KeyKpEnter    Keycode = 0x58
	KeyKp1        Keycode = 0x59
	KeyKp2        Keycode = 0x5A
	KeyKp3        Keycode = 0x5B
	KeyKp4        Keycode = 0x5C
	KeyKp5        Keycode = 0x5D
	KeyKp6        Keycode = 0x5E
	KeyKp7        Keycode = 0x5F
	KeyKp8        Keycode = 0x60
	KeyKp9        Keycode = 0x61
	KeyKp0        Keycode = 0x62
	KeyKpDot      Keycode = 0x63

	KeyNonUSBackslash Keycode = 0x64
	KeyApplication    Keycode = 0x65
	KeyKpEqual        Keycode = 0x67
	KeyMute           Keycode = 0x7F
	KeyVolumeUp       Keycode = 0x80
	KeyVolumeDown     Keycode = 0x81

	KeyLeftCtrl   Keycode = 0xE0
	KeyLeftShift  Keycode = 0xE1
	KeyLeftAlt    Keycode = 0xE2
	KeyLeftGUI    Keycode = 0xE3
	KeyRightCtrl  Keycode = 0xE4
	KeyRightShift Keycode = 0xE5
	KeyRightAlt   Keycode = 0xE6
	KeyRightGUI   Keycode = 0xE7
)

// Codes from SpecialStart up are never sent to the host. They select mouse
// emulation, layers and the program key.
const (
	SpecialStart Keycode = 0xE8

	MouseButton1 Keycode = 0xE8
	MouseButton2 Keycode = 0xE9
	MouseButton3 Keycode = 0xEA
	MouseButton4 Keycode = 0xEB
	MouseButton5 Keycode = 0xEC
	MouseForward Keycode = 0xED
	MouseBack    Keycode = 0xEE
	MouseLeft    Keycode = 0xEF
	MouseRight   Keycode = 0xF0

	LayerLock     Keycode = 0xFA
	KeypadShift   Keycode = 0xFB
	FunctionShift Keycode = 0xFC
	MacroShift    Keycode = 0xFD
	Program       Keycode = 0xFE // must stay the highest real code: chords sort it last

	NoKey Keycode = 0xFF
)

// IsSpecial reports whether k is one of the firmware-private codes.
func IsSpecial(k Keycode) bool { return k >= SpecialStart && k != NoKey }

// IsModifier reports whether k is one of the eight modifier usages.
func IsModifier(k Keycode) bool { return k >= KeyLeftCtrl && k <= KeyRightGUI }

// IsMouse reports whether k is a mouse emulation code.
func IsMouse(k Keycode) bool { return k >= MouseButton1 && k <= MouseRight }

// NoRemap reports whether k controls the meaning of other keys and therefore
// can not be reassigned by onboard remapping.
func NoRemap(k Keycode) bool { return k >= LayerLock && k != NoKey }

// IsLayerShift reports whether k is a momentary or locking layer key.
func IsLayerShift(k Keycode) bool {
	return k == LayerLock || k == KeypadShift || k == FunctionShift
}

// KeyName maps usage codes to the names accepted in board files.
var KeyName = map[Keycode]string{
	KeyA: "A", KeyB: "B", KeyC: "C", KeyD: "D", KeyE: "E", KeyF: "F", KeyG: "G",
	KeyH: "H", KeyI: "I", KeyJ: "J", KeyK: "K", KeyL: "L", KeyM: "M", KeyN: "N",
	KeyO: "O", KeyP: "P", KeyQ: "Q", KeyR: "R", KeyS: "S", KeyT: "T", KeyU: "U",
	KeyV: "V", KeyW: "W", KeyX: "X", KeyY: "Y", KeyZ: "Z",

	Key1: "1", Key2: "2", Key3: "3", Key4: "4", Key5: "5",
	Key6: "6", Key7: "7", Key8: "8", Key9: "9", Key0: "0",

	KeyEnter: "Enter", KeyEscape: "Escape", KeyBackspace: "Backspace", KeyTab: "Tab",
	KeySpace: "Space", KeyMinus: "Minus", KeyEqual: "Equal", KeyLeftBrace: "LeftBrace",
	KeyRightBrace: "RightBrace", KeyBackslash: "Backslash", KeySemicolon: "Semicolon",
	KeyApostrophe: "Apostrophe", KeyGrave: "Grave", KeyComma: "Comma", KeyPeriod: "Period",
	KeySlash: "Slash", KeyCapsLock: "CapsLock",

	KeyF1: "F1", KeyF2: "F2", KeyF3: "F3", KeyF4: "F4", KeyF5: "F5", KeyF6: "F6",
	KeyF7: "F7", KeyF8: "F8", KeyF9: "F9", KeyF10: "F10", KeyF11: "F11", KeyF12: "F12",

	KeyPrintScreen: "PrintScreen", KeyScrollLock: "ScrollLock", KeyPause: "Pause",
	KeyInsert: "Insert", KeyHome: "Home", KeyPageUp: "PageUp", KeyDelete: "Delete",
	KeyEnd: "End", KeyPageDown: "PageDown",
	KeyRight: "Right", KeyLeft: "Left", KeyDown: "Down", KeyUp: "Up",

	KeyNumLock: "NumLock", KeyKpSlash: "Kp/", KeyKpAsterisk: "Kp*", KeyKpMinus: "Kp-",
	KeyKpPlus: "Kp+", KeyKpEnter: "KpEnter", KeyKp1: "Kp1", KeyKp2: "Kp2", KeyKp3: "Kp3",
	KeyKp4: "Kp4", KeyKp5: "Kp5", KeyKp6: "Kp6", KeyKp7: "Kp7", KeyKp8: "Kp8",
	KeyKp9: "Kp9", KeyKp0: "Kp0", KeyKpDot: "Kp.", KeyKpEqual: "Kp=",

	KeyNonUSBackslash: "NonUSBackslash", KeyApplication: "Application",
	KeyMute: "Mute", KeyVolumeUp: "VolumeUp", KeyVolumeDown: "VolumeDown",

	KeyLeftCtrl: "LeftCtrl", KeyLeftShift: "LeftShift", KeyLeftAlt: "LeftAlt",
	KeyLeftGUI: "LeftGUI", KeyRightCtrl: "RightCtrl", KeyRightShift: "RightShift",
	KeyRightAlt: "RightAlt", KeyRightGUI: "RightGUI",

	MouseButton1: "MouseButton1", MouseButton2: "MouseButton2", MouseButton3: "MouseButton3",
	MouseButton4: "MouseButton4", MouseButton5: "MouseButton5",
	MouseForward: "MouseForward", MouseBack: "MouseBack",
	MouseLeft: "MouseLeft", MouseRight: "MouseRight",

	LayerLock: "LayerLock", KeypadShift: "KeypadShift", FunctionShift: "FunctionShift",
	MacroShift: "MacroShift", Program: "Program",

	NoKey: "None",
}

var keyByName = func() map[string]Keycode {
	m := make(map[string]Keycode, len(KeyName))
	for k, n := range KeyName {
		m[strings.ToLower(n)] = k
	}
	return m
}()

// KeyByName resolves a board-file key name (case insensitive). Raw codes
// may be given in hex ("0x9A").
func KeyByName(name string) (Keycode, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if k, ok := keyByName[n]; ok {
		return k, true
	}
	if strings.HasPrefix(n, "0x") {
		v, err := strconv.ParseUint(n[2:], 16, 8)
		if err == nil {
			return Keycode(v), true
		}
	}
	return 0, false
}

// Name returns a printable name for k, falling back to its hex value.
func Name(k Keycode) string {
	if n, ok := KeyName[k]; ok {
		return n
	}
	const hexdigits = "0123456789ABCDEF"
	return "0x" + string([]byte{hexdigits[k>>4], hexdigits[k&0x0f]})
}

// CharToKey maps printable ASCII to usage codes; use with ShiftChars.
var CharToKey = map[byte]Keycode{
	'a': KeyA, 'b': KeyB, 'c': KeyC, 'd': KeyD, 'e': KeyE, 'f': KeyF, 'g': KeyG,
	'h': KeyH, 'i': KeyI, 'j': KeyJ, 'k': KeyK, 'l': KeyL, 'm': KeyM, 'n': KeyN,
	'o': KeyO, 'p': KeyP, 'q': KeyQ, 'r': KeyR, 's': KeyS, 't': KeyT, 'u': KeyU,
	'v': KeyV, 'w': KeyW, 'x': KeyX, 'y': KeyY, 'z': KeyZ,

	'A': KeyA, 'B': KeyB, 'C': KeyC, 'D': KeyD, 'E': KeyE, 'F': KeyF, 'G': KeyG,
	'H': KeyH, 'I': KeyI, 'J': KeyJ, 'K': KeyK, 'L': KeyL, 'M': KeyM, 'N': KeyN,
	'O': KeyO, 'P': KeyP, 'Q': KeyQ, 'R': KeyR, 'S': KeyS, 'T': KeyT, 'U': KeyU,
	'V': KeyV, 'W': KeyW, 'X': KeyX, 'Y': KeyY, 'Z': KeyZ,

	'1': Key1, '2': Key2, '3': Key3, '4': Key4, '5': Key5,
	'6': Key6, '7': Key7, '8': Key8, '9': Key9, '0': Key0,
	'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
	'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,

	'-': KeyMinus, '=': KeyEqual, '[': KeyLeftBrace, ']': KeyRightBrace,
	'\\': KeyBackslash, ';': KeySemicolon, '\'': KeyApostrophe, '`': KeyGrave,
	',': KeyComma, '.': KeyPeriod, '/': KeySlash,
	'_': KeyMinus, '+': KeyEqual, '{': KeyLeftBrace, '}': KeyRightBrace,
	'|': KeyBackslash, ':': KeySemicolon, '"': KeyApostrophe, '~': KeyGrave,
	'<': KeyComma, '>': KeyPeriod, '?': KeySlash,

	' ': KeySpace, '\n': KeyEnter, '\t': KeyTab,
}

// ShiftChars lists the characters that need Shift held.
var ShiftChars = map[byte]bool{
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true,
	'H': true, 'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true,
	'O': true, 'P': true, 'Q': true, 'R': true, 'S': true, 'T': true, 'U': true,
	'V': true, 'W': true, 'X': true, 'Y': true, 'Z': true,
	'!': true, '@': true, '#': true, '$': true, '%': true,
	'^': true, '&': true, '*': true, '(': true, ')': true,
	'_': true, '+': true, '{': true, '}': true, '|': true,
	':': true, '"': true, '~': true, '<': true, '>': true, '?': true,
}
