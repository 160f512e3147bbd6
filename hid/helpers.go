package hid

// CharToHID converts an ASCII character to its usage code, 0 if unsupported.
func CharToHID(c byte) Keycode {
	if code, ok := CharToKey[c]; ok {
		return code
	}
	return KeyNone
}

// NeedsShift returns true if the character requires the Shift modifier.
func NeedsShift(c byte) bool {
	return ShiftChars[c]
}

// TypeChar converts a single character to a press/release report pair.
// Unsupported characters yield two empty reports.
func TypeChar(c byte) (press, release KeyboardReport) {
	code := CharToHID(c)
	if code == KeyNone {
		return KeyboardReport{}, KeyboardReport{}
	}
	if NeedsShift(c) {
		press.Modifier = ModLeftShift
	}
	press.Keys[0] = code
	return press, KeyboardReport{}
}

// TypeString converts s into alternating press/release reports.
//
// Example:
//
//	reports := TypeString("Hi!")
//	// [Shift+H, release, i, release, Shift+1, release]
func TypeString(s string) []KeyboardReport {
	out := make([]KeyboardReport, 0, 2*len(s))
	for i := 0; i < len(s); i++ {
		p, r := TypeChar(s[i])
		out = append(out, p, r)
	}
	return out
}
