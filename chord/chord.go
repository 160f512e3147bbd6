// Package chord recognizes trigger key combinations. Chords are stored in a
// persistent index mapping a sorted set of logical keys to a program or
// macro.
package chord

import (
	"slices"
	"strings"

	"github.com/Alia5/chordkb/hid"
)

// MaxKeys is the largest chord that can be registered.
const MaxKeys = 4

// Chord is an ascending set of logical keys padded with hid.NoKey.
type Chord [MaxKeys]uint8

// Empty is the chord with no keys.
var Empty = Chord{hid.NoKey, hid.NoKey, hid.NoKey, hid.NoKey}

// Classifier tells chord formatting which logical keys are layer keys and
// which are modifiers.
type Classifier interface {
	IsLayerShift(l uint8) bool
	IsModifier(l uint8) bool
}

// Format sorts keys into a chord. It fails for an empty set, for more than
// MaxKeys keys and for sets consisting only of layer keys.
func Format(keys []uint8, cls Classifier) (Chord, bool) {
	if len(keys) == 0 || len(keys) > MaxKeys {
		return Empty, false
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	onlyLayer := true
	for _, k := range sorted {
		if k == hid.NoKey {
			return Empty, false
		}
		if !cls.IsLayerShift(k) {
			onlyLayer = false
		}
	}
	if onlyLayer {
		return Empty, false
	}
	c := Empty
	copy(c[:], sorted)
	return c, true
}

// Single returns the one key chord of k.
func Single(k uint8) Chord {
	c := Empty
	c[0] = k
	return c
}

// Len is the number of keys in c.
func (c Chord) Len() int {
	n := 0
	for _, k := range c {
		if k == hid.NoKey {
			break
		}
		n++
	}
	return n
}

// Keys returns the keys of c without padding.
func (c Chord) Keys() []uint8 {
	return slices.Clone(c[:c.Len()])
}

// String lists the keys of c, for logs.
func (c Chord) String() string {
	var b strings.Builder
	for i, k := range c.Keys() {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(hid.Name(k))
	}
	return b.String()
}

// MainKey is the key a chord is reported as: its first non-modifier key, or
// its first key when every key is a modifier.
func MainKey(c Chord, cls Classifier) uint8 {
	for _, k := range c.Keys() {
		if !cls.IsModifier(k) {
			return k
		}
	}
	return c[0]
}

// Kind discriminates chord payloads.
type Kind uint8

const (
	KindProgram Kind = iota
	KindMacro
)

func (k Kind) String() string {
	if k == KindMacro {
		return "macro"
	}
	return "program"
}

// Payload is what a chord triggers: a program slot or a macro data offset.
type Payload struct {
	Kind  Kind
	Value uint16
}

// Program returns the payload starting program slot i.
func Program(i uint16) Payload { return Payload{Kind: KindProgram, Value: i} }

// Macro returns the payload playing the macro stored at offset.
func Macro(offset uint16) Payload { return Payload{Kind: KindMacro, Value: offset} }

const macroBit = 0x8000

func (p Payload) encode() uint16 {
	v := p.Value &^ macroBit
	if p.Kind == KindMacro {
		v |= macroBit
	}
	return v
}

func decodePayload(v uint16) Payload {
	if v&macroBit != 0 {
		return Macro(v &^ macroBit)
	}
	return Program(v)
}
