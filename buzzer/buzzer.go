// Package buzzer models the keyboard's piezo buzzer: a tone that runs for a
// number of milliseconds and is counted down by the tick loop.
package buzzer

import "sync"

// Tone is a buzzer period divider. Lower values are higher pitched.
type Tone = uint8

// Tones used by the firmware.
const (
	DefaultTone Tone = 100
	OnTone      Tone = 70
	OffTone     Tone = 150
	SuccessTone Tone = 80
	FailureTone Tone = 200
)

// Hz returns the audible frequency of t; one tone unit is 4 microseconds.
func Hz(t Tone) float64 {
	if t == 0 {
		return 0
	}
	return 250000 / float64(t)
}

// Buzzer is the driver contract used by the core.
type Buzzer interface {
	// Start runs the buzzer at tone t for ms milliseconds, replacing any
	// running tone.
	Start(ms uint16, t Tone)
	// Beep starts a short click at the default tone.
	Beep()
	// Update counts down a running tone by elapsed milliseconds.
	Update(elapsed uint32)
	// Active reports whether a tone is running.
	Active() bool
}

// Buzz is one started tone, timestamped by the tracker's own clock.
type Buzz struct {
	At   uint32 `yaml:"at"`
	Ms   uint16 `yaml:"ms"`
	Tone Tone   `yaml:"tone"`
}

// BeepMs is the duration of a default click: two periods of the default
// tone, rounded.
const BeepMs = (2*1000 + uint16(DefaultTone)/2 + 1) / uint16(DefaultTone)

// Tracker implements Buzzer in software and records every started tone.
type Tracker struct {
	mu        sync.Mutex
	now       uint32
	remaining uint16
	tone      Tone
	history   []Buzz
	limit     int
	notify    func(Buzz)
}

// NewTracker returns a tracker keeping at most limit tones of history
// (0 for unbounded). notify, if set, is called for every started tone.
func NewTracker(limit int, notify func(Buzz)) *Tracker {
	return &Tracker{limit: limit, notify: notify}
}

// Start implements Buzzer.
func (t *Tracker) Start(ms uint16, tone Tone) {
	t.mu.Lock()
	b := Buzz{At: t.now, Ms: ms, Tone: tone}
	t.remaining = ms
	t.tone = tone
	t.history = append(t.history, b)
	if t.limit > 0 && len(t.history) > t.limit {
		t.history = t.history[len(t.history)-t.limit:]
	}
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify(b)
	}
}

// Beep implements Buzzer.
func (t *Tracker) Beep() { t.Start(BeepMs, DefaultTone) }

// Update implements Buzzer.
func (t *Tracker) Update(elapsed uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now += elapsed
	if t.remaining == 0 {
		return
	}
	if elapsed >= uint32(t.remaining) {
		t.remaining = 0
		return
	}
	t.remaining -= uint16(elapsed)
}

// Active implements Buzzer.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining > 0
}

// Current returns the running tone, zero when silent.
func (t *Tracker) Current() Tone {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining == 0 {
		return 0
	}
	return t.tone
}

// History returns a copy of the recorded tones.
func (t *Tracker) History() []Buzz {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Buzz, len(t.history))
	copy(out, t.history)
	return out
}

// Silent is a Buzzer that does nothing.
type Silent struct{}

func (Silent) Start(uint16, Tone) {}
func (Silent) Beep()              {}
func (Silent) Update(uint32)      {}
func (Silent) Active() bool       { return false }
