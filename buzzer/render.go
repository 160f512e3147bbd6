package buzzer

import (
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// SampleRate is the rate used for rendered buzzer audio.
const SampleRate = beep.SampleRate(44100)

// square is a fixed length square wave, the shape a piezo driven by PWM
// produces.
type square struct {
	freq     float64
	phase    float64
	position int
	samples  int
	rate     beep.SampleRate
	amp      float64
}

func newSquare(freq float64, d time.Duration, rate beep.SampleRate) beep.Streamer {
	return &square{freq: freq, samples: rate.N(d), rate: rate, amp: 0.4}
}

func (s *square) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.position >= s.samples {
			return i, i > 0
		}
		val := s.amp
		if s.phase >= 0.5 {
			val = -s.amp
		}
		samples[i][0] = val
		samples[i][1] = val
		s.phase += s.freq / float64(s.rate)
		s.phase -= float64(int(s.phase))
		s.position++
	}
	return len(samples), true
}

func (s *square) Err() error { return nil }

// Render lays the buzzes out on a timeline and returns a streamer playing
// them. A buzz is cut short when the next one starts, as on the hardware.
func Render(buzzes []Buzz, rate beep.SampleRate) beep.Streamer {
	var parts []beep.Streamer
	var cursor uint32
	for i, b := range buzzes {
		if b.At > cursor {
			parts = append(parts, beep.Silence(rate.N(time.Duration(b.At-cursor)*time.Millisecond)))
			cursor = b.At
		}
		ms := uint32(b.Ms)
		if i+1 < len(buzzes) && buzzes[i+1].At < cursor+ms {
			ms = buzzes[i+1].At - cursor
		}
		if ms == 0 {
			continue
		}
		parts = append(parts, newSquare(Hz(b.Tone), time.Duration(ms)*time.Millisecond, rate))
		cursor += ms
	}
	return beep.Seq(parts...)
}

// WriteWAV renders buzzes as a mono 16 bit WAV file.
func WriteWAV(w io.WriteSeeker, buzzes []Buzz) error {
	format := beep.Format{SampleRate: SampleRate, NumChannels: 1, Precision: 2}
	return wav.Encode(w, Render(buzzes, SampleRate), format)
}
