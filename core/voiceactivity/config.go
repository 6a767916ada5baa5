package voiceactivity

import (
	"time"

	"github.com/koscakluka/ema-companion/core/audio"
)

// Config holds the gate thresholds. Audio is mono PCM16 at SampleRate.
type Config struct {
	SampleRate int `json:"sample_rate"`

	// PreRoll is how much audio before the detected speech start is included
	// in a recording.
	PreRoll time.Duration `json:"pre_roll"`

	// SilenceTimeout is how long silence must last before a recording ends.
	SilenceTimeout time.Duration `json:"silence_timeout"`

	// MinRecording is the shortest recording submitted for recognition.
	// Shorter ones are discarded as noise.
	MinRecording time.Duration `json:"min_recording"`

	// MaxBuffer caps the rolling capture buffer.
	MaxBuffer time.Duration `json:"max_buffer"`

	// BargeIn lets speech interrupt active output. Without it the gate ignores
	// all activity while output or user input is active.
	BargeIn bool `json:"barge_in"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     audio.DefaultSampleRate,
		PreRoll:        time.Second,
		SilenceTimeout: 500 * time.Millisecond,
		MinRecording:   500 * time.Millisecond,
		MaxBuffer:      30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = defaults.SilenceTimeout
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = defaults.MaxBuffer
	}
	if c.PreRoll < 0 {
		c.PreRoll = 0
	}
	if c.MinRecording < 0 {
		c.MinRecording = 0
	}
	return c
}

func (c Config) encoding() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: c.SampleRate, Format: audio.EncodingLinear16}
}
