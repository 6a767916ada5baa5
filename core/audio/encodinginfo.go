package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: EncodingLinear16}
}

// EncodingInfo describes raw mono audio exchanged between synthesizers,
// recognizers and devices.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond returns the byte rate of mono audio in this encoding, or 0
// when the format is unknown.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	return e.SampleRate * size
}

// Duration returns how long n bytes of audio in this encoding play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	rate := e.BytesPerSecond()
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Bytes returns the number of bytes that hold d of audio, aligned to whole
// samples.
func (e EncodingInfo) Bytes(d time.Duration) int {
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	samples := int(d * time.Duration(e.SampleRate) / time.Second)
	return samples * size
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
