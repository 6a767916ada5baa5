package deepgram

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/koscakluka/ema-companion/core/audio"
)

var supportedSampleRates = []int{8000, 16000, 24000, 32000, 44100, 48000}

// listenEncoding describes raw audio sent to the listen endpoint.
type listenEncoding struct {
	format     string
	sampleRate int
	channels   int
}

// encodingForRecording validates a decoded WAV recording. Only mono PCM16 is
// streamed; the WAV header is never sent.
func encodingForRecording(info audio.WAVInfo) (listenEncoding, error) {
	if info.BitsPerSample != 16 {
		return listenEncoding{}, fmt.Errorf("unsupported sample size %d bits, expected 16", info.BitsPerSample)
	}
	if info.Channels != 1 {
		return listenEncoding{}, fmt.Errorf("unsupported channel count %d, expected mono", info.Channels)
	}
	if !slices.Contains(supportedSampleRates, info.SampleRate) {
		return listenEncoding{}, fmt.Errorf("unsupported sample rate %d", info.SampleRate)
	}

	return listenEncoding{
		format:     audio.EncodingLinear16.Name(),
		sampleRate: info.SampleRate,
		channels:   info.Channels,
	}, nil
}

func (e listenEncoding) apply(query url.Values) {
	query.Set("encoding", e.format)
	query.Set("sample_rate", strconv.Itoa(e.sampleRate))
	query.Set("channels", strconv.Itoa(e.channels))
}

// chunkSize is the byte size of ms milliseconds of audio.
func (e listenEncoding) chunkSize(ms int) int {
	return e.sampleRate * e.channels * 2 * ms / 1000
}
