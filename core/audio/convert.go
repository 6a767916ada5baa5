package audio

import (
	"errors"
	"fmt"
)

var ErrUnsupportedAudio = errors.New("unsupported audio format")

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// PreparePCM16 turns synthesized audio into mono PCM16 at sampleRate. WAV
// input is decoded and downmixed; raw input is taken to be in source.
func PreparePCM16(data []byte, source EncodingInfo, sampleRate int) ([]byte, error) {
	pcm, from := data, source.SampleRate
	if IsWAV(data) {
		decoded, info, err := DecodeWAV(data)
		if err != nil {
			return nil, err
		}
		if info.BitsPerSample != 16 {
			return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedAudio, info.BitsPerSample)
		}
		pcm, from = Downmix(decoded, info.Channels), info.SampleRate
	} else if source.Format != EncodingLinear16 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, source.Format.Name())
	}

	if from <= 0 || from == sampleRate {
		return pcm, nil
	}
	return Resample(pcm, from, sampleRate), nil
}

// Downmix averages interleaved PCM16 channels into mono.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}

	samples := PCM16Samples(pcm)
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		sum := 0
		for c := range channels {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return PCM16Bytes(mono)
}

// Resample converts mono PCM16 between sample rates with linear
// interpolation.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}

	in := PCM16Samples(pcm)
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, int(int64(len(in))*int64(to)/int64(from)))
	for i := range out {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return PCM16Bytes(out)
}
