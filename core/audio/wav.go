package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

var ErrInvalidWAV = errors.New("invalid wav data")

// EncodeWAV wraps mono PCM16 little endian samples in a canonical WAV header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WAVInfo is the subset of a WAV format chunk the companion cares about.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DecodeWAV returns the data chunk of a PCM WAV file. Unknown chunks are
// skipped.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, ErrInvalidWAV
	}

	r := bytes.NewReader(data[12:])
	for {
		var header struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, info, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
			}
			return nil, info, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
		}

		switch string(header.ID[:]) {
		case "fmt ":
			var format struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return nil, info, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
			}
			info = WAVInfo{
				SampleRate:    int(format.SampleRate),
				Channels:      int(format.Channels),
				BitsPerSample: int(format.BitsPerSample),
			}
			if rest := int64(header.Size) - 16; rest > 0 {
				if _, err := r.Seek(rest, io.SeekCurrent); err != nil {
					return nil, info, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
				}
			}
		case "data":
			start := len(data) - r.Len()
			end := start + int(header.Size)
			// streamed files often carry a placeholder size
			if end > len(data) || header.Size == 0 {
				end = len(data)
			}
			return data[start:end], info, nil
		default:
			if _, err := r.Seek(int64(header.Size), io.SeekCurrent); err != nil {
				return nil, info, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
			}
		}
	}
}

// PCM16Samples decodes little endian PCM16 bytes. A trailing odd byte is
// ignored.
func PCM16Samples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// PCM16Bytes encodes samples as little endian PCM16.
func PCM16Bytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(sample))
	}
	return pcm
}
