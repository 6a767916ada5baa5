// Package portaudio plays synthesized speech and captures the microphone on
// a single full-duplex PortAudio stream.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-companion/core/audio"
)

const defaultBufferSize = 480

type Client struct {
	bufferSize int
	sampleRate int
	source     audio.EncodingInfo

	stream *portaudio.Stream
	queue  audio.PlaybackQueue
	outBuf []byte

	onAudioMu sync.RWMutex
	onAudio   func(audio []byte)
}

type ClientOption func(*Client)

// WithBufferSize sets the frames per buffer of the stream.
func WithBufferSize(frames int) ClientOption {
	return func(c *Client) {
		c.bufferSize = frames
	}
}

func WithSampleRate(rate int) ClientOption {
	return func(c *Client) {
		c.sampleRate = rate
	}
}

// WithSourceEncoding describes raw (non-WAV) audio passed to Play.
func WithSourceEncoding(info audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		c.source = info
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		bufferSize: defaultBufferSize,
		sampleRate: audio.DefaultSampleRate,
		source:     audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outBuf = make([]byte, c.bufferSize*2)

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 1, float64(c.sampleRate), c.bufferSize, c.process)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	c.stream = stream

	return c, nil
}

func (c *Client) process(in, out []int16) {
	c.onAudioMu.RLock()
	onAudio := c.onAudio
	c.onAudioMu.RUnlock()
	if onAudio != nil {
		onAudio(audio.PCM16Bytes(in))
	}

	buf := c.outBuf[:len(out)*2]
	c.queue.Fill(buf)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
}

// Play converts data to the stream format and blocks until it was played or
// ctx is done.
func (c *Client) Play(ctx context.Context, data []byte) error {
	pcm, err := audio.PreparePCM16(data, c.source, c.sampleRate)
	if err != nil {
		return fmt.Errorf("failed to prepare audio for playback: %w", err)
	}
	return c.queue.Play(ctx, pcm)
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.setOnAudio(onAudio)
	context.AfterFunc(ctx, func() { c.setOnAudio(nil) })
	return nil
}

func (c *Client) StopCapture() error {
	c.setOnAudio(nil)
	return nil
}

func (c *Client) setOnAudio(onAudio func(audio []byte)) {
	c.onAudioMu.Lock()
	defer c.onAudioMu.Unlock()

	c.onAudio = onAudio
}

func (c *Client) Close() error {
	c.setOnAudio(nil)
	c.queue.Clear()

	var err error
	if c.stream != nil {
		if stopErr := c.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop portaudio stream: %w", stopErr)
		}
		_ = c.stream.Close()
		c.stream = nil
	}
	_ = portaudio.Terminate()
	return err
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Format:     audio.EncodingLinear16,
	}
}
