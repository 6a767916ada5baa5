// Package otoplayer plays synthesized speech through oto. It only covers
// output; pair it with a capture device for voice input.
package otoplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/koscakluka/ema-companion/core/audio"
)

const defaultBufferDuration = 100 * time.Millisecond

type Player struct {
	sampleRate int
	source     audio.EncodingInfo
	buffer     time.Duration

	otoCtx *oto.Context
	player *oto.Player
	queue  audio.PlaybackQueue
}

type PlayerOption func(*Player)

func WithSampleRate(rate int) PlayerOption {
	return func(p *Player) {
		p.sampleRate = rate
	}
}

// WithSourceEncoding describes raw (non-WAV) audio passed to Play.
func WithSourceEncoding(info audio.EncodingInfo) PlayerOption {
	return func(p *Player) {
		p.source = info
	}
}

// WithBufferDuration sets how much audio oto buffers ahead of the speaker.
func WithBufferDuration(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.buffer = d
	}
}

// NewPlayer opens the oto context. Only one oto context may exist per
// process.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	p := &Player{
		sampleRate: audio.DefaultSampleRate,
		source:     audio.GetDefaultEncodingInfo(),
		buffer:     defaultBufferDuration,
	}
	for _, opt := range opts {
		opt(p)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   p.sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   p.buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oto context: %w", err)
	}
	<-ready

	p.otoCtx = otoCtx
	p.player = otoCtx.NewPlayer(queueReader{queue: &p.queue})
	p.player.Play()
	return p, nil
}

// Play converts data to the output format and blocks until it was handed to
// the speaker or ctx is done.
func (p *Player) Play(ctx context.Context, data []byte) error {
	pcm, err := audio.PreparePCM16(data, p.source, p.sampleRate)
	if err != nil {
		return fmt.Errorf("failed to prepare audio for playback: %w", err)
	}
	return p.queue.Play(ctx, pcm)
}

func (p *Player) Close() error {
	p.queue.Clear()
	if p.player == nil {
		return nil
	}
	err := p.player.Close()
	p.player = nil
	return err
}

func (p *Player) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: p.sampleRate, Format: audio.EncodingLinear16}
}

// queueReader feeds oto continuously, padding with silence so the player
// never reaches EOF.
type queueReader struct {
	queue *audio.PlaybackQueue
}

func (r queueReader) Read(p []byte) (int, error) {
	r.queue.Fill(p)
	return len(p), nil
}
