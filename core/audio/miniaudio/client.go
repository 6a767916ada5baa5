// Package miniaudio plays synthesized speech and captures the microphone
// through miniaudio.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-companion/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	sampleRate   int
	source       audio.EncodingInfo

	playbackClient
	captureClient
}

type ClientOption func(*Client)

// WithSampleRate sets the rate both devices run at. Capture frames are
// delivered at this rate.
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
	client := &Client{
		sampleRate: audio.DefaultSampleRate,
		source:     audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return client, nil
}

// Play converts data to the device format and blocks until it was played or
// ctx is done.
func (c *Client) Play(ctx context.Context, data []byte) error {
	pcm, err := audio.PreparePCM16(data, c.source, c.sampleRate)
	if err != nil {
		return fmt.Errorf("failed to prepare audio for playback: %w", err)
	}
	return c.playbackClient.Play(ctx, pcm)
}

// StartCapture starts the microphone. Capture stops on StopCapture or when
// ctx is done.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return err
	}
	context.AfterFunc(ctx, func() {
		if err := c.captureClient.Stop(); err != nil {
			logger.Warn("failed to stop capture device", "error", err)
		}
	})
	return nil
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Format:     audio.EncodingLinear16,
	}
}
