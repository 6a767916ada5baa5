// Package voiceactivity turns a continuous microphone stream into
// recognized utterances.
//
// A [Gate] keeps a rolling buffer of captured audio and follows speech and
// silence classifications from a [Detector]:
//
//	Idle -> Recording -> (silence timeout) -> Locked (recognizing) -> Idle
//
// When barge-in is enabled, the first speech detected while output or user
// input is active raises an interruption, once per speech episode.
package voiceactivity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateLocked:
		return "locked"
	}
	return "unknown"
}

// Recognizer turns a WAV recording (mono PCM16) into text.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte) (string, error)
}

// Capturer delivers microphone audio as mono PCM16 frames.
type Capturer interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Activity reports what the rest of the companion is doing.
type Activity interface {
	IsOutputActive() bool
	IsUserInputActive() bool
}

var ErrAlreadyCapturing = errors.New("capture already started")

type Gate struct {
	config     Config
	detector   Detector
	recognizer Recognizer
	capturer   Capturer
	activity   Activity
	bus        *events.Bus

	onRecognized func(ctx context.Context, text string)
	onBargeIn    func()

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	state          State
	paused         bool
	bargeIn        bool
	bargedIn       bool
	buffer         []byte
	recordingStart int
	silenceTimer   *time.Timer
	timerSeq       uint64
	lockEpisode    uint64
}

type GateOption func(*Gate)

func WithConfig(config Config) GateOption {
	return func(g *Gate) {
		g.config = config
	}
}

func WithCapturer(capturer Capturer) GateOption {
	return func(g *Gate) {
		g.capturer = capturer
	}
}

func WithActivity(activity Activity) GateOption {
	return func(g *Gate) {
		g.activity = activity
	}
}

func WithEventBus(bus *events.Bus) GateOption {
	return func(g *Gate) {
		g.bus = bus
	}
}

// WithOnRecognized registers the callback that receives recognized text. It
// runs on the recognition goroutine and the gate stays locked until it
// returns, unless a barge-in or Resume unlocks it first.
func WithOnRecognized(onRecognized func(ctx context.Context, text string)) GateOption {
	return func(g *Gate) {
		g.onRecognized = onRecognized
	}
}

// WithOnBargeIn registers the callback raised when speech interrupts active
// output or user input processing.
func WithOnBargeIn(onBargeIn func()) GateOption {
	return func(g *Gate) {
		g.onBargeIn = onBargeIn
	}
}

func NewGate(detector Detector, recognizer Recognizer, opts ...GateOption) *Gate {
	g := &Gate{
		config:     DefaultConfig(),
		detector:   detector,
		recognizer: recognizer,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.config = g.config.withDefaults()
	g.bargeIn = g.config.BargeIn
	if g.detector == nil {
		g.detector = NewEnergyDetector(DefaultEnergyThreshold)
	}

	return g
}

// StartCapture starts the detector and, if configured, the capture device.
// Without a capturer audio has to be pushed with Feed.
func (g *Gate) StartCapture(ctx context.Context) error {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return ErrAlreadyCapturing
	}
	ctx, cancel := context.WithCancel(ctx)
	g.ctx, g.cancel = ctx, cancel
	g.mu.Unlock()

	if err := g.detector.Start(ctx, g.handleActivity); err != nil {
		g.resetCapture()
		return fmt.Errorf("failed to start voice activity detector: %w", err)
	}

	if g.capturer != nil {
		if err := g.capturer.StartCapture(ctx, g.Feed); err != nil {
			_ = g.detector.Stop()
			g.resetCapture()
			return fmt.Errorf("failed to start audio capture: %w", err)
		}
	}

	logger.Info("voice capture started", "barge_in", g.BargeIn())
	return nil
}

// StopCapture stops capture and detection and drops any recording in
// progress. A recognition already submitted still completes.
func (g *Gate) StopCapture() error {
	var errs []error
	if g.capturer != nil {
		if err := g.capturer.StopCapture(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audio capture: %w", err))
		}
	}
	if err := g.detector.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop voice activity detector: %w", err))
	}

	g.mu.Lock()
	g.stopSilenceTimerLocked()
	if g.state == StateRecording {
		g.state = StateIdle
	}
	g.buffer = nil
	g.mu.Unlock()

	g.resetCapture()
	return errors.Join(errs...)
}

func (g *Gate) resetCapture() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	g.ctx, g.cancel = context.Background(), nil
}

// Pause stops accepting audio in cooperative mode. With barge-in enabled the
// gate keeps listening so speech can still interrupt.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = true
}

// Resume clears the pause and unlocks a gate held by a finished recognition.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = false
	if g.state == StateLocked {
		g.state = StateIdle
		g.lockEpisode++
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

func (g *Gate) BargeIn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.bargeIn
}

// SetBargeIn switches between barge-in and cooperative mode.
func (g *Gate) SetBargeIn(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bargeIn = enabled
	logger.Info("voice barge-in updated", "enabled", enabled)
}

// Feed appends a PCM16 frame to the rolling buffer and hands it to the
// detector.
func (g *Gate) Feed(frame []byte) {
	if len(frame) == 0 {
		return
	}

	g.mu.Lock()
	if !g.bargeIn && g.ignoringLocked() {
		g.mu.Unlock()
		return
	}

	g.buffer = append(g.buffer, frame...)
	if excess := len(g.buffer) - g.config.encoding().Bytes(g.config.MaxBuffer); excess > 0 {
		g.buffer = g.buffer[excess:]
		if g.state == StateRecording {
			g.recordingStart = max(0, g.recordingStart-excess)
		}
	}
	g.mu.Unlock()

	if err := g.detector.Feed(frame); err != nil {
		logger.Debug("failed to feed voice activity detector", "error", err)
	}
}

// ignoringLocked reports whether cooperative mode drops activity right now.
func (g *Gate) ignoringLocked() bool {
	if g.paused || g.state == StateLocked {
		return true
	}
	return g.activity != nil && (g.activity.IsOutputActive() || g.activity.IsUserInputActive())
}

func (g *Gate) handleActivity(speech bool) {
	if speech {
		g.handleSpeech()
	} else {
		g.handleSilence()
	}
}

func (g *Gate) handleSpeech() {
	g.mu.Lock()

	bargeIn := false
	if !g.bargeIn {
		if g.ignoringLocked() {
			g.mu.Unlock()
			return
		}
	} else if g.activity != nil && !g.bargedIn &&
		(g.activity.IsOutputActive() || g.activity.IsUserInputActive()) {
		bargeIn = true
		g.bargedIn = true
		if g.state == StateLocked {
			g.state = StateIdle
			g.lockEpisode++
		}
	}

	started := false
	if g.state != StateLocked {
		g.stopSilenceTimerLocked()
		if g.state == StateIdle {
			g.state = StateRecording
			g.recordingStart = len(g.buffer)
			started = true
		}
	}
	onBargeIn := g.onBargeIn
	g.mu.Unlock()

	if bargeIn {
		logger.Info("speech detected during output, interrupting")
		if onBargeIn != nil {
			onBargeIn()
		}
	}
	if started {
		g.publish(events.NewUserSpeechStarted())
	}
}

func (g *Gate) handleSilence() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.bargeIn && g.ignoringLocked() {
		return
	}
	if g.state != StateRecording || g.silenceTimer != nil {
		return
	}

	seq := g.timerSeq
	g.silenceTimer = time.AfterFunc(g.config.SilenceTimeout, func() {
		g.finishRecording(seq)
	})
}

func (g *Gate) stopSilenceTimerLocked() {
	if g.silenceTimer != nil {
		g.silenceTimer.Stop()
		g.silenceTimer = nil
	}
	g.timerSeq++
}

func (g *Gate) finishRecording(seq uint64) {
	g.mu.Lock()
	if seq != g.timerSeq || g.state != StateRecording {
		g.mu.Unlock()
		return
	}
	g.silenceTimer = nil
	g.timerSeq++

	g.state = StateLocked
	g.lockEpisode++
	episode := g.lockEpisode
	g.bargedIn = false

	encoding := g.config.encoding()
	preRoll := encoding.Bytes(g.config.PreRoll)
	start := max(0, g.recordingStart-preRoll)
	pcm := append([]byte(nil), g.buffer[start:]...)
	if len(g.buffer) > preRoll {
		g.buffer = append([]byte(nil), g.buffer[len(g.buffer)-preRoll:]...)
	}
	ctx := g.ctx
	g.mu.Unlock()

	duration := encoding.Duration(len(pcm))
	if duration < g.config.MinRecording {
		logger.Debug("recording too short, discarding", "duration", duration.String())
		g.publish(events.NewUserSpeechEnded(duration.Seconds(), true))
		g.unlock(episode)
		return
	}

	g.publish(events.NewUserSpeechEnded(duration.Seconds(), false))
	g.recognize(ctx, episode, pcm)
}

func (g *Gate) recognize(ctx context.Context, episode uint64, pcm []byte) {
	defer g.unlock(episode)

	if g.recognizer == nil {
		logger.Warn("no recognizer configured, dropping recording")
		return
	}

	ctx, span := tracer.Start(ctx, "recognize speech")
	span.SetAttributes(attribute.Int("recording.bytes", len(pcm)))
	text, err := g.recognizer.Recognize(ctx, audio.EncodeWAV(pcm, g.config.SampleRate))
	if err != nil {
		err = fmt.Errorf("failed to recognize speech: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		logger.Error("speech recognition failed", "error", err)
		return
	}
	span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Info("speech recognition returned no text")
		return
	}

	g.publish(events.NewUserTranscriptFinal(text))
	if g.onRecognized != nil {
		g.onRecognized(ctx, text)
	}
}

// unlock returns to Idle unless the lock episode was already ended by a
// barge-in or Resume.
func (g *Gate) unlock(episode uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lockEpisode == episode && g.state == StateLocked {
		g.state = StateIdle
	}
}

func (g *Gate) publish(event events.Event) {
	if g.bus != nil {
		g.bus.Publish(event)
	}
}
