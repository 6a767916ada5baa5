// Package speechsynthesis turns assistant text into ordered speech.
//
// A [Pipeline] segments text at punctuation, converts each segment to audio
// on one goroutine and plays the resulting packages on another, strictly in
// the order the segments were produced. Each feed starts or continues a run;
// a run ends exactly once with an [Outcome].
package speechsynthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-companion/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultMaxBufferedAudio = 8

// Synthesizer converts text to audio the Player understands.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays audio to completion. Play must return promptly once ctx is
// done, dropping whatever was not played yet.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Translator rewrites text before it is synthesized.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Outcome int

const (
	OutcomeCompleted Outcome = iota + 1
	OutcomeInterrupted
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeReset:
		return "reset"
	}
	return "unknown"
}

// Package is synthesized audio paired with the segment it was made from.
type Package struct {
	Text  string
	Audio []byte
}

type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	segmenter   Segmenter
	incremental bool
	finalized   bool
	spoken      strings.Builder

	ended   bool
	outcome Outcome
	done    chan struct{}
}

type Pipeline struct {
	synthesizer Synthesizer
	player      Player
	translator  Translator
	bus         *events.Bus

	maxBufferedAudio int

	// emitMu orders run events against Interrupt so an interrupted run never
	// publishes after its ended event.
	emitMu sync.Mutex

	mu              sync.Mutex
	run             *run
	segments        []string
	audio           []Package
	converting      bool
	playing         bool
	dropIncremental bool

	convertSignal chan struct{}
	playSignal    chan struct{}
	closed        chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

type PipelineOption func(*Pipeline)

func WithEventBus(bus *events.Bus) PipelineOption {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

func WithTranslator(translator Translator) PipelineOption {
	return func(p *Pipeline) {
		p.translator = translator
	}
}

// WithMaxBufferedAudio bounds how many converted packages may wait for
// playback before conversion pauses.
func WithMaxBufferedAudio(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBufferedAudio = n
		}
	}
}

// NewPipeline starts the conversion and playback goroutines. A nil
// synthesizer or player makes the pipeline text-only: segments are reported
// as played as soon as they are converted.
func NewPipeline(synthesizer Synthesizer, player Player, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		synthesizer:      synthesizer,
		player:           player,
		maxBufferedAudio: defaultMaxBufferedAudio,
		convertSignal:    make(chan struct{}, 1),
		playSignal:       make(chan struct{}, 1),
		closed:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(2)
	go p.worker("conversion", p.convertSignal, p.convertNext)
	go p.worker("playback", p.playSignal, p.playNext)

	return p
}

// FeedComplete speaks text as a new run, superseding any active run.
// assistant_playback.started is published before the first segment is
// converted.
func (p *Pipeline) FeedComplete(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	p.Reset()

	segments := Segment(text)
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	r := p.startRunLocked()
	p.segments = append(p.segments, segments...)
	p.mu.Unlock()

	logger.Debug("speech run started", "run_id", r.id, "segments", len(segments))
	p.publish(events.NewAssistantPlaybackStarted(r.id))
	p.signal(p.convertSignal)
}

// FeedIncremental appends streamed text to the active run, starting one if
// needed. Chunks are dropped after Interrupt until the next
// FinalizeIncremental, Reset or FeedComplete.
func (p *Pipeline) FeedIncremental(chunk string) {
	if chunk == "" {
		return
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.dropIncremental {
		p.mu.Unlock()
		return
	}
	r := p.run
	started := r == nil || r.ended
	if started {
		r = p.startRunLocked()
	}
	r.incremental = true
	r.finalized = false
	p.segments = append(p.segments, r.segmenter.Push(chunk)...)
	p.mu.Unlock()

	if started {
		logger.Debug("speech run started", "run_id", r.id, "incremental", true)
		p.publish(events.NewAssistantPlaybackStarted(r.id))
	}
	p.signal(p.convertSignal)
}

// FinalizeIncremental flushes the pending remainder of the active run. An
// incremental run cannot complete before it is finalized.
func (p *Pipeline) FinalizeIncremental() {
	p.mu.Lock()
	p.dropIncremental = false
	r := p.run
	if r == nil || r.ended {
		p.mu.Unlock()
		return
	}
	r.finalized = true
	if rest := r.segmenter.Flush(); rest != "" {
		p.segments = append(p.segments, rest)
	}
	completed := p.completeLocked()
	p.mu.Unlock()

	p.signal(p.convertSignal)
	p.finish(completed)
}

// Interrupt cancels conversion, stops playback and clears every queue. It
// always publishes assistant_playback.interrupted first and
// assistant_playback.ended last, even when nothing was playing. The run ends
// with OutcomeInterrupted.
func (p *Pipeline) Interrupt() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	r := p.run
	active := r != nil && !r.ended
	runID := ""
	if active {
		runID = r.id
	}
	p.mu.Unlock()

	p.publish(events.NewAssistantPlaybackInterrupted(runID))

	p.mu.Lock()
	active = active && p.run == r && !r.ended
	spoken := ""
	if active {
		spoken = r.spoken.String()
		p.endLocked(r, OutcomeInterrupted)
	}
	p.dropIncremental = true
	p.mu.Unlock()

	logger.Info("speech interrupted", "run_id", runID, "active", active)
	p.publish(events.NewAssistantPlaybackEnded(runID, spoken, true))
	if active {
		close(r.done)
	}
}

// Reset drops the active run with OutcomeReset. It publishes
// assistant_playback.ended but never assistant_playback.interrupted, so no
// interruption is raised.
func (p *Pipeline) Reset() {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	p.dropIncremental = false
	r := p.run
	if r == nil || r.ended {
		p.mu.Unlock()
		return
	}
	spoken := r.spoken.String()
	p.endLocked(r, OutcomeReset)
	p.mu.Unlock()

	p.publish(events.NewAssistantPlaybackEnded(r.id, spoken, false))
	close(r.done)
}

// IsActive reports whether a run is in progress.
func (p *Pipeline) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.run != nil && !p.run.ended
}

// Wait blocks until the current run, or the last one if none is active, ends.
func (p *Pipeline) Wait(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()

	if r == nil {
		return OutcomeCompleted, nil
	}

	select {
	case <-r.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return r.outcome, nil
	case <-ctx.Done():
		return 0, context.Cause(ctx)
	}
}

// Close resets the active run and stops the goroutines.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.Reset()
		close(p.closed)
		p.wg.Wait()
	})
}

func (p *Pipeline) startRunLocked() *run {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.run = r
	p.dropIncremental = false
	return r
}

func (p *Pipeline) endLocked(r *run, outcome Outcome) {
	r.ended = true
	r.outcome = outcome
	r.cancel()
	r.segmenter.Reset()
	p.segments = nil
	p.audio = nil
}

// completeLocked ends the active run if nothing is left to convert or play.
func (p *Pipeline) completeLocked() *run {
	r := p.run
	if r == nil || r.ended {
		return nil
	}
	if r.incremental && !r.finalized {
		return nil
	}
	if len(p.segments) > 0 || len(p.audio) > 0 || p.converting || p.playing || r.segmenter.Pending() != "" {
		return nil
	}

	p.endLocked(r, OutcomeCompleted)
	return r
}

func (p *Pipeline) finish(r *run) {
	if r == nil {
		return
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	spoken := r.spoken.String()
	p.mu.Unlock()

	logger.Debug("speech run completed", "run_id", r.id)
	p.publish(events.NewAssistantPlaybackEnded(r.id, spoken, false))
	close(r.done)
}

func (p *Pipeline) worker(name string, signal <-chan struct{}, step func() bool) {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case <-signal:
		}

		for p.safeStep(name, step) {
		}
	}
}

func (p *Pipeline) safeStep(name string, step func() bool) (more bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error(fmt.Sprintf("%s worker panicked", name), "panic", fmt.Sprint(recovered))
			more = false
		}
	}()
	return step()
}

func (p *Pipeline) convertNext() bool {
	p.mu.Lock()
	r := p.run
	if r == nil || r.ended || len(p.segments) == 0 || len(p.audio) >= p.maxBufferedAudio {
		p.mu.Unlock()
		return false
	}
	segment := p.segments[0]
	p.segments = p.segments[1:]
	p.converting = true
	p.mu.Unlock()

	pkg, err := p.convert(r.ctx, segment)

	p.mu.Lock()
	p.converting = false
	current := p.run == r && !r.ended
	if current {
		switch {
		case err != nil:
			conversionFailures.Add(context.Background(), 1)
			logger.Warn("failed to convert segment", "run_id", r.id, "error", err)
		case pkg != nil:
			segmentsConverted.Add(context.Background(), 1)
			p.audio = append(p.audio, *pkg)
		}
	}
	completed := p.completeLocked()
	p.mu.Unlock()

	p.signal(p.playSignal)
	p.finish(completed)
	return true
}

func (p *Pipeline) convert(ctx context.Context, segment string) (*Package, error) {
	ctx, span := tracer.Start(ctx, "convert segment")
	defer span.End()

	text := CleanText(segment)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if p.translator != nil {
		if translated, err := p.translator.Translate(ctx, text); err != nil {
			span.RecordError(err)
			logger.Warn("translation failed, speaking original text", "error", err)
		} else if strings.TrimSpace(translated) != "" {
			text = translated
		}
	}
	span.SetAttributes(attribute.String("segment.text", text))

	if p.synthesizer == nil {
		return &Package{Text: segment}, nil
	}

	audio, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		err = fmt.Errorf("error synthesizing segment: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Package{Text: segment, Audio: audio}, nil
}

func (p *Pipeline) playNext() bool {
	p.mu.Lock()
	r := p.run
	if r == nil || r.ended || len(p.audio) == 0 || p.playing {
		p.mu.Unlock()
		return false
	}
	pkg := p.audio[0]
	p.audio = p.audio[1:]
	p.playing = true
	p.mu.Unlock()

	p.signal(p.convertSignal)

	var err error
	if p.player != nil && len(pkg.Audio) > 0 {
		err = p.player.Play(r.ctx, pkg.Audio)
	}

	p.mu.Lock()
	p.playing = false
	current := p.run == r && !r.ended
	if current && err == nil {
		r.spoken.WriteString(pkg.Text)
	}
	p.mu.Unlock()

	if current {
		if err != nil {
			logger.Warn("failed to play segment", "run_id", r.id, "error", err)
		} else {
			p.publishForRun(r, events.NewAssistantPlaybackTranscriptSegment(r.id, pkg.Text))
		}
	}

	p.mu.Lock()
	completed := p.completeLocked()
	p.mu.Unlock()
	p.finish(completed)
	return true
}

// publishForRun publishes event unless r already ended.
func (p *Pipeline) publishForRun(r *run, event events.Event) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	ended := r.ended
	p.mu.Unlock()
	if ended {
		return
	}

	p.publish(event)
}

func (p *Pipeline) publish(event events.Event) {
	if p.bus != nil {
		p.bus.Publish(event)
	}
}

func (p *Pipeline) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
