// Package orchestration drives conversation turns: it calls the language
// model, routes tool calls, and speaks replies through the synthesis
// pipeline while honouring user interruptions.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/interruptions"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/core/speechsynthesis"
	"github.com/koscakluka/ema-companion/core/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	outcomeCompleted   = "completed"
	outcomeFallback    = "fallback"
	outcomeAnomaly     = "anomaly"
	outcomeInterrupted = "interrupted"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
)

// Speaker is the speech output used for narration and replies.
// *speechsynthesis.Pipeline implements it.
type Speaker interface {
	FeedComplete(text string)
	FeedIncremental(chunk string)
	FinalizeIncremental()
	Interrupt()
	Reset()
	IsActive() bool
	Wait(ctx context.Context) (speechsynthesis.Outcome, error)
}

// VoiceGate is paused while a turn runs and resumed on every exit.
type VoiceGate interface {
	Pause()
	Resume()
}

type Orchestrator struct {
	client  llms.Client
	vision  llms.Client
	router  tools.Router
	speaker Speaker
	state   *interruptions.State
	gate    VoiceGate
	bus     *events.Bus
	metrics *Metrics

	store          conversations.Store
	conversationID string

	systemPrompt  string
	maxIterations int
	contextLimit  int
	fallbackReply string
	temperature   *float64
	onNotice      func(notice string)

	history *History
	turnMu  sync.Mutex

	closeOnce   sync.Once
	unsubscribe func()
}

func NewOrchestrator(client llms.Client, router tools.Router, speaker Speaker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		router:        router,
		speaker:       speaker,
		maxIterations: DefaultMaxIterations,
		fallbackReply: DefaultFallbackReply,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.speaker == nil {
		o.speaker = silentSpeaker{}
	}
	o.history = NewHistory(o.systemPrompt)

	if o.bus != nil {
		bus := o.bus
		o.unsubscribe = bus.Subscribe(events.KindAssistantPlaybackEnded, func(events.Event) {
			bus.Publish(events.NewInteractionUpdated())
		})
	}
	return o
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.unsubscribe != nil {
			o.unsubscribe()
		}
	})
}

func (o *Orchestrator) History() *History {
	return o.history
}

// RestoreHistory loads the persisted conversation into the history.
func (o *Orchestrator) RestoreHistory(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	messages, err := o.store.Load(ctx, o.conversationID, o.contextLimit)
	if err != nil {
		return fmt.Errorf("failed to restore conversation history: %w", err)
	}
	o.history.Restore(messages)
	logger.Info("restored conversation history", "conversation_id", o.conversationID, "messages", len(messages))
	return nil
}

// Interrupt stops speech output. A running turn observes the interruption at
// its next checkpoint and ends silently.
func (o *Orchestrator) Interrupt() {
	o.speaker.Interrupt()
}

// Converse runs one turn for prompt, waiting for any running turn first.
// Interruptions, the iteration budget fallback and empty model replies all
// return nil; failed model calls return an *UpstreamError after the notice
// handler was called.
func (o *Orchestrator) Converse(ctx context.Context, prompt string) error {
	return o.ConverseMessage(ctx, llms.UserMessage(prompt))
}

// ConverseMessage is Converse for a prepared user message, such as one
// carrying images.
func (o *Orchestrator) ConverseMessage(ctx context.Context, msg llms.Message) error {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	return o.converse(ctx, msg)
}

// TryConverse is Converse that returns ErrBusy instead of waiting.
func (o *Orchestrator) TryConverse(ctx context.Context, prompt string) error {
	if !o.turnMu.TryLock() {
		return ErrBusy
	}
	defer o.turnMu.Unlock()

	return o.converse(ctx, llms.UserMessage(prompt))
}

func (o *Orchestrator) converse(ctx context.Context, msg llms.Message) (err error) {
	turnID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "converse")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", turnID))
	started := time.Now()

	o.publish(events.NewUserInputStarted(turnID))
	if o.speaker.IsActive() {
		o.speaker.Interrupt()
	}
	o.state.ClearInterrupted()
	o.speaker.Reset()
	if o.gate != nil {
		o.gate.Pause()
	}
	o.publish(events.NewTurnStarted(turnID, msg.Text()))

	outcome, iterations := outcomeFailed, 0
	defer func() {
		if o.gate != nil {
			o.gate.Resume()
		}
		o.publish(events.NewUserInputEnded(turnID))

		switch outcome {
		case outcomeInterrupted, outcomeCancelled:
			o.publish(events.NewTurnCancelled(turnID))
		case outcomeFailed:
		default:
			o.publish(events.NewTurnCompleted(turnID, iterations))
		}
		span.SetAttributes(attribute.String("turn.outcome", outcome))
		span.SetAttributes(attribute.Int("turn.iterations", iterations))
		o.metrics.observeTurn(outcome, iterations, time.Since(started))
	}()

	if msg.HasImages() {
		o.history.FoldImages()
	}
	o.history.Append(msg)
	o.history.Trim(o.contextLimit)
	turnStart := o.history.Len() - 1

	outcome, iterations, err = o.run(ctx, turnID)
	switch {
	case err == nil:
		if outcome != outcomeAnomaly {
			o.persist(ctx, turnStart)
		}
		return nil
	case errors.Is(err, ErrUserInterrupted):
		logger.Info("turn interrupted by user", "turn_id", turnID, "iterations", iterations)
		return nil
	case errors.Is(err, errProtocolAnomaly):
		logger.Warn("model returned an empty reply", "turn_id", turnID)
		return nil
	case ctx.Err() != nil:
		outcome = outcomeCancelled
		return context.Cause(ctx)
	}

	outcome = outcomeFailed
	upstream := classify(err)
	span.RecordError(upstream)
	span.SetStatus(codes.Error, upstream.Error())
	logger.Error("turn failed", "turn_id", turnID, "category", string(upstream.Category), "error", err)
	notice := upstream.Notice()
	o.publish(events.NewTurnFailed(turnID, notice, err.Error()))
	if o.onNotice != nil {
		o.onNotice(notice)
	}
	return upstream
}

func (o *Orchestrator) run(ctx context.Context, turnID string) (outcome string, iterations int, err error) {
	for iterations < o.maxIterations {
		if o.state.ConsumeInterrupted() {
			return outcomeInterrupted, iterations, ErrUserInterrupted
		}
		iterations++

		response, spoken, err := o.callModel(ctx, turnID, iterations)
		if err != nil {
			return outcomeFailed, iterations, err
		}
		if o.state.ConsumeInterrupted() {
			return outcomeInterrupted, iterations, ErrUserInterrupted
		}

		if len(response.ToolCalls) > 0 {
			if strings.TrimSpace(response.Content) != "" {
				if !spoken {
					o.speaker.FeedComplete(response.Content)
				}
				interrupted, err := o.awaitSpeech(ctx)
				if err != nil {
					return outcomeCancelled, iterations, err
				}
				if interrupted {
					o.state.ConsumeInterrupted()
					return outcomeInterrupted, iterations, ErrUserInterrupted
				}
			}
			if o.state.ConsumeInterrupted() {
				return outcomeInterrupted, iterations, ErrUserInterrupted
			}

			o.history.Append(llms.AssistantMessage(response.Content, response.ToolCalls...))
			results := o.executeTools(ctx, response.ToolCalls)
			if o.state.ConsumeInterrupted() {
				o.history.Pop()
				return outcomeInterrupted, iterations, ErrUserInterrupted
			}
			for _, result := range results {
				o.history.Append(llms.ToolMessage(result.ToolCallID, result.Name, result.Content))
			}
			continue
		}

		text := response.Text()
		if strings.TrimSpace(text) == "" {
			return outcomeAnomaly, iterations, errProtocolAnomaly
		}
		if !spoken {
			o.speaker.FeedComplete(text)
		}
		o.history.Append(llms.AssistantMessage(text))
		o.publish(events.NewAssistantResponseFinal(turnID, text))
		return outcomeCompleted, iterations, nil
	}

	logger.Warn("iteration budget exhausted", "turn_id", turnID, "iterations", iterations, "error", errIterationBudget)
	if o.state.ConsumeInterrupted() {
		return outcomeInterrupted, iterations, ErrUserInterrupted
	}

	text := o.fallback(ctx)
	o.speaker.FeedComplete(text)
	o.history.Append(llms.AssistantMessage(text))
	o.publish(events.NewAssistantResponseFinal(turnID, text))
	return outcomeFallback, iterations, nil
}

// callModel sends the history to the model. Streamed content is forwarded
// to the speaker as it arrives; spoken reports whether that happened.
func (o *Orchestrator) callModel(ctx context.Context, turnID string, iteration int) (response *llms.Response, spoken bool, err error) {
	ctx, span := tracer.Start(ctx, "call model")
	defer span.End()
	span.SetAttributes(attribute.Int("turn.iteration", iteration))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	snapshot := o.history.Snapshot()
	client, opts := o.client, o.completionOptions()
	if iteration == 1 && o.vision != nil && lastUserHasImages(snapshot) {
		client = o.vision
		span.SetAttributes(attribute.Bool("model.vision", true))
	} else if o.router != nil {
		opts = append(opts, llms.WithTools(o.router.Tools(ctx)...))
	}
	messages := cleanForRequest(snapshot, iteration == 1)

	streaming, ok := client.(llms.StreamingClient)
	if !ok {
		response, err = client.Complete(ctx, messages, opts...)
		if err != nil {
			return nil, false, err
		}
		return response, false, nil
	}

	acc := llms.Accumulator{}
	for chunk, chunkErr := range streaming.Stream(ctx, messages, opts...).Chunks(ctx) {
		if chunkErr != nil {
			err = chunkErr
			break
		}
		acc.Add(chunk)

		content, ok := chunk.(llms.StreamContentChunk)
		if !ok || content.Content() == "" {
			continue
		}
		if o.state.IsInterrupted() {
			break
		}
		o.speaker.FeedIncremental(content.Content())
		spoken = true
		o.publish(events.NewAssistantResponseSegment(turnID, content.Content()))
	}

	if spoken {
		if err != nil {
			o.speaker.Reset()
		} else {
			o.speaker.FinalizeIncremental()
		}
	}
	if err != nil {
		return nil, false, err
	}
	return acc.Response(), spoken, nil
}

func (o *Orchestrator) completionOptions(opts ...llms.CompletionOption) []llms.CompletionOption {
	if o.temperature != nil {
		opts = append(opts, llms.WithTemperature(*o.temperature))
	}
	return opts
}

// awaitSpeech blocks until the narration run ends and reports whether it was
// interrupted.
func (o *Orchestrator) awaitSpeech(ctx context.Context) (bool, error) {
	waitCtx, cancel := o.state.WithInterruption(ctx)
	defer cancel()

	outcome, err := o.speaker.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, interruptions.ErrInterrupted) {
			return true, nil
		}
		return false, err
	}
	return outcome == speechsynthesis.OutcomeInterrupted, nil
}

func (o *Orchestrator) executeTools(ctx context.Context, calls []llms.ToolCall) []tools.Result {
	if o.router == nil {
		return tools.Align(calls, nil, tools.ErrToolNotFound)
	}

	results, err := o.router.Execute(ctx, calls)
	if err != nil {
		logger.Warn("tool execution failed", "calls", len(calls), "error", err)
	}
	return tools.Align(calls, results, err)
}

// fallback asks for a final reply without tools once the iteration budget
// is spent.
func (o *Orchestrator) fallback(ctx context.Context) string {
	response, err := o.client.Complete(ctx, cleanForRequest(o.history.Snapshot(), false), o.completionOptions()...)
	if err != nil {
		logger.Error("fallback model call failed", "error", err)
		return o.fallbackReply
	}
	if text := response.Text(); strings.TrimSpace(text) != "" {
		return text
	}
	return o.fallbackReply
}

func lastUserHasImages(messages []llms.Message) bool {
	i := lastUserIndex(messages)
	return i >= 0 && messages[i].HasImages()
}

func (o *Orchestrator) persist(ctx context.Context, turnStart int) {
	if o.store == nil {
		return
	}
	if err := o.store.Append(ctx, o.conversationID, o.history.Since(turnStart)...); err != nil {
		logger.Error("failed to persist turn", "conversation_id", o.conversationID, "error", err)
	}
}

func (o *Orchestrator) publish(event events.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

// silentSpeaker stands in when no speech output is configured.
type silentSpeaker struct{}

func (silentSpeaker) FeedComplete(string)    {}
func (silentSpeaker) FeedIncremental(string) {}
func (silentSpeaker) FinalizeIncremental()   {}
func (silentSpeaker) Interrupt()             {}
func (silentSpeaker) Reset()                 {}
func (silentSpeaker) IsActive() bool         { return false }
func (silentSpeaker) Wait(context.Context) (speechsynthesis.Outcome, error) {
	return speechsynthesis.OutcomeCompleted, nil
}
