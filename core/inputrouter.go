package orchestration

import (
	"context"
	"strings"

	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
)

// InputRouter feeds user input from every source into the orchestrator. A
// message is announced before its turn starts and the interaction is marked
// updated once the turn is over.
type InputRouter struct {
	orchestrator *Orchestrator
}

func NewInputRouter(orchestrator *Orchestrator) *InputRouter {
	return &InputRouter{orchestrator: orchestrator}
}

func (r *InputRouter) HandleVoiceInput(ctx context.Context, text string) error {
	return r.handle(ctx, text, events.InputSourceVoice)
}

func (r *InputRouter) HandleTextInput(ctx context.Context, text string) error {
	return r.handle(ctx, text, events.InputSourceText)
}

// HandleImageInput sends text together with images, given as http(s) or
// data: URLs. Without images it behaves like HandleTextInput.
func (r *InputRouter) HandleImageInput(ctx context.Context, text string, imageURLs ...string) error {
	text = strings.TrimSpace(text)
	var parts []llms.ContentPart
	if text != "" {
		parts = append(parts, llms.TextPart(text))
	}
	for _, url := range imageURLs {
		if url = strings.TrimSpace(url); url != "" {
			parts = append(parts, llms.ImagePart(url))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return r.send(ctx, llms.UserMessageWithParts(parts...), events.InputSourceText)
}

// HandleExternalInput handles text that does not come from the user directly.
// External processing is flagged busy for the whole turn.
func (r *InputRouter) HandleExternalInput(ctx context.Context, source, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	r.orchestrator.publish(events.NewExternalProcessingStarted(source))
	defer r.orchestrator.publish(events.NewExternalProcessingEnded(source))

	return r.handle(ctx, text, events.InputSourceExternal)
}

// OnRecognized adapts the router to the voice gate callback.
func (r *InputRouter) OnRecognized(ctx context.Context, text string) {
	if err := r.HandleVoiceInput(ctx, text); err != nil {
		logger.Error("failed to handle voice input", "error", err)
	}
}

func (r *InputRouter) handle(ctx context.Context, text string, source events.InputSource) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	return r.send(ctx, llms.UserMessage(text), source)
}

func (r *InputRouter) send(ctx context.Context, msg llms.Message, source events.InputSource) error {
	r.orchestrator.publish(events.NewUserMessageReceived(msg.Text(), source))
	err := r.orchestrator.ConverseMessage(ctx, msg)
	r.orchestrator.publish(events.NewInteractionUpdated())
	return err
}
