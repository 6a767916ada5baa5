package orchestration

import (
	"github.com/koscakluka/ema-companion/core/conversations"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/interruptions"
	"github.com/koscakluka/ema-companion/core/llms"
)

const (
	DefaultMaxIterations = 30
	DefaultFallbackReply = "Sorry, that task was too complicated. I did my best."
)

type OrchestratorOption func(*Orchestrator)

// WithSystemPrompt sets the content of the leading system message.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

func WithInterruptState(state *interruptions.State) OrchestratorOption {
	return func(o *Orchestrator) {
		o.state = state
	}
}

// WithGate registers the voice gate paused for the duration of every turn.
func WithGate(gate VoiceGate) OrchestratorOption {
	return func(o *Orchestrator) {
		o.gate = gate
	}
}

func WithEventBus(bus *events.Bus) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithHistoryStore persists finished turns under conversationID.
func WithHistoryStore(store conversations.Store, conversationID string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
		o.conversationID = conversationID
	}
}

func WithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithContextLimit keeps at most n non-system messages in the history. Zero
// disables trimming.
func WithContextLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.contextLimit = n
	}
}

func WithMetrics(metrics *Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithFallbackReply sets the reply spoken when the iteration budget runs out
// and the fallback call produces nothing.
func WithFallbackReply(reply string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fallbackReply = reply
	}
}

// WithNoticeHandler receives the user-facing message of failed turns.
func WithNoticeHandler(handler func(notice string)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onNotice = handler
	}
}

func WithTemperature(temperature float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.temperature = &temperature
	}
}

// WithVisionClient answers the first call of a turn whose user message
// carries images. It is called without tools; later iterations go back to
// the main client with images folded into text.
func WithVisionClient(client llms.Client) OrchestratorOption {
	return func(o *Orchestrator) {
		o.vision = client
	}
}
