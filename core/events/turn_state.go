package events

const (
	// KindTurnStarted identifies the start of an orchestrator turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies a turn that produced a reply.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a turn that ended on an upstream failure.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies a turn aborted by a user interruption.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of a turn.
type TurnStarted struct {
	Base
	TurnID string
	Prompt string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID, prompt string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID, Prompt: prompt}
}

// TurnCompleted marks a turn that finished with a reply. Iterations counts
// language model calls including a budget fallback.
type TurnCompleted struct {
	Base
	TurnID     string
	Iterations int
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID string, iterations int) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID, Iterations: iterations}
}

// TurnFailed marks a turn that ended on an error. Notice is the user facing
// message.
type TurnFailed struct {
	Base
	TurnID string
	Notice string
	Error  string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(turnID, notice, err string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Notice: notice, Error: err}
}

// TurnCancelled marks a turn aborted by an interruption.
type TurnCancelled struct {
	Base
	TurnID string
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(turnID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}
