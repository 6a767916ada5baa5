package events

const (
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies the final assistant reply of a turn.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseSegment carries a streamed assistant response text segment.
type AssistantResponseSegment struct {
	Base
	TurnID  string
	Segment string
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(turnID, segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), TurnID: turnID, Segment: segment}
}

// AssistantResponseFinal carries the reply that ended a turn.
type AssistantResponseFinal struct {
	Base
	TurnID  string
	Content string
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(turnID, content string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), TurnID: turnID, Content: content}
}
