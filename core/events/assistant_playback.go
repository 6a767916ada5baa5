package events

const (
	// KindAssistantPlaybackStarted identifies playback start for the current run.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackTranscriptSegment identifies a segment that finished playing.
	KindAssistantPlaybackTranscriptSegment Kind = "assistant_playback.transcript_segment"
	// KindAssistantPlaybackInterrupted identifies playback being cut short on request.
	KindAssistantPlaybackInterrupted Kind = "assistant_playback.interrupted"
	// KindAssistantPlaybackEnded identifies the end of playback, completed or not.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct {
	Base
	RunID string
}

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted(runID string) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted), RunID: runID}
}

// AssistantPlaybackTranscriptSegment carries the text of a segment that was played.
type AssistantPlaybackTranscriptSegment struct {
	Base
	RunID   string
	Segment string
}

// NewAssistantPlaybackTranscriptSegment creates a playback transcript segment event.
func NewAssistantPlaybackTranscriptSegment(runID, segment string) AssistantPlaybackTranscriptSegment {
	return AssistantPlaybackTranscriptSegment{Base: NewBase(KindAssistantPlaybackTranscriptSegment), RunID: runID, Segment: segment}
}

// AssistantPlaybackInterrupted marks an interruption of assistant output. It
// is published before the queues are cleared.
type AssistantPlaybackInterrupted struct {
	Base
	RunID string
}

// NewAssistantPlaybackInterrupted creates an assistant playback interrupted event.
func NewAssistantPlaybackInterrupted(runID string) AssistantPlaybackInterrupted {
	return AssistantPlaybackInterrupted{Base: NewBase(KindAssistantPlaybackInterrupted), RunID: runID}
}

// AssistantPlaybackEnded marks the end of assistant playback. Transcript holds
// the text that was actually played.
type AssistantPlaybackEnded struct {
	Base
	RunID       string
	Transcript  string
	Interrupted bool
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(runID, transcript string, interrupted bool) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), RunID: runID, Transcript: transcript, Interrupted: interrupted}
}
