package events

const (
	// KindUserInputStarted identifies the start of processing a user input turn.
	KindUserInputStarted Kind = "user_input.started"
	// KindUserInputEnded identifies the end of processing a user input turn.
	KindUserInputEnded Kind = "user_input.ended"
	// KindUserSpeechStarted identifies start of a user speech recording.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of a user speech recording.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscriptFinal identifies the recognized transcript for a recording.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
	// KindUserMessageReceived identifies a user message accepted for a turn.
	KindUserMessageReceived Kind = "user_input.message_received"
)

// InputSource names where a user message came from.
type InputSource string

const (
	InputSourceVoice InputSource = "voice"
	InputSourceText  InputSource = "text"
	InputSourceAuto  InputSource = "auto"
	// InputSourceExternal is text from outside the conversation, such as
	// live stream chat.
	InputSourceExternal InputSource = "external"
)

// UserInputStarted marks the start of a user input turn.
type UserInputStarted struct {
	Base
	TurnID string
}

// NewUserInputStarted creates a user input started event.
func NewUserInputStarted(turnID string) UserInputStarted {
	return UserInputStarted{Base: NewBase(KindUserInputStarted), TurnID: turnID}
}

// UserInputEnded marks the end of a user input turn, whatever its outcome.
type UserInputEnded struct {
	Base
	TurnID string
}

// NewUserInputEnded creates a user input ended event.
func NewUserInputEnded(turnID string) UserInputEnded {
	return UserInputEnded{Base: NewBase(KindUserInputEnded), TurnID: turnID}
}

// UserSpeechStarted marks when a user speech recording starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserSpeechEnded marks when a user speech recording ends. Duration is the
// length of the captured audio including pre-roll.
type UserSpeechEnded struct {
	Base
	DurationSeconds float64
	Discarded       bool
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(durationSeconds float64, discarded bool) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded), DurationSeconds: durationSeconds, Discarded: discarded}
}

// UserTranscriptFinal carries the recognized transcript for a recording.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}

// UserMessageReceived is published before the turn for a user message starts.
type UserMessageReceived struct {
	Base
	Text   string
	Source InputSource
}

// NewUserMessageReceived creates a user message received event.
func NewUserMessageReceived(text string, source InputSource) UserMessageReceived {
	return UserMessageReceived{Base: NewBase(KindUserMessageReceived), Text: text, Source: source}
}
