package events

const (
	// KindExternalProcessingStarted identifies the start of processing input
	// from an external channel such as a chat overlay.
	KindExternalProcessingStarted Kind = "external_input.processing_started"
	// KindExternalProcessingEnded identifies the end of external input processing.
	KindExternalProcessingEnded Kind = "external_input.processing_ended"
	// KindInteractionUpdated identifies any interaction that should count as
	// activity, e.g. for idle timers.
	KindInteractionUpdated Kind = "interaction.updated"
)

// ExternalProcessingStarted marks the start of external input processing.
type ExternalProcessingStarted struct {
	Base
	Source string
}

// NewExternalProcessingStarted creates an external processing started event.
func NewExternalProcessingStarted(source string) ExternalProcessingStarted {
	return ExternalProcessingStarted{Base: NewBase(KindExternalProcessingStarted), Source: source}
}

// ExternalProcessingEnded marks the end of external input processing.
type ExternalProcessingEnded struct {
	Base
	Source string
}

// NewExternalProcessingEnded creates an external processing ended event.
func NewExternalProcessingEnded(source string) ExternalProcessingEnded {
	return ExternalProcessingEnded{Base: NewBase(KindExternalProcessingEnded), Source: source}
}

type InteractionUpdated struct{ Base }

func NewInteractionUpdated() InteractionUpdated {
	return InteractionUpdated{Base: NewBase(KindInteractionUpdated)}
}
