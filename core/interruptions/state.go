// Package interruptions keeps the shared interruption state of the companion.
//
// A [State] is derived from events published on an [events.Bus]; business
// logic never sets the activity flags directly. The only direct mutation is
// consuming the sticky interrupted flag.
package interruptions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-companion/core/events"
)

// ErrInterrupted is the cancellation cause of contexts derived with
// [State.WithInterruption].
var ErrInterrupted = errors.New("output interrupted")

// Snapshot is a point-in-time copy of the state flags.
type Snapshot struct {
	OutputActive             bool `json:"output_active"`
	UserInputActive          bool `json:"user_input_active"`
	ExternalProcessingActive bool `json:"external_processing_active"`
	Interrupted              bool `json:"interrupted"`
}

// Busy reports whether any of the activity flags is set.
func (s Snapshot) Busy() bool {
	return s.OutputActive || s.UserInputActive || s.ExternalProcessingActive
}

type State struct {
	outputActive             atomic.Bool
	userInputActive          atomic.Bool
	externalProcessingActive atomic.Bool
	interrupted              atomic.Bool

	mu           sync.Mutex
	waiters      map[uint64]context.CancelCauseFunc
	nextWaiterID uint64
	unsubscribe  []func()
}

// New creates a state with all flags cleared and subscribes it to bus.
func New(bus *events.Bus) *State {
	s := &State{waiters: map[uint64]context.CancelCauseFunc{}}
	if bus == nil {
		return s
	}

	s.unsubscribe = []func(){
		bus.Subscribe(events.KindAssistantPlaybackStarted, func(events.Event) {
			s.outputActive.Store(true)
		}),
		bus.Subscribe(events.KindAssistantPlaybackEnded, func(events.Event) {
			s.outputActive.Store(false)
		}),
		bus.Subscribe(events.KindAssistantPlaybackInterrupted, func(events.Event) {
			s.outputActive.Store(false)
			s.interrupted.Store(true)
			s.cancelWaiters()
		}),
		bus.Subscribe(events.KindUserInputStarted, func(events.Event) {
			s.userInputActive.Store(true)
		}),
		bus.Subscribe(events.KindUserInputEnded, func(events.Event) {
			s.userInputActive.Store(false)
		}),
		bus.Subscribe(events.KindExternalProcessingStarted, func(events.Event) {
			s.externalProcessingActive.Store(true)
		}),
		bus.Subscribe(events.KindExternalProcessingEnded, func(events.Event) {
			s.externalProcessingActive.Store(false)
		}),
	}

	return s
}

func (s *State) IsOutputActive() bool {
	return s != nil && s.outputActive.Load()
}

func (s *State) IsUserInputActive() bool {
	return s != nil && s.userInputActive.Load()
}

func (s *State) IsExternalProcessingActive() bool {
	return s != nil && s.externalProcessingActive.Load()
}

// IsBusy reports whether output, user input or external processing is active.
func (s *State) IsBusy() bool {
	return s.Snapshot().Busy()
}

func (s *State) IsInterrupted() bool {
	return s != nil && s.interrupted.Load()
}

// ConsumeInterrupted clears the interrupted flag and reports whether it was
// set.
func (s *State) ConsumeInterrupted() bool {
	if s == nil {
		return false
	}
	return s.interrupted.Swap(false)
}

func (s *State) ClearInterrupted() {
	if s == nil {
		return
	}
	s.interrupted.Store(false)
}

func (s *State) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}

	return Snapshot{
		OutputActive:             s.outputActive.Load(),
		UserInputActive:          s.userInputActive.Load(),
		ExternalProcessingActive: s.externalProcessingActive.Load(),
		Interrupted:              s.interrupted.Load(),
	}
}

// WithInterruption returns a context that is cancelled with cause
// [ErrInterrupted] the next time output is interrupted. An interruption that
// already happened does not cancel it.
func (s *State) WithInterruption(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	if s == nil {
		return ctx, func() { cancel(context.Canceled) }
	}

	s.mu.Lock()
	s.nextWaiterID++
	id := s.nextWaiterID
	s.waiters[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
		cancel(context.Canceled)
	}
}

func (s *State) cancelWaiters() {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = map[uint64]context.CancelCauseFunc{}
	s.mu.Unlock()

	if len(waiters) > 0 {
		logger.Debug("cancelling interruption waiters", "count", len(waiters))
	}
	for _, cancel := range waiters {
		cancel(ErrInterrupted)
	}
}

// Close stops reacting to bus events. Flags keep their last values.
func (s *State) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}
