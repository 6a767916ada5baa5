package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/koscakluka/ema-companion/core/events"
)

const (
	DefaultAutoChatIdle  = 60 * time.Second
	DefaultAutoChatRetry = 5 * time.Second

	autoPromptPrefix = "[proactive] "
)

// AutoChat starts a turn on its own after the conversation has been idle.
// While the companion is busy the attempt is retried shortly after.
type AutoChat struct {
	orchestrator *Orchestrator
	prompt       string
	idle         time.Duration
	retry        time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	processing  bool
	timer       *time.Timer
	unsubscribe func()
	wg          sync.WaitGroup
}

type AutoChatOption func(*AutoChat)

func WithIdleTime(idle time.Duration) AutoChatOption {
	return func(a *AutoChat) {
		if idle > 0 {
			a.idle = idle
		}
	}
}

// WithBusyRetry sets how long an attempt is deferred while the companion is
// busy.
func WithBusyRetry(retry time.Duration) AutoChatOption {
	return func(a *AutoChat) {
		if retry > 0 {
			a.retry = retry
		}
	}
}

func NewAutoChat(orchestrator *Orchestrator, prompt string, opts ...AutoChatOption) *AutoChat {
	a := &AutoChat{
		orchestrator: orchestrator,
		prompt:       prompt,
		idle:         DefaultAutoChatIdle,
		retry:        DefaultAutoChatRetry,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AutoChat) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	if bus := a.orchestrator.bus; bus != nil {
		a.unsubscribe = bus.Subscribe(events.KindInteractionUpdated, func(events.Event) {
			a.touch()
		})
	}
	a.scheduleLocked(a.idle)
	logger.Info("auto chat started", "idle", a.idle.String())
}

// Stop cancels the timer and waits for a proactive turn in progress.
func (a *AutoChat) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	unsubscribe, cancel := a.unsubscribe, a.cancel
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	a.wg.Wait()
}

// touch restarts the idle timer.
func (a *AutoChat) touch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running && !a.processing {
		a.scheduleLocked(a.idle)
	}
}

func (a *AutoChat) scheduleLocked(after time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(after, a.fire)
}

func (a *AutoChat) fire() {
	a.mu.Lock()
	if !a.running || a.processing {
		a.mu.Unlock()
		return
	}
	if busy := a.orchestrator.state.Snapshot(); busy.Busy() {
		logger.Debug("auto chat deferred",
			"output_active", busy.OutputActive,
			"user_input_active", busy.UserInputActive,
			"external_processing_active", busy.ExternalProcessingActive)
		a.scheduleLocked(a.retry)
		a.mu.Unlock()
		return
	}
	a.processing = true
	a.timer = nil
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	next := a.idle
	prompt := autoPromptPrefix + a.prompt
	err := a.orchestrator.TryConverse(ctx, prompt)
	switch {
	case errors.Is(err, ErrBusy):
		next = a.retry
	case err != nil:
		logger.Error("auto chat turn failed", "error", err)
	default:
		a.orchestrator.publish(events.NewUserMessageReceived(prompt, events.InputSourceAuto))
	}

	a.mu.Lock()
	a.processing = false
	if a.running {
		a.scheduleLocked(next)
	}
	a.mu.Unlock()
}
