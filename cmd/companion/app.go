package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	orchestration "github.com/koscakluka/ema-companion/core"
	"github.com/koscakluka/ema-companion/core/audio"
	"github.com/koscakluka/ema-companion/core/audio/miniaudio"
	"github.com/koscakluka/ema-companion/core/audio/otoplayer"
	"github.com/koscakluka/ema-companion/core/audio/portaudio"
	"github.com/koscakluka/ema-companion/core/conversations/sqlite"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/interruptions"
	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/core/llms/groq"
	"github.com/koscakluka/ema-companion/core/llms/openai"
	"github.com/koscakluka/ema-companion/core/speechsynthesis"
	dgstt "github.com/koscakluka/ema-companion/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-companion/core/speechtotext/httpasr"
	dgtts "github.com/koscakluka/ema-companion/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-companion/core/texttospeech/httptts"
	"github.com/koscakluka/ema-companion/core/tools"
	"github.com/koscakluka/ema-companion/core/tools/mcp"
	"github.com/koscakluka/ema-companion/core/voiceactivity"
)

const metricsNamespace = "companion"

// app owns every long-lived component of the companion.
type app struct {
	bus          *events.Bus
	state        *interruptions.State
	pipeline     *speechsynthesis.Pipeline
	gate         *voiceactivity.Gate
	orchestrator *orchestration.Orchestrator
	input        *orchestration.InputRouter
	metrics      *orchestration.Metrics
	autoChat     *orchestration.AutoChat

	closers []func() error
}

func newApp(ctx context.Context, cfg config) (_ *app, err error) {
	a := &app{bus: events.NewBus()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.state = interruptions.New(a.bus)
	a.onClose(func() error { a.state.Close(); return nil })

	a.metrics = orchestration.NewMetrics(metricsNamespace)
	a.metrics.Observe(a.bus)
	a.onClose(func() error { a.metrics.Close(); return nil })

	client := newLLMClient(cfg, cfg.LLMModel)

	synthesizer, sourceEncoding, err := a.newSynthesizer(cfg)
	if err != nil {
		return nil, err
	}

	player, capturer, err := a.newAudioDevice(cfg, sourceEncoding)
	if err != nil {
		return nil, err
	}

	// without a synthesizer the pipeline runs text-only
	pipelineOpts := []speechsynthesis.PipelineOption{speechsynthesis.WithEventBus(a.bus)}
	if cfg.TranslatePrompt != "" {
		pipelineOpts = append(pipelineOpts, speechsynthesis.WithTranslator(openai.NewTranslator(client, cfg.TranslatePrompt)))
	}
	a.pipeline = speechsynthesis.NewPipeline(synthesizer, player, pipelineOpts...)
	a.onClose(func() error { a.pipeline.Close(); return nil })

	recognizer, err := a.newRecognizer(cfg)
	if err != nil {
		return nil, err
	}
	if recognizer != nil {
		a.gate = voiceactivity.NewGate(newDetector(cfg), recognizer,
			voiceactivity.WithConfig(gateConfig(cfg)),
			voiceactivity.WithCapturer(capturer),
			voiceactivity.WithActivity(a.state),
			voiceactivity.WithEventBus(a.bus),
			voiceactivity.WithOnBargeIn(a.interruptSpeech),
			voiceactivity.WithOnRecognized(func(ctx context.Context, text string) {
				a.input.OnRecognized(ctx, text)
			}),
		)
	}

	router, err := a.newToolRouter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithSystemPrompt(cfg.SystemPrompt),
		orchestration.WithInterruptState(a.state),
		orchestration.WithEventBus(a.bus),
		orchestration.WithMetrics(a.metrics),
		orchestration.WithMaxIterations(cfg.MaxIterations),
		orchestration.WithContextLimit(cfg.ContextLimit),
		orchestration.WithFallbackReply(cfg.FallbackReply),
	}
	if cfg.Temperature >= 0 {
		opts = append(opts, orchestration.WithTemperature(cfg.Temperature))
	}
	if cfg.VisionModel != "" {
		opts = append(opts, orchestration.WithVisionClient(newLLMClient(cfg, cfg.VisionModel)))
	}
	if a.gate != nil {
		opts = append(opts, orchestration.WithGate(a.gate))
	}
	if cfg.HistoryDB != "" {
		store, err := sqlite.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		opts = append(opts, orchestration.WithHistoryStore(store, cfg.ConversationID))
	}

	a.orchestrator = orchestration.NewOrchestrator(client, router, a.pipeline, opts...)
	a.onClose(func() error { a.orchestrator.Close(); return nil })
	a.input = orchestration.NewInputRouter(a.orchestrator)

	if err := a.orchestrator.RestoreHistory(ctx); err != nil {
		log.Printf("warning: %v", err)
	}

	if cfg.AutoChatIdle > 0 {
		a.autoChat = orchestration.NewAutoChat(a.orchestrator, cfg.AutoChatPrompt,
			orchestration.WithIdleTime(cfg.AutoChatIdle))
	}

	return a, nil
}

// Start begins voice capture and the auto-chat timer.
func (a *app) Start(ctx context.Context) error {
	if a.gate != nil {
		if err := a.gate.StartCapture(ctx); err != nil {
			return err
		}
		a.onClose(a.gate.StopCapture)
	}
	if a.autoChat != nil {
		a.autoChat.Start(ctx)
		a.onClose(func() error { a.autoChat.Stop(); return nil })
	}
	return nil
}

func (a *app) onClose(closer func() error) {
	a.closers = append(a.closers, closer)
}

// Close releases components in reverse creation order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) SendText(ctx context.Context, text string, images ...string) error {
	if len(images) > 0 {
		return a.input.HandleImageInput(ctx, text, images...)
	}
	return a.input.HandleTextInput(ctx, text)
}

func (a *app) SendExternal(ctx context.Context, source, text string) error {
	return a.input.HandleExternalInput(ctx, source, text)
}

func (a *app) Interrupt() {
	a.interruptSpeech()
}

func (a *app) interruptSpeech() {
	a.orchestrator.Interrupt()
}

func (a *app) Status() status {
	snapshot := a.state.Snapshot()
	s := status{
		OutputActive:             snapshot.OutputActive,
		UserInputActive:          snapshot.UserInputActive,
		ExternalProcessingActive: snapshot.ExternalProcessingActive,
		Interrupted:              snapshot.Interrupted,
		Busy:                     snapshot.Busy(),
		Voice:                    "off",
		HistoryLength:            a.orchestrator.History().Len(),
	}
	if a.gate != nil {
		s.Voice = a.gate.State().String()
		s.BargeIn = a.gate.BargeIn()
	}
	return s
}

func (a *app) Bus() *events.Bus {
	return a.bus
}

func newLLMClient(cfg config, model string) llms.Client {
	var opts []openai.ClientOption
	if cfg.LLMBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
	}
	if cfg.LLMProvider == "groq" {
		return groq.NewClient(cfg.LLMAPIKey, model, opts...)
	}
	return openai.NewClient(cfg.LLMAPIKey, model, opts...)
}

func (a *app) newSynthesizer(cfg config) (speechsynthesis.Synthesizer, audio.EncodingInfo, error) {
	switch cfg.TTS {
	case "deepgram":
		synthesizer, err := dgtts.NewSynthesizer(cfg.DeepgramAPIKey, dgtts.Voice(cfg.TTSVoice),
			dgtts.WithEncodingInfo(audio.EncodingInfo{SampleRate: cfg.SampleRate, Format: audio.EncodingLinear16}))
		if err != nil {
			return nil, audio.EncodingInfo{}, fmt.Errorf("failed to create speech synthesizer: %w", err)
		}
		a.onClose(synthesizer.Close)
		return synthesizer, synthesizer.EncodingInfo(), nil
	case "http":
		var opts []httptts.SynthesizerOption
		if cfg.TTSKey != "" {
			opts = append(opts, httptts.WithGatewayKey(cfg.TTSKey))
		}
		if cfg.TTSCloudKey != "" {
			opts = append(opts, httptts.WithCloud(cfg.TTSCloudKey, cfg.TTSCloudModel, cfg.TTSVoice))
		}
		synthesizer := httptts.NewSynthesizer(cfg.TTSURL, opts...)
		a.onClose(func() error { synthesizer.Close(); return nil })
		return synthesizer, audio.GetDefaultEncodingInfo(), nil
	}
	return nil, audio.EncodingInfo{}, nil
}

// newAudioDevice opens the playback backend. The returned capturer is nil
// when the backend has no microphone support.
func (a *app) newAudioDevice(cfg config, source audio.EncodingInfo) (speechsynthesis.Player, voiceactivity.Capturer, error) {
	if source.IsZero() {
		source = audio.GetDefaultEncodingInfo()
	}

	switch cfg.Audio {
	case "miniaudio":
		client, err := miniaudio.NewClient(miniaudio.WithSampleRate(cfg.SampleRate), miniaudio.WithSourceEncoding(source))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(func() error { client.Close(); return nil })
		return client, client, nil
	case "portaudio":
		client, err := portaudio.NewClient(portaudio.WithSampleRate(cfg.SampleRate), portaudio.WithSourceEncoding(source))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(client.Close)
		return client, client, nil
	case "oto":
		player, err := otoplayer.NewPlayer(otoplayer.WithSampleRate(cfg.SampleRate), otoplayer.WithSourceEncoding(source))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(player.Close)
		log.Printf("warning: the oto backend has no microphone, voice input is limited to pushed audio")
		return player, nil, nil
	}
	return discardPlayer{}, nil, nil
}

func (a *app) newRecognizer(cfg config) (voiceactivity.Recognizer, error) {
	switch cfg.ASR {
	case "deepgram":
		return dgstt.NewRecognizer(cfg.DeepgramAPIKey), nil
	case "http":
		var opts []httpasr.RecognizerOption
		if cfg.ASRKey != "" {
			opts = append(opts, httpasr.WithGatewayKey(cfg.ASRKey))
		}
		recognizer := httpasr.NewRecognizer(cfg.ASRURL, opts...)
		a.onClose(func() error { recognizer.Close(); return nil })
		return recognizer, nil
	}
	return nil, nil
}

func newDetector(cfg config) voiceactivity.Detector {
	if cfg.VADURL != "" {
		return voiceactivity.NewRemoteDetector(cfg.VADURL)
	}
	return voiceactivity.NewEnergyDetector(cfg.VADThreshold)
}

func gateConfig(cfg config) voiceactivity.Config {
	gc := voiceactivity.DefaultConfig()
	gc.SampleRate = cfg.SampleRate
	gc.BargeIn = cfg.BargeIn
	return gc
}

// newToolRouter chains the MCP server, when configured, before local tools.
func (a *app) newToolRouter(ctx context.Context, cfg config) (tools.Router, error) {
	var providers []tools.Provider
	if cfg.MCPCommand != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		registry, err := mcp.Connect(connectCtx, "mcp", cfg.MCPCommand, nil, cfg.MCPArgs...)
		if err != nil {
			log.Printf("warning: mcp tools disabled: %v", err)
		} else {
			a.onClose(registry.Close)
			providers = append(providers, registry)
		}
	}

	local := tools.NewRegistry()
	var voice bargeInControl
	if a.gate != nil {
		voice = a.gate
	}
	if err := registerLocalTools(local, voice, a.pipeline, time.Now); err != nil {
		return nil, fmt.Errorf("failed to register local tools: %w", err)
	}
	providers = append(providers, local)

	return tools.NewChain(providers, tools.WithEventBus(a.bus)), nil
}

// discardPlayer stands in when no audio backend is configured.
type discardPlayer struct{}

func (discardPlayer) Play(context.Context, []byte) error { return nil }
