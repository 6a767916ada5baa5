package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	orchestration "github.com/koscakluka/ema-companion/core"
	"github.com/koscakluka/ema-companion/core/voiceactivity"
)

const defaultSystemPrompt = "You are a friendly voice companion. Keep replies short and conversational."

type config struct {
	LLMProvider     string
	LLMAPIKey       string
	LLMModel        string
	LLMBaseURL      string
	VisionModel     string
	Temperature     float64
	SystemPrompt    string
	MaxIterations   int
	ContextLimit    int
	FallbackReply   string
	TranslatePrompt string

	DeepgramAPIKey string

	TTS           string
	TTSURL        string
	TTSKey        string
	TTSVoice      string
	TTSCloudKey   string
	TTSCloudModel string

	ASR    string
	ASRURL string
	ASRKey string

	Audio      string
	SampleRate int

	VADURL       string
	VADThreshold float64
	BargeIn      bool

	HistoryDB      string
	ConversationID string

	MCPCommand string
	MCPArgs    []string

	AutoChatIdle   time.Duration
	AutoChatPrompt string

	APIAddr  string
	Headless bool
}

// loadConfig reads .env (if present) and the process environment.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (config, error) {
	env := envReader{getenv: getenv}

	cfg := config{
		LLMProvider:     env.string("COMPANION_LLM_PROVIDER", "openai"),
		LLMAPIKey:       env.string("LLM_API_KEY", ""),
		LLMModel:        env.string("COMPANION_LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:      env.string("COMPANION_LLM_BASE_URL", ""),
		VisionModel:     env.string("COMPANION_VISION_MODEL", ""),
		Temperature:     env.float("COMPANION_TEMPERATURE", -1),
		SystemPrompt:    env.string("COMPANION_SYSTEM_PROMPT", defaultSystemPrompt),
		MaxIterations:   env.int("COMPANION_MAX_ITERATIONS", orchestration.DefaultMaxIterations),
		ContextLimit:    env.int("COMPANION_CONTEXT_LIMIT", 0),
		FallbackReply:   env.string("COMPANION_FALLBACK_REPLY", orchestration.DefaultFallbackReply),
		TranslatePrompt: env.string("COMPANION_TRANSLATE_PROMPT", ""),

		DeepgramAPIKey: env.string("DEEPGRAM_API_KEY", ""),

		TTS:           env.string("COMPANION_TTS", "deepgram"),
		TTSURL:        env.string("COMPANION_TTS_URL", ""),
		TTSKey:        env.string("COMPANION_TTS_KEY", ""),
		TTSVoice:      env.string("COMPANION_TTS_VOICE", ""),
		TTSCloudKey:   env.string("COMPANION_TTS_CLOUD_KEY", ""),
		TTSCloudModel: env.string("COMPANION_TTS_CLOUD_MODEL", ""),

		ASR:    env.string("COMPANION_ASR", "deepgram"),
		ASRURL: env.string("COMPANION_ASR_URL", ""),
		ASRKey: env.string("COMPANION_ASR_KEY", ""),

		Audio:      env.string("COMPANION_AUDIO", "miniaudio"),
		SampleRate: env.int("COMPANION_SAMPLE_RATE", voiceactivity.DefaultConfig().SampleRate),

		VADURL:       env.string("COMPANION_VAD_URL", ""),
		VADThreshold: env.float("COMPANION_VAD_THRESHOLD", voiceactivity.DefaultEnergyThreshold),
		BargeIn:      env.bool("COMPANION_BARGE_IN", false),

		HistoryDB:      env.string("COMPANION_HISTORY_DB", "companion.db"),
		ConversationID: env.string("COMPANION_CONVERSATION_ID", "default"),

		MCPCommand: env.string("COMPANION_MCP_COMMAND", ""),
		MCPArgs:    strings.Fields(env.string("COMPANION_MCP_ARGS", "")),

		AutoChatIdle:   env.duration("COMPANION_AUTO_CHAT_IDLE", 0),
		AutoChatPrompt: env.string("COMPANION_AUTO_CHAT_PROMPT", "Say something to keep the conversation going."),

		APIAddr:  env.string("COMPANION_API_ADDR", ""),
		Headless: env.bool("COMPANION_HEADLESS", false),
	}
	if env.err != nil {
		return config{}, env.err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs []error
	if c.LLMAPIKey == "" {
		errs = append(errs, fmt.Errorf("LLM_API_KEY is required"))
	}
	switch c.LLMProvider {
	case "openai", "groq":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLMProvider))
	}
	switch c.TTS {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			errs = append(errs, fmt.Errorf("DEEPGRAM_API_KEY is required for deepgram speech synthesis"))
		}
	case "http":
		if c.TTSURL == "" {
			errs = append(errs, fmt.Errorf("COMPANION_TTS_URL is required for http speech synthesis"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown speech synthesis backend %q", c.TTS))
	}
	switch c.ASR {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			errs = append(errs, fmt.Errorf("DEEPGRAM_API_KEY is required for deepgram speech recognition"))
		}
	case "http":
		if c.ASRURL == "" {
			errs = append(errs, fmt.Errorf("COMPANION_ASR_URL is required for http speech recognition"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown speech recognition backend %q", c.ASR))
	}
	switch c.Audio {
	case "miniaudio", "portaudio", "oto", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.Audio))
	}
	return errors.Join(errs...)
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) string(key, fallback string) string {
	if value := strings.TrimSpace(e.getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}

func (e *envReader) float(key string, fallback float64) float64 {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}

func (e *envReader) bool(key string, fallback bool) bool {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return parsed
}
