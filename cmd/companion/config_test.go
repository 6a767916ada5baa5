package main

import (
	"strings"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-companion/core"
	"github.com/koscakluka/ema-companion/core/voiceactivity"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := configFromEnv(envFrom(map[string]string{
		"LLM_API_KEY":      "sk-test",
		"DEEPGRAM_API_KEY": "dg-test",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.LLMProvider != "openai" || cfg.TTS != "deepgram" || cfg.ASR != "deepgram" || cfg.Audio != "miniaudio" {
		t.Fatalf("expected default backends, got %+v", cfg)
	}
	if cfg.MaxIterations != orchestration.DefaultMaxIterations {
		t.Fatalf("expected %d iterations, got %d", orchestration.DefaultMaxIterations, cfg.MaxIterations)
	}
	if cfg.VADThreshold != voiceactivity.DefaultEnergyThreshold {
		t.Fatalf("expected default vad threshold, got %v", cfg.VADThreshold)
	}
	if cfg.Temperature >= 0 {
		t.Fatalf("expected temperature unset, got %v", cfg.Temperature)
	}
	if cfg.AutoChatIdle != 0 || cfg.APIAddr != "" {
		t.Fatalf("expected auto chat and api disabled, got %v and %q", cfg.AutoChatIdle, cfg.APIAddr)
	}
}

func TestConfigParsesOverrides(t *testing.T) {
	cfg, err := configFromEnv(envFrom(map[string]string{
		"LLM_API_KEY":              "gsk-test",
		"COMPANION_LLM_PROVIDER":   "groq",
		"COMPANION_TTS":            "http",
		"COMPANION_TTS_URL":        "http://127.0.0.1:9880/",
		"COMPANION_ASR":            "none",
		"COMPANION_AUDIO":          "oto",
		"COMPANION_BARGE_IN":       "true",
		"COMPANION_TEMPERATURE":    "0.4",
		"COMPANION_AUTO_CHAT_IDLE": "90s",
		"COMPANION_MCP_ARGS":       "-y  server-filesystem /tmp",
		"COMPANION_MAX_ITERATIONS": "5",
		"COMPANION_CONTEXT_LIMIT":  "40",
		"COMPANION_VISION_MODEL":   "llama-4-scout",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !cfg.BargeIn || cfg.Temperature != 0.4 || cfg.AutoChatIdle != 90*time.Second {
		t.Fatalf("expected parsed overrides, got %+v", cfg)
	}
	if strings.Join(cfg.MCPArgs, "|") != "-y|server-filesystem|/tmp" {
		t.Fatalf("expected split mcp args, got %q", cfg.MCPArgs)
	}
	if cfg.MaxIterations != 5 || cfg.ContextLimit != 40 {
		t.Fatalf("expected limits 5 and 40, got %d and %d", cfg.MaxIterations, cfg.ContextLimit)
	}
	if cfg.VisionModel != "llama-4-scout" {
		t.Fatalf("expected vision model override, got %q", cfg.VisionModel)
	}
}

func TestConfigReportsAllProblems(t *testing.T) {
	_, err := configFromEnv(envFrom(map[string]string{
		"COMPANION_TTS":            "http",
		"COMPANION_AUDIO":          "speakers",
		"COMPANION_MAX_ITERATIONS": "many",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "COMPANION_MAX_ITERATIONS") {
		t.Fatalf("expected parse error, got %v", err)
	}

	_, err = configFromEnv(envFrom(map[string]string{
		"COMPANION_TTS":   "http",
		"COMPANION_AUDIO": "speakers",
	}))
	for _, want := range []string{"LLM_API_KEY", "COMPANION_TTS_URL", "DEEPGRAM_API_KEY", `"speakers"`} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got %v", want, err)
		}
	}
}
