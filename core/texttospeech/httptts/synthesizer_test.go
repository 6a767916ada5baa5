package httptts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesizeLocalMode(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Header.Get("X-API-Key") != "gateway" {
			t.Errorf("expected gateway key header, got %q", r.Header.Get("X-API-Key"))
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFaudio"))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(server.URL, WithLanguage("zh"), WithGatewayKey("gateway"))
	defer synthesizer.Close()

	audio, err := synthesizer.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if string(audio) != "RIFFaudio" {
		t.Fatalf("expected audio body, got %q", audio)
	}
	if body["text"] != "Hello." || body["text_language"] != "zh" {
		t.Fatalf("expected local request body, got %v", body)
	}
}

func TestSynthesizeCloudMode(t *testing.T) {
	var (
		body map[string]any
		auth string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("pcm"))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(server.URL, WithCloud("secret", "tts-1", "alloy"), WithFormat("pcm"), WithSpeed(1.25))
	defer synthesizer.Close()

	if _, err := synthesizer.Synthesize(context.Background(), "Hi."); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	expected := map[string]any{"model": "tts-1", "voice": "alloy", "input": "Hi.", "response_format": "pcm", "speed": 1.25}
	for key, value := range expected {
		if body[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, body[key])
		}
	}
}

func TestSynthesizeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	synthesizer := NewSynthesizer(server.URL)
	defer synthesizer.Close()

	if _, err := synthesizer.Synthesize(context.Background(), "Hi."); !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("expected synthesis failure, got %v", err)
	}
}
