// Package httptts synthesizes speech with a plain HTTP request per segment.
//
// In local mode the body is {"text", "text_language"}, as served by
// GPT-SoVITS style servers. In cloud mode the body follows the OpenAI
// audio/speech shape {"model", "voice", "input", "response_format", "speed"}.
package httptts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"resty.dev/v3"
)

const (
	DefaultLanguage = "en"
	DefaultFormat   = "wav"

	defaultTimeout = 60 * time.Second
)

var ErrSynthesisFailed = errors.New("speech synthesis failed")

type Synthesizer struct {
	client *resty.Client
	url    string

	language   string
	gatewayKey string

	cloud  bool
	apiKey string
	model  string
	voice  string
	format string
	speed  float64
}

type SynthesizerOption func(*Synthesizer)

func WithLanguage(language string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.language = language
	}
}

// WithGatewayKey authenticates local mode requests with the X-API-Key header.
func WithGatewayKey(key string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.gatewayKey = key
	}
}

// WithCloud switches to the OpenAI style request body.
func WithCloud(apiKey, model, voice string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.cloud = true
		s.apiKey = apiKey
		s.model = model
		s.voice = voice
	}
}

// WithFormat sets the cloud response format. Players expect wav or raw pcm.
func WithFormat(format string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.format = format
	}
}

func WithSpeed(speed float64) SynthesizerOption {
	return func(s *Synthesizer) {
		s.speed = speed
	}
}

func WithHTTPClient(client *http.Client) SynthesizerOption {
	return func(s *Synthesizer) {
		s.client = resty.NewWithClient(client)
	}
}

func NewSynthesizer(url string, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		url:      url,
		language: DefaultLanguage,
		format:   DefaultFormat,
		speed:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = resty.NewWithClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		})
	}
	return s
}

type localRequest struct {
	Text         string `json:"text"`
	TextLanguage string `json:"text_language"`
}

type cloudRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio []byte, err error) {
	ctx, span := tracer.Start(ctx, "http synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)), attribute.Bool("cloud", s.cloud))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if s.cloud {
		req.SetHeader("Authorization", "Bearer "+s.apiKey).
			SetBody(cloudRequest{
				Model:          s.model,
				Voice:          s.voice,
				Input:          text,
				ResponseFormat: s.format,
				Speed:          s.speed,
			})
	} else {
		if s.gatewayKey != "" {
			req.SetHeader("X-API-Key", s.gatewayKey)
		}
		req.SetBody(localRequest{Text: text, TextLanguage: s.language})
	}

	res, err := req.Post(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to request speech: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSynthesisFailed, res.Status())
	}

	audio = res.Bytes()
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesisFailed)
	}
	logger.Debug("speech synthesized", "bytes", len(audio))
	return audio, nil
}

func (s *Synthesizer) Close() {
	s.client.Close()
}
