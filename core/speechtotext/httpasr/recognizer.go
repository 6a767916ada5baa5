// Package httpasr recognizes recordings by uploading them to an HTTP speech
// recognition endpoint.
//
// Two response shapes are accepted: {"text": "..."} from OpenAI-style cloud
// transcription APIs and {"status": "success", "text": "..."} from the local
// recognition server.
package httpasr

import (
	"bytes"
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
	defaultTimeout = 30 * time.Second
	uploadFileName = "recording.wav"
)

var ErrRecognitionFailed = errors.New("speech recognition failed")

type Recognizer struct {
	client *resty.Client
	url    string

	apiKey     string
	gatewayKey string
	model      string
}

type RecognizerOption func(*Recognizer)

// WithAPIKey authenticates with a bearer token, as cloud providers expect.
func WithAPIKey(apiKey string) RecognizerOption {
	return func(r *Recognizer) {
		r.apiKey = apiKey
	}
}

// WithGatewayKey authenticates against a gateway with the X-API-Key header.
func WithGatewayKey(key string) RecognizerOption {
	return func(r *Recognizer) {
		r.gatewayKey = key
	}
}

// WithModel adds the model form field required by cloud providers.
func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) {
		r.model = model
	}
}

func WithHTTPClient(client *http.Client) RecognizerOption {
	return func(r *Recognizer) {
		r.client = resty.NewWithClient(client)
	}
}

func NewRecognizer(url string, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{url: url}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = resty.NewWithClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		})
	}
	return r
}

type recognitionResult struct {
	Status  string `json:"status"`
	Text    string `json:"text"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (r *Recognizer) Recognize(ctx context.Context, wav []byte) (text string, err error) {
	ctx, span := tracer.Start(ctx, "http recognize")
	defer span.End()
	span.SetAttributes(attribute.Int("recording.bytes", len(wav)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var result recognitionResult
	req := r.client.R().
		SetContext(ctx).
		SetFileReader("file", uploadFileName, bytes.NewReader(wav)).
		SetResult(&result).
		SetError(&result)
	if r.model != "" {
		req.SetMultipartFormData(map[string]string{"model": r.model})
	}
	if r.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+r.apiKey)
	} else if r.gatewayKey != "" {
		req.SetHeader("X-API-Key", r.gatewayKey)
	}

	res, err := req.Post(r.url)
	if err != nil {
		return "", fmt.Errorf("failed to send recording: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: %s: %s", ErrRecognitionFailed, res.Status(), result.reason())
	}
	if result.Text == "" && result.Status != "" && result.Status != "success" {
		return "", fmt.Errorf("%w: %s", ErrRecognitionFailed, result.reason())
	}

	logger.Debug("recording recognized", "characters", len(result.Text))
	return result.Text, nil
}

func (r *Recognizer) Close() {
	r.client.Close()
}

func (r recognitionResult) reason() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	}
	return "unknown error"
}
