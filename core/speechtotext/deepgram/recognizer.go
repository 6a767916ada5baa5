// Package deepgram recognizes recorded utterances with the Deepgram listen
// websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-companion/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"
	DefaultLanguage  = "en-US"

	// milliseconds of audio per websocket message
	chunkDuration = 100
)

var ErrMissingAPIKey = errors.New("deepgram api key not set")

// Recognizer sends a whole recording over one listen connection and returns
// the joined final transcripts.
type Recognizer struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	dialer    *websocket.Dialer
}

type RecognizerOption func(*Recognizer)

func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) {
		r.listenURL = listenURL
	}
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) {
		r.model = model
	}
}

func WithLanguage(language string) RecognizerOption {
	return func(r *Recognizer) {
		r.language = language
	}
}

func NewRecognizer(apiKey string, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		apiKey:    apiKey,
		listenURL: DefaultListenURL,
		model:     DefaultModel,
		language:  DefaultLanguage,
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recognizer) Recognize(ctx context.Context, wav []byte) (transcript string, err error) {
	ctx, span := tracer.Start(ctx, "deepgram recognize")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if r.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	pcm, info, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", fmt.Errorf("failed to decode recording: %w", err)
	}
	encoding, err := encodingForRecording(info)
	if err != nil {
		return "", fmt.Errorf("invalid recording: %w", err)
	}
	span.SetAttributes(attribute.Int("recording.bytes", len(pcm)))

	conn, err := r.connect(ctx, encoding)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- r.stream(conn, pcm, encoding.chunkSize(chunkDuration))
	}()

	var finals []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", context.Cause(ctx)
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return "", fmt.Errorf("failed to read deepgram websocket message: %w", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		text, final, err := parseTranscript(msg)
		if err != nil {
			logger.Debug("failed to parse deepgram message", "error", err)
			continue
		}
		if final && text != "" {
			finals = append(finals, text)
		}
	}

	if err := <-writeErr; err != nil {
		return "", err
	}
	return strings.Join(finals, " "), nil
}

func (r *Recognizer) connect(ctx context.Context, encoding listenEncoding) (*websocket.Conn, error) {
	listenURL, err := url.Parse(r.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram listen url: %w", err)
	}
	queryParams := listenURL.Query()
	encoding.apply(queryParams)
	queryParams.Set("model", r.model)
	queryParams.Set("language", r.language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := r.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// stream writes the audio in chunks and asks the server to finish.
func (r *Recognizer) stream(conn *websocket.Conn, pcm []byte, chunkSize int) error {
	for start := 0; start < len(pcm); start += chunkSize {
		end := min(start+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

func parseTranscript(msg []byte) (text string, final bool, err error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return "", false, err
	}
	if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
		return "", false, nil
	}

	var msgResp api.MessageResponse
	if err := json.Unmarshal(msg, &msgResp); err != nil {
		return "", false, err
	}
	if len(msgResp.Channel.Alternatives) == 0 {
		return "", msgResp.IsFinal, nil
	}
	return strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript), msgResp.IsFinal, nil
}
