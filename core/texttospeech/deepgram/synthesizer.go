// Package deepgram synthesizes speech with the Deepgram speak websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-companion/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"

var (
	ErrMissingAPIKey = errors.New("deepgram api key not set")
	ErrInvalidVoice  = errors.New("invalid voice")
)

// Synthesizer keeps one speak connection open and synthesizes one text per
// Speak and Flush exchange. Audio is raw mono PCM in the configured encoding.
type Synthesizer struct {
	apiKey       string
	speakURL     string
	voice        Voice
	encodingInfo audio.EncodingInfo
	dialer       *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

type SynthesizerOption func(*Synthesizer)

func WithSpeakURL(speakURL string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.speakURL = speakURL
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesizerOption {
	return func(s *Synthesizer) {
		s.encodingInfo = encodingInfo
	}
}

func NewSynthesizer(apiKey string, voice Voice, opts ...SynthesizerOption) (*Synthesizer, error) {
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVoice, voice)
	}

	s := &Synthesizer{
		apiKey:       apiKey,
		speakURL:     DefaultSpeakURL,
		voice:        voice,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synthesizer) EncodingInfo() audio.EncodingInfo {
	return s.encodingInfo
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (speech []byte, err error) {
	ctx, span := tracer.Start(ctx, "deepgram synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)), attribute.String("voice", string(s.voice)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connectLocked(ctx)
	if err != nil {
		return nil, err
	}

	// A cancelled exchange leaves audio in flight, so the connection is
	// dropped rather than reused.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		s.dropLocked()
		return nil, s.failure(ctx, fmt.Errorf("failed to send text to deepgram through websocket: %w", err))
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		s.dropLocked()
		return nil, s.failure(ctx, fmt.Errorf("failed to flush deepgram buffer through websocket: %w", err))
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			s.dropLocked()
			return nil, s.failure(ctx, fmt.Errorf("failed to read deepgram websocket message: %w", err))
		}

		switch msgType {
		case websocket.BinaryMessage:
			speech = append(speech, msg...)
		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				return speech, nil
			case "Warning", "Error":
				logger.Warn("deepgram speak message", "type", parsedMsg.Type, "message", string(msg))
			}
		}
	}
}

// Close asks the server to close the stream and releases the connection.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	writeErr := s.conn.WriteJSON(closeMsg)
	closeErr := s.conn.Close()
	s.conn = nil
	if writeErr != nil && closeErr != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, closeErr))
	}
	return nil
}

func (s *Synthesizer) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	speakURL, err := url.Parse(s.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram speak url: %w", err)
	}
	urlValues := speakURL.Query()
	urlValues.Set("encoding", s.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(s.encodingInfo.SampleRate))
	urlValues.Set("model", string(s.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := s.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Synthesizer) dropLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Synthesizer) failure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)
