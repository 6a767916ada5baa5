package voiceactivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultMaxReconnects  = 5
	defaultReconnectDelay = time.Second
)

var ErrNotConnected = errors.New("vad server not connected")

// RemoteDetector streams audio to a VAD server over a websocket. Frames are
// sent as binary messages; the server answers with {"is_speech": bool}.
type RemoteDetector struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	maxReconnects  int
	reconnectDelay time.Duration

	connMu     sync.Mutex
	conn       *websocket.Conn
	onActivity func(bool)
	cancel     context.CancelFunc
	done       chan struct{}
}

type RemoteDetectorOption func(*RemoteDetector)

func WithHeader(header http.Header) RemoteDetectorOption {
	return func(d *RemoteDetector) {
		d.header = header
	}
}

// WithReconnects sets how many times a dropped connection is redialed and
// how long to wait between attempts.
func WithReconnects(attempts int, delay time.Duration) RemoteDetectorOption {
	return func(d *RemoteDetector) {
		d.maxReconnects = attempts
		d.reconnectDelay = delay
	}
}

func NewRemoteDetector(url string, opts ...RemoteDetectorOption) *RemoteDetector {
	d := &RemoteDetector{
		url:            url,
		dialer:         websocket.DefaultDialer,
		maxReconnects:  defaultMaxReconnects,
		reconnectDelay: defaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RemoteDetector) Start(ctx context.Context, onActivity func(speech bool)) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.connMu.Lock()
	d.conn = conn
	d.onActivity = onActivity
	d.cancel = cancel
	d.done = done
	d.connMu.Unlock()

	go d.readLoop(ctx, conn, done)
	return nil
}

func (d *RemoteDetector) Feed(frame []byte) error {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.conn == nil {
		return ErrNotConnected
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write to vad server: %w", err)
	}
	return nil
}

func (d *RemoteDetector) Stop() error {
	d.connMu.Lock()
	cancel, done, conn := d.cancel, d.done, d.conn
	d.cancel, d.conn, d.onActivity = nil, nil, nil
	d.connMu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	var err error
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = conn.Close()
	}
	<-done
	return err
}

func (d *RemoteDetector) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.url, d.header)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to vad server: %w", err)
	}
	return conn, nil
}

func (d *RemoteDetector) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	attempts := 0
	for {
		err := d.read(conn)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("vad server connection lost", "error", err)
		conn.Close()

		conn = nil
		for conn == nil {
			if attempts >= d.maxReconnects {
				logger.Error("giving up on vad server", "attempts", attempts)
				d.setConn(nil)
				return
			}
			attempts++

			select {
			case <-ctx.Done():
				return
			case <-time.After(d.reconnectDelay):
			}

			logger.Info("reconnecting to vad server", "attempt", attempts, "max_attempts", d.maxReconnects)
			if conn, err = d.dial(ctx); err != nil {
				logger.Warn("vad server reconnect failed", "error", err)
				conn = nil
			}
		}
		if !d.setConn(conn) {
			conn.Close()
			return
		}
		attempts = 0
	}
}

// setConn swaps the live connection unless the detector was stopped.
func (d *RemoteDetector) setConn(conn *websocket.Conn) bool {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.cancel == nil {
		return false
	}
	d.conn = conn
	return true
}

func (d *RemoteDetector) read(conn *websocket.Conn) error {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var result struct {
			IsSpeech bool `json:"is_speech"`
		}
		if err := json.Unmarshal(msg, &result); err != nil {
			logger.Debug("failed to unmarshal vad message", "error", err)
			continue
		}

		d.connMu.Lock()
		onActivity := d.onActivity
		d.connMu.Unlock()
		if onActivity != nil {
			onActivity(result.IsSpeech)
		}
	}
}
