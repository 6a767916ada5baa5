package voiceactivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newVADServer(t *testing.T, dropFirstConnection bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if connections.Add(1) == 1 && dropFirstConnection {
			return
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			speech := len(msg) > 0 && msg[0] != 0
			if err := conn.WriteJSON(map[string]bool{"is_speech": speech}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return server, &connections
}

func websocketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRemoteDetectorReportsClassifications(t *testing.T) {
	server, _ := newVADServer(t, false)

	results := make(chan bool, 4)
	detector := NewRemoteDetector(websocketURL(server))
	if err := detector.Start(context.Background(), func(speech bool) { results <- speech }); err != nil {
		t.Fatalf("expected detector to connect, got %v", err)
	}
	defer detector.Stop()

	if err := detector.Feed([]byte{1, 0}); err != nil {
		t.Fatalf("expected frame to be sent, got %v", err)
	}
	if err := detector.Feed([]byte{0, 0}); err != nil {
		t.Fatalf("expected frame to be sent, got %v", err)
	}

	for _, expected := range []bool{true, false} {
		select {
		case got := <-results:
			if got != expected {
				t.Fatalf("expected speech=%v, got %v", expected, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("expected classification")
		}
	}
}

func TestRemoteDetectorReconnects(t *testing.T) {
	server, connections := newVADServer(t, true)

	results := make(chan bool, 256)
	detector := NewRemoteDetector(websocketURL(server), WithReconnects(3, 10*time.Millisecond))
	if err := detector.Start(context.Background(), func(speech bool) { results <- speech }); err != nil {
		t.Fatalf("expected detector to connect, got %v", err)
	}
	defer detector.Stop()

	waitForCondition(t, 2*time.Second, "reconnect", func() bool { return connections.Load() >= 2 })

	deadline := time.After(2 * time.Second)
	for {
		_ = detector.Feed([]byte{1, 0})
		select {
		case got := <-results:
			if !got {
				t.Fatalf("expected speech classification after reconnect")
			}
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected classification after reconnect")
		}
	}
}

func TestEnergyDetectorThreshold(t *testing.T) {
	detector := NewEnergyDetector(0)

	var got []bool
	_ = detector.Start(context.Background(), func(speech bool) { got = append(got, speech) })
	_ = detector.Feed(frame(loud))
	_ = detector.Feed(frame(quiet))
	_ = detector.Stop()
	_ = detector.Feed(frame(loud))

	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("expected [true false], got %v", got)
	}
}
