package otoplayer

import (
	"testing"

	"github.com/koscakluka/ema-companion/core/audio"
)

func TestQueueReaderPadsWithSilence(t *testing.T) {
	var queue audio.PlaybackQueue
	done := queue.Enqueue([]byte{7, 7})

	buf := []byte{1, 1, 1, 1}
	n, err := queueReader{queue: &queue}.Read(buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected full read of %d bytes, got %d", len(buf), n)
	}
	if buf[0] != 7 || buf[1] != 7 || buf[2] != 0 || buf[3] != 0 {
		t.Fatalf("expected audio followed by silence, got %v", buf)
	}

	select {
	case <-done:
	default:
		t.Fatalf("expected queued audio to be marked played")
	}
}
