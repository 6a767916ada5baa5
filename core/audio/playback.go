package audio

import (
	"context"
	"sync"
)

// PlaybackQueue holds PCM waiting for an output device. The device callback
// pulls from it with Fill; writers block in Play until their audio has been
// handed to the device.
type PlaybackQueue struct {
	mu      sync.Mutex
	pending []byte
	queued  int64
	played  int64
	marks   []playbackMark
}

type playbackMark struct {
	position int64
	done     chan struct{}
}

// Enqueue appends pcm and returns a channel closed once all of it was
// played or dropped by Clear.
func (q *PlaybackQueue) Enqueue(pcm []byte) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, pcm...)
	q.queued += int64(len(pcm))

	mark := playbackMark{position: q.queued, done: make(chan struct{})}
	if len(pcm) == 0 {
		close(mark.done)
		return mark.done
	}
	q.marks = append(q.marks, mark)
	return mark.done
}

// Play enqueues pcm and waits for it to be played. When ctx is done the
// queue is cleared and the context cause is returned.
func (q *PlaybackQueue) Play(ctx context.Context, pcm []byte) error {
	done := q.Enqueue(pcm)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.Clear()
		return context.Cause(ctx)
	}
}

// Fill copies pending audio into p and pads the rest with silence. It
// returns how many bytes of real audio were copied.
func (q *PlaybackQueue) Fill(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(p, q.pending)
	clear(p[n:])
	q.pending = q.pending[n:]
	if len(q.pending) == 0 {
		q.pending = nil
	}
	q.played += int64(n)

	passed := 0
	for _, mark := range q.marks {
		if mark.position > q.played {
			break
		}
		close(mark.done)
		passed++
	}
	q.marks = q.marks[passed:]
	return n
}

// Clear drops pending audio and releases every waiting writer.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.played += int64(len(q.pending))
	q.pending = nil
	for _, mark := range q.marks {
		close(mark.done)
	}
	q.marks = nil
}

// Buffered returns the number of bytes not yet played.
func (q *PlaybackQueue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}
