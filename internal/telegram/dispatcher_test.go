package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler counts attempts per update and can fail the first n.
type recordingHandler struct {
	mu         sync.Mutex
	attempts   map[int64]int
	failBefore int
	done       chan int64
}

func newRecordingHandler(failBefore int) *recordingHandler {
	return &recordingHandler{
		attempts:   make(map[int64]int),
		failBefore: failBefore,
		done:       make(chan int64, 16),
	}
}

func (h *recordingHandler) Handle(_ context.Context, update *Update) error {
	h.mu.Lock()
	h.attempts[update.UpdateID]++
	attempt := h.attempts[update.UpdateID]
	h.mu.Unlock()

	if attempt < h.failBefore {
		return errors.New("transient failure")
	}
	h.done <- update.UpdateID
	return nil
}

func (h *recordingHandler) attemptsFor(updateID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[updateID]
}

func testUpdate(updateID, chatID int64, text string) *Update {
	return &Update{
		UpdateID: updateID,
		Message: &Message{
			Chat: Chat{ID: chatID},
			From: &User{ID: chatID, FirstName: "Tester"},
			Text: text,
		},
	}
}

func waitForDone(t *testing.T, h *recordingHandler, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for update %d of %d", i+1, want)
		}
	}
}

func TestDispatcherProcessesUpdates(t *testing.T) {
	handler := newRecordingHandler(1)
	d := NewDispatcher(handler, DispatcherConfig{Workers: 2}, nil)
	defer d.Shutdown(context.Background())

	require.NoError(t, d.Enqueue(testUpdate(1, 100, "hello")))
	require.NoError(t, d.Enqueue(testUpdate(2, 200, "world")))
	waitForDone(t, handler, 2)

	assert.Equal(t, 1, handler.attemptsFor(1))
	assert.Equal(t, 1, handler.attemptsFor(2))
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	handler := newRecordingHandler(3)
	d := NewDispatcher(handler, DispatcherConfig{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, nil)
	defer d.Shutdown(context.Background())

	require.NoError(t, d.Enqueue(testUpdate(7, 100, "flaky")))
	waitForDone(t, handler, 1)

	assert.Equal(t, 3, handler.attemptsFor(7))
}

func TestDispatcherDropsAfterMaxAttempts(t *testing.T) {
	handler := newRecordingHandler(10) // never succeeds within budget
	d := NewDispatcher(handler, DispatcherConfig{
		Workers:        1,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, nil)

	require.NoError(t, d.Enqueue(testUpdate(9, 100, "doomed")))

	// Give the retry schedule time to run out, then stop the pool.
	deadline := time.Now().Add(2 * time.Second)
	for handler.attemptsFor(9) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d.Shutdown(context.Background())

	assert.Equal(t, 2, handler.attemptsFor(9))
}

func TestDispatcherQueueLimits(t *testing.T) {
	block := make(chan struct{})
	handler := handlerFunc(func(ctx context.Context, u *Update) error {
		<-block
		return nil
	})
	d := NewDispatcher(handler, DispatcherConfig{Workers: 1, QueueSize: 1}, nil)

	// First update occupies the worker, second fills the queue.
	require.NoError(t, d.Enqueue(testUpdate(1, 100, "a")))
	var err error
	for i := int64(2); i <= 4; i++ {
		if err = d.Enqueue(testUpdate(i, 100+i, "b")); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	d.Shutdown(context.Background())

	assert.ErrorIs(t, d.Enqueue(testUpdate(99, 1, "late")), ErrQueueClosed)
}

type handlerFunc func(ctx context.Context, update *Update) error

func (f handlerFunc) Handle(ctx context.Context, update *Update) error { return f(ctx, update) }
