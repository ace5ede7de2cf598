package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// UpdateHandler processes one update. Handlers run off the webhook
// goroutine; an error triggers the retry schedule.
type UpdateHandler interface {
	Handle(ctx context.Context, update *Update) error
}

// Dispatcher errors surfaced to the webhook.
var (
	ErrQueueFull   = errors.New("telegram: update queue full")
	ErrQueueClosed = errors.New("telegram: dispatcher stopped")
)

// DispatcherConfig controls the worker pool and retry schedule.
type DispatcherConfig struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

func normalizeConfig(cfg DispatcherConfig) DispatcherConfig {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return cfg
}

// Dispatcher fans updates out to a bounded worker pool and serializes
// processing per chat so a conversation never handles two updates at
// once.
type Dispatcher struct {
	handler UpdateHandler
	cfg     DispatcherConfig
	logger  *slog.Logger

	queue      chan *queueItem
	chatLocks  *keyedMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	retryGroup sync.WaitGroup
}

type queueItem struct {
	update  *Update
	attempt int
}

// NewDispatcher starts the worker pool immediately.
func NewDispatcher(handler UpdateHandler, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := normalizeConfig(cfg)
	d := &Dispatcher{
		handler:   handler,
		cfg:       normalized,
		logger:    logger,
		queue:     make(chan *queueItem, normalized.QueueSize),
		chatLocks: newKeyedMutex(),
		stopCh:    make(chan struct{}),
	}
	for i := 0; i < normalized.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands an update to the pool without blocking. A full queue is
// reported to the caller, who drops the update (Telegram will not
// retry once we answer 200, so overload sheds load by design of the
// bounded queue).
func (d *Dispatcher) Enqueue(update *Update) error {
	if update == nil {
		return errors.New("telegram: update is nil")
	}

	select {
	case <-d.stopCh:
		return ErrQueueClosed
	default:
	}

	select {
	case d.queue <- &queueItem{update: update, attempt: 1}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item *queueItem) {
	chatID := item.update.ChatID()
	d.chatLocks.Lock(chatID)
	err := d.handler.Handle(context.Background(), item.update)
	d.chatLocks.Unlock(chatID)

	if err == nil {
		return
	}
	d.logger.Warn("update handling failed",
		slog.Int64("chat_id", chatID),
		slog.Int64("update_id", item.update.UpdateID),
		slog.Int("attempt", item.attempt),
		slog.String("error", err.Error()))
	d.scheduleRetry(item)
}

func (d *Dispatcher) scheduleRetry(item *queueItem) {
	if item.attempt >= d.cfg.MaxAttempts {
		d.logger.Error("update dropped after max attempts",
			slog.Int64("update_id", item.update.UpdateID),
			slog.Int("attempts", item.attempt))
		return
	}

	next := &queueItem{update: item.update, attempt: item.attempt + 1}
	delay := d.backoff(next.attempt)

	d.retryGroup.Add(1)
	go func() {
		defer d.retryGroup.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-d.stopCh:
			return
		}
		select {
		case d.queue <- next:
		case <-d.stopCh:
		}
	}()
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	backoff := float64(d.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.cfg.BackoffMultiplier
		if backoff >= float64(d.cfg.MaxBackoff) {
			return d.cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Shutdown stops intake and waits for in-flight work, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		d.retryGroup.Wait()
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timed out")
	}
}

// keyedMutex serializes work per chat ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*chatLock)}
}

func (k *keyedMutex) Lock(key int64) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &chatLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()
	l.mu.Lock()
}

func (k *keyedMutex) Unlock(key int64) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	l.mu.Unlock()
}
