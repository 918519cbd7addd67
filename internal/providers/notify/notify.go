// Package notify delivers operator notifications. Delivery is best effort:
// callers never branch on the result.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Message struct {
	Title  string
	Body   string
	Level  Level
	Fields map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type NoOp struct{}

func (NoOp) Notify(context.Context, Message) error { return nil }

// LogNotifier writes notifications to the process log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	fields := []zap.Field{zap.String("title", msg.Title), zap.String("body", msg.Body)}
	for k, v := range msg.Fields {
		fields = append(fields, zap.String(k, v))
	}
	switch msg.Level {
	case LevelError:
		n.log.Error("operator notification", fields...)
	case LevelWarning:
		n.log.Warn("operator notification", fields...)
	default:
		n.log.Info("operator notification", fields...)
	}
	return nil
}

// Async hands messages to a background goroutine and returns immediately.
// Messages are dropped when the buffer is full.
type Async struct {
	next    Notifier
	log     *zap.Logger
	queue   chan Message
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, log *zap.Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 32
	}
	a := &Async{
		next:    next,
		log:     log.Named("notify.async"),
		queue:   make(chan Message, buffer),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Notify enqueues msg without blocking. Messages sent after Close are dropped.
func (a *Async) Notify(_ context.Context, msg Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Debug("notification dropped, notifier closed", zap.String("title", msg.Title))
		return nil
	}
	select {
	case a.queue <- msg:
	default:
		a.log.Warn("notification dropped, queue full", zap.String("title", msg.Title))
	}
	return nil
}

func (a *Async) loop() {
	defer close(a.done)
	for msg := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, msg); err != nil {
			a.log.Warn("notification delivery failed", zap.String("title", msg.Title), zap.Error(err))
		}
		cancel()
	}
}

// Close drains queued messages and waits for delivery to finish.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
