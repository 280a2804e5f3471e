// Package broadcast pushes progress snapshots to subscribers while a pattern runs.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jt05610/sandtable/state"
	"go.uber.org/zap"
)

type Subscriber interface {
	Send(ctx context.Context, snap state.Snapshot) error
}

type Source interface {
	Snapshot() state.Snapshot
}

type Broadcaster struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	subs    map[string]Subscriber
	running bool
}

func New(src Source, interval time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		src:      src,
		interval: interval,
		logger:   logger,
		subs:     make(map[string]Subscriber),
	}
}

// Subscribe registers s and returns the id to unsubscribe with.
func (b *Broadcaster) Subscribe(s Subscriber) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = s
	return id
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Start launches the push loop unless one is already running. The loop ends
// after pushing the first snapshot with no running pattern.
func (b *Broadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	go b.loop(ctx)
}

func (b *Broadcaster) loop(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.stopped()
			return
		case <-ticker.C:
			snap := b.src.Snapshot()
			if !snap.Running && b.finish() {
				b.Publish(ctx, snap)
				return
			}
			b.Publish(ctx, snap)
		}
	}
}

// finish ends the loop unless a pattern started since the last snapshot. The
// check and the flag update share b.mu with Start.
func (b *Broadcaster) finish() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.src.Snapshot().Running {
		return false
	}
	b.running = false
	return true
}

func (b *Broadcaster) stopped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

// Publish sends snap to every subscriber, dropping those that fail.
func (b *Broadcaster) Publish(ctx context.Context, snap state.Snapshot) {
	b.mu.Lock()
	subs := make(map[string]Subscriber, len(b.subs))
	for id, s := range b.subs {
		subs[id] = s
	}
	b.mu.Unlock()

	for id, s := range subs {
		if err := s.Send(ctx, snap); err != nil {
			b.logger.Warn("Dropping subscriber", zap.String("id", id), zap.Error(err))
			b.Unsubscribe(id)
		}
	}
}

// Chan is an in-process subscriber. Snapshots are dropped while the channel is full.
type Chan chan state.Snapshot

func (c Chan) Send(ctx context.Context, snap state.Snapshot) error {
	select {
	case c <- snap:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Func adapts a function to a Subscriber.
type Func func(ctx context.Context, snap state.Snapshot) error

func (f Func) Send(ctx context.Context, snap state.Snapshot) error {
	return f(ctx, snap)
}
