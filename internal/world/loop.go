package world

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickInterval is the fixed world tick duration (20 ticks per second).
const TickInterval = 50 * time.Millisecond

// Loop is the single periodic driver of the world. Steps never overlap.
type Loop struct {
	registry *Registry
	listener Listener
	log      *zap.Logger
	now      func() time.Time
}

func NewLoop(registry *Registry, listener Listener, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{registry: registry, listener: listener, log: log, now: time.Now}
}

// Step runs one tick: queued lifecycle changes first, then the clock, then the tick callback.
func (l *Loop) Step(ctx context.Context) {
	for _, ev := range l.registry.drainLifecycle() {
		switch ev.kind {
		case appeared:
			e := ev.entity
			if current, ok := l.registry.Get(e.ID); ok {
				e = current
			}
			l.listener.OnAppear(ctx, e)
		case disappeared:
			l.listener.OnDisappear(ctx, ev.entity.ID)
		}
	}

	l.registry.advance()
	l.listener.OnTick(ctx, l.now(), l.registry.Entities())
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	l.log.Info("world loop started", zap.Duration("interval", TickInterval))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("world loop stopped")
			return
		case <-ticker.C:
			start := time.Now()
			l.Step(ctx)
			if elapsed := time.Since(start); elapsed > TickInterval {
				l.log.Warn("tick overran", zap.Duration("elapsed", elapsed))
			}
		}
	}
}
