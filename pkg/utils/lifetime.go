package utils

import (
	"context"
	"time"
)

// Lifetime bounds the life of a connection. Cancelling it tears down every
// goroutine serving that connection.
type Lifetime struct {
	context   context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

func NewLifetime(ctx context.Context) Lifetime {
	ctx, cancel := context.WithCancel(ctx)
	return Lifetime{
		context:   ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (l *Lifetime) Started() time.Time {
	return l.startTime
}

func (l *Lifetime) Age() time.Duration {
	return time.Since(l.startTime)
}

func (l *Lifetime) Ctx() context.Context {
	return l.context
}

func (l *Lifetime) IsDone() bool {
	return l.context.Err() != nil
}

func (l *Lifetime) Cancel() {
	l.cancel()
}
