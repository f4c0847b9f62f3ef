package sshutils

import (
	"context"
	"time"
)

// TimeProvider abstracts the clock used by the polling and retry loops
type TimeProvider interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultTimeProvider implements the TimeProvider interface using the standard time package
type DefaultTimeProvider struct{}

func NewDefaultTimeProvider() TimeProvider {
	return &DefaultTimeProvider{}
}

func (p *DefaultTimeProvider) Now() time.Time {
	return time.Now()
}

// Sleep returns early with ctx.Err() if ctx is done first.
func (p *DefaultTimeProvider) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
