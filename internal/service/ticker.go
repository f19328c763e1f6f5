package service

import (
	"context"
	"time"
)

// Ticker invokes fn every interval until ctx is cancelled.
type Ticker interface {
	Every(ctx context.Context, interval time.Duration, fn func(context.Context))
}

// IntervalTicker is the Ticker backed by time.Ticker. A slow fn delays the
// next run rather than overlapping it.
type IntervalTicker struct{}

func (IntervalTicker) Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
