package utils

import (
	"context"
	"time"
)

// Pacer enforces a minimum interval between successive calls.
type Pacer struct {
	interval time.Duration
	last     time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer. The first Wait never sleeps.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, sleep: SleepContext}
}

// Wait blocks until interval has elapsed since the previous Wait returned.
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.last.IsZero() {
		if elapsed := time.Since(p.last); elapsed < p.interval {
			if err := p.sleep(ctx, p.interval-elapsed); err != nil {
				return err
			}
		}
	}
	p.last = time.Now()
	return nil
}
