package scraper

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"car-advisor/utils"
)

// Pacer spaces requests by a random delay drawn from [Min, Max].
type Pacer struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a Pacer; a zero range disables waiting.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		max = min
	}
	return &Pacer{Min: min, Max: max, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Delay draws the next delay.
func (p *Pacer) Delay() time.Duration {
	if p == nil || p.Max <= 0 {
		return 0
	}
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rnd.Int63n(int64(span)+1))
}

// Wait sleeps for the next delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return utils.Sleep(ctx, p.Delay())
}
