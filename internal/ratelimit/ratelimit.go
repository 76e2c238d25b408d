// Package ratelimit paces navigations to the same marketplace.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Limiter interface {
	Wait(ctx context.Context) error
	Success()
	Failure()
}

const (
	failuresBeforeBackoff = 3
	successesBeforeEase   = 5
	backoffFactor         = 1.5
	easeFactor            = 0.9
	maxMinDelay           = 60 * time.Second
	maxMaxDelay           = 120 * time.Second
)

// Pacer waits a jittered delay between consecutive actions. Repeated
// failures widen the delay window; sustained success narrows it back, never
// below the configured window.
type Pacer struct {
	mu         sync.Mutex
	floorMin   time.Duration
	floorMax   time.Duration
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	failures   int
	successes  int
	rnd        *rand.Rand
}

func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		floorMin: minDelay,
		floorMax: maxDelay,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until the delay since the previous action has elapsed. The
// first call never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastAction.IsZero() {
		if wait := p.delay() - time.Since(p.lastAction); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.lastAction = time.Now()
	return nil
}

func (p *Pacer) Success() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	p.successes++
	if p.successes < successesBeforeEase {
		return
	}
	p.successes = 0
	p.minDelay = max(time.Duration(float64(p.minDelay)*easeFactor), p.floorMin)
	p.maxDelay = max(time.Duration(float64(p.maxDelay)*easeFactor), p.floorMax)
}

func (p *Pacer) Failure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successes = 0
	p.failures++
	if p.failures < failuresBeforeBackoff {
		return
	}
	p.failures = 0
	p.minDelay = min(time.Duration(float64(p.minDelay)*backoffFactor), maxMinDelay)
	p.maxDelay = min(time.Duration(float64(p.maxDelay)*backoffFactor), maxMaxDelay)
}

// Window returns the current delay bounds.
func (p *Pacer) Window() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minDelay, p.maxDelay
}

func (p *Pacer) delay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rnd.Int63n(int64(p.maxDelay-p.minDelay)))
}

// Nop never waits.
type Nop struct{}

func (Nop) Wait(ctx context.Context) error { return ctx.Err() }
func (Nop) Success()                       {}
func (Nop) Failure()                       {}
