package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
)

// ErrBreakerOpen is returned while the guarded publisher is skipped.
var ErrBreakerOpen = errors.New("event publisher unavailable: breaker open")

type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

// Breaker trips after threshold consecutive failures and lets one probe through every openFor.
type Breaker struct {
	mu               sync.Mutex
	st               breakerState
	consecutiveFails int
	threshold        int
	openFor          time.Duration
	nextTryAt        time.Time
	probeInFlight    bool
	now              func() time.Time
}

func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{threshold: threshold, openFor: openFor, now: time.Now}
}

// TryAcquire reports whether a call may proceed. In the open state only one probe is admitted once openFor has passed.
func (b *Breaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case open:
		if b.now().After(b.nextTryAt) && !b.probeInFlight {
			b.st = halfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case halfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	b.consecutiveFails = 0
	b.st = closed
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == halfOpen {
		b.trip()
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.st = open
	b.nextTryAt = b.now().Add(b.openFor)
	b.probeInFlight = false
}

// Guarded wraps a Publisher so a dead broker costs requests nothing while the breaker is open.
type Guarded struct {
	pub Publisher
	br  *Breaker
}

func NewGuarded(pub Publisher, br *Breaker) *Guarded {
	return &Guarded{pub: pub, br: br}
}

func (g *Guarded) Publish(ctx context.Context, env model.Envelope) error {
	if !g.br.TryAcquire() {
		return ErrBreakerOpen
	}
	if err := g.pub.Publish(ctx, env); err != nil {
		g.br.OnFailure()
		return err
	}
	g.br.OnSuccess()
	return nil
}
