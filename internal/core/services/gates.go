package services

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate bounds concurrent calls to one external capability and smooths
// their rate. Every fetch, embed, and vector-store call passes through
// its capability's gate, which is how the pipeline applies backpressure
// against rate-limited dependencies.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// GateConfig sizes a capability gate.
type GateConfig struct {
	// MaxInFlight is the maximum concurrent outstanding calls.
	MaxInFlight int

	// RequestsPerSecond is the sustained rate limit. Zero disables
	// rate smoothing.
	RequestsPerSecond float64

	// Burst is the token bucket burst size.
	Burst int
}

// NewGate creates a capability gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}

	g := &Gate{sem: semaphore.NewWeighted(int64(cfg.MaxInFlight))}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.MaxInFlight
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return g
}

// Acquire blocks until a slot and a rate token are available.
// Every successful Acquire must be paired with Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.sem.Release(1)
			return err
		}
	}
	return nil
}

// Release frees the slot taken by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do runs fn inside the gate.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Gates holds one gate per external capability, sized independently.
type Gates struct {
	Fetch  *Gate
	Embed  *Gate
	Vector *Gate
}

// NewGates creates the per-capability gates.
func NewGates(fetch, embed, vector GateConfig) *Gates {
	return &Gates{
		Fetch:  NewGate(fetch),
		Embed:  NewGate(embed),
		Vector: NewGate(vector),
	}
}

// DefaultGates returns conservative limits suitable for public APIs.
func DefaultGates() *Gates {
	return NewGates(
		GateConfig{MaxInFlight: 2, RequestsPerSecond: 1, Burst: 2},
		GateConfig{MaxInFlight: 4, RequestsPerSecond: 8, Burst: 8},
		GateConfig{MaxInFlight: 8, RequestsPerSecond: 20, Burst: 20},
	)
}
