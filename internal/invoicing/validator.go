package invoicing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// ValidationResult is the verdict returned by the tax authority.
type ValidationResult struct {
	Outcome ValidationState
	Reason  string
}

// Authority is the external tax-authority validator. The real endpoint is
// outside this codebase; deployments plug in their own implementation.
type Authority interface {
	Validate(ctx context.Context, invoice Invoice) (ValidationResult, error)
}

// SimulatedAuthority answers after a fixed latency with a configurable
// acceptance rate. Stands in for the government endpoint in development.
type SimulatedAuthority struct {
	Latency    time.Duration
	AcceptRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedAuthority builds the simulator with the reference defaults:
// 2.5s latency, 85% acceptance.
func NewSimulatedAuthority(seed int64) *SimulatedAuthority {
	return &SimulatedAuthority{
		Latency:    2500 * time.Millisecond,
		AcceptRate: 0.85,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Validate waits the configured latency, then accepts or rejects at random.
func (a *SimulatedAuthority) Validate(ctx context.Context, invoice Invoice) (ValidationResult, error) {
	if a.Latency > 0 {
		timer := time.NewTimer(a.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ValidationResult{}, ErrValidationTimeout
		case <-timer.C:
		}
	}
	a.mu.Lock()
	roll := a.rng.Float64()
	a.mu.Unlock()
	if roll < a.AcceptRate {
		return ValidationResult{Outcome: ValidationAccepted}, nil
	}
	return ValidationResult{
		Outcome: ValidationRejected,
		Reason:  "document rejected by tax authority validation",
	}, nil
}
