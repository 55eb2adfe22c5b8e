package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

type GuardSettings struct {
	Name     string
	Timeout  time.Duration
	Failures int
	Cooldown time.Duration
	// OnStateChange is optional and receives every breaker transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Guarded bounds every call to the inner provider with a timeout and a
// circuit breaker that opens after Failures consecutive errors and half-opens
// after Cooldown.
type Guarded struct {
	inner   Completer
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewGuarded(inner Completer, s GuardSettings) *Guarded {
	if s.Timeout <= 0 {
		s.Timeout = 20 * time.Second
	}
	if s.Failures < 1 {
		s.Failures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = time.Minute
	}
	failures := uint32(s.Failures)
	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller that gave up (shutdown, dropped request) says nothing
		// about the provider. Our own timeout surfaces as DeadlineExceeded
		// and still counts.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("llm breaker name=%s from=%s to=%s", name, from, to)
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	}
	return &Guarded{
		inner:   inner,
		timeout: s.Timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *Guarded) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g == nil || g.inner == nil {
		return "", ErrProviderUnavailable
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.Complete(callCtx, prompt, maxTokens)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return "", err
	}
	text, _ := out.(string)
	return text, nil
}

// State exposes the breaker state for metrics and tests.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
