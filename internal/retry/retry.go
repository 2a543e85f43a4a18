// Package retry decides whether and when an upload attempt should be tried
// again. It is a thin contract over cenkalti/backoff so tests can substitute
// deterministic interval sequences.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts is the number of attempts made before giving up.
const DefaultMaxAttempts = 3

// Policy produces attempt sequences. The zero value is not usable; use
// NewPolicy.
type Policy struct {
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets how many attempts are made in total.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.maxAttempts = n
	}
}

// WithBackOff sets the factory for the per-sequence backoff. Each sequence
// gets a fresh instance so concurrent uploads do not share state.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(p *Policy) {
		p.newBackOff = f
	}
}

// NewPolicy creates a Policy. The default is DefaultMaxAttempts attempts of
// exponential backoff with jitter.
func NewPolicy(options ...Option) Policy {
	p := Policy{
		maxAttempts: DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			off := backoff.NewExponentialBackOff()
			off.InitialInterval = 100 * time.Millisecond
			off.MaxInterval = 30 * time.Second
			return off
		},
	}
	for _, opt := range options {
		opt(&p)
	}
	return p
}

// MaxAttempts returns the attempt cap.
func (p Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Start begins a new attempt sequence.
func (p Policy) Start() *Sequence {
	return &Sequence{max: p.maxAttempts, off: p.newBackOff()}
}

// Sequence tracks one operation's attempts. Not safe for concurrent use.
type Sequence struct {
	attempt int
	max     int
	off     backoff.BackOff
}

// MoveNext records that the current attempt failed and reports whether
// another attempt should be made, and how long to sleep before it. A zero
// interval means retry immediately.
func (s *Sequence) MoveNext() (bool, time.Duration) {
	s.attempt++
	if s.attempt >= s.max {
		return false, 0
	}
	d := s.off.NextBackOff()
	if d == backoff.Stop {
		return false, 0
	}
	return true, d
}

// Attempt returns the 1-based number of the attempt currently underway.
func (s *Sequence) Attempt() int {
	return s.attempt + 1
}
