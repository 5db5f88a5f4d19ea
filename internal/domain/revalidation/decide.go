package revalidation

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
)

// Config configures the policy. Zero durations take their defaults.
type Config struct {
	BaseDelay time.Duration
	CapDelay  time.Duration
	// MaxRetries of zero disables retries; a negative value takes the
	// default of 3
	MaxRetries    int
	FocusThrottle time.Duration
	// IdleWindow is how long after idle-end a network failure still
	// counts as idle-adjacent
	IdleWindow time.Duration
}

// DefaultConfig returns the standard policy settings.
func DefaultConfig() Config {
	return Config{
		BaseDelay:     time.Second,
		CapDelay:      30 * time.Second,
		MaxRetries:    3,
		FocusThrottle: 30 * time.Second,
		IdleWindow:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.CapDelay <= 0 {
		c.CapDelay = def.CapDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.FocusThrottle <= 0 {
		c.FocusThrottle = def.FocusThrottle
	}
	if c.IdleWindow < 0 {
		c.IdleWindow = def.IdleWindow
	}
	return c
}

// Decision is what happens to a failed fetch.
type Decision int

const (
	Surface Decision = iota
	Retry
	Suppress
)

// String returns the string representation of the decision
func (d Decision) String() string {
	switch d {
	case Suppress:
		return "suppress"
	case Retry:
		return "retry"
	default:
		return "surface"
	}
}

// MarshalText encodes the decision by name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Input is everything a decision depends on.
type Input struct {
	Kind      faults.Kind
	Status    int
	Attempt   int
	AfterIdle bool
}

// Verdict is the outcome of Decide. Delay is set only for Retry.
type Verdict struct {
	Decision Decision
	Delay    time.Duration
	Reason   string
}

// Backoff returns min(base * 2^attempt, ceiling).
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Decide applies the policy to one failure. Attempt counts retries
// already made, so attempt 0 is the first failure.
func (c Config) Decide(in Input) Verdict {
	c = c.withDefaults()

	if in.Status >= 400 && in.Status < 500 {
		in.Kind = faults.ClientRequest
	}

	switch in.Kind {
	case faults.Aborted:
		return Verdict{Decision: Suppress, Reason: "aborted"}
	case faults.GraphicsContextLoss:
		return Verdict{Decision: Suppress, Reason: "handled by renderer"}
	case faults.NetworkTransient:
		if in.AfterIdle {
			return Verdict{Decision: Suppress, Reason: "idle-adjacent network failure"}
		}
	case faults.ClientRequest:
		return Verdict{Decision: Surface, Reason: "client error"}
	}

	if !retryable(in.Kind) {
		return Verdict{Decision: Surface, Reason: "not retryable"}
	}
	if in.Attempt >= c.MaxRetries {
		return Verdict{Decision: Surface, Reason: "retry ceiling reached"}
	}
	return Verdict{
		Decision: Retry,
		Delay:    Backoff(in.Attempt, c.BaseDelay, c.CapDelay),
		Reason:   "transient",
	}
}

func retryable(kind faults.Kind) bool {
	switch kind {
	case faults.NetworkTransient, faults.DataRefresh, faults.TimeoutExceeded:
		return true
	default:
		return false
	}
}
