package revalidation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

var ErrAlreadyWatching = errors.New("revalidation: already watching a bus")

// IdleBus is the part of the lifecycle bus the policy listens on.
type IdleBus interface {
	SubscribeIdle(onStart, onEnd lifecycle.Listener) (func(), error)
}

// AttemptState is the retry bookkeeping the fetch layer passes in.
type AttemptState struct {
	RetryCount int
}

// RetryAttempt is one scheduled retry. It lives until the key succeeds,
// is cancelled, or gives up.
type RetryAttempt struct {
	Key       string        `json:"key"`
	Kind      faults.Kind   `json:"-"`
	KindName  string        `json:"kind"`
	Attempt   int           `json:"attempt"`
	NextDelay time.Duration `json:"-"`
	DueAt     time.Time     `json:"due_at"`

	timer clock.Timer
}

// Policy wraps a data-fetching layer's error hooks.
//
// OnError is the reporting hook and OnErrorRetry the scheduling hook. A
// fetch layer calls both for each failure, OnError first. Both reach the
// same verdict because the retry count OnError sees is the one the previous
// OnErrorRetry recorded.
type Policy struct {
	mu sync.Mutex

	cfg      Config
	clk      clock.Clock
	boundary Boundary
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	focus    *rate.Limiter

	idle        bool
	lastIdleEnd time.Time
	attempts    map[string]*RetryAttempt
	unwatch     func()
}

// NewPolicy creates a policy. A nil boundary discards surfaced errors.
func NewPolicy(cfg Config, clk clock.Clock, boundary Boundary, logger *zap.Logger) *Policy {
	cfg = cfg.withDefaults()
	if boundary == nil {
		boundary = BoundaryFunc(func(Report) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		cfg:      cfg,
		clk:      clk,
		boundary: boundary,
		logger:   logger,
		focus:    rate.NewLimiter(rate.Every(cfg.FocusThrottle), 1),
		attempts: make(map[string]*RetryAttempt),
	}
}

// WithMetrics attaches a metrics collector
func (p *Policy) WithMetrics(metrics *monitoring.Metrics) *Policy {
	p.metrics = metrics
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Watch tracks idle transitions on bus so failures can be judged
// idle-adjacent. Idle state from an earlier watch is discarded. The
// returned function stops watching.
func (p *Policy) Watch(bus IdleBus) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unwatch != nil {
		return nil, ErrAlreadyWatching
	}
	p.idle = false
	p.lastIdleEnd = time.Time{}
	stop, err := bus.SubscribeIdle(p.onIdleStart, p.onIdleEnd)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	p.unwatch = stop
	return func() {
		once.Do(func() {
			stop()
			p.mu.Lock()
			p.unwatch = nil
			p.mu.Unlock()
		})
	}, nil
}

func (p *Policy) onIdleStart(lifecycle.Event) {
	p.mu.Lock()
	p.idle = true
	p.mu.Unlock()
}

func (p *Policy) onIdleEnd(lifecycle.Event) {
	p.mu.Lock()
	p.idle = false
	p.lastIdleEnd = p.clk.Now()
	p.mu.Unlock()
}

// AfterIdle reports whether the session is idle or left idle within the
// idle window.
func (p *Policy) AfterIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.afterIdleLocked()
}

func (p *Policy) afterIdleLocked() bool {
	if p.idle {
		return true
	}
	if p.lastIdleEnd.IsZero() {
		return false
	}
	return p.clk.Now().Sub(p.lastIdleEnd) <= p.cfg.IdleWindow
}

// Evaluate decides what to do with err after attempt retries.
func (p *Policy) Evaluate(err error, attempt int) Verdict {
	p.mu.Lock()
	afterIdle := p.afterIdleLocked()
	p.mu.Unlock()
	return p.cfg.Decide(Input{
		Kind:      faults.KindOf(err),
		Status:    faults.StatusOf(err),
		Attempt:   attempt,
		AfterIdle: afterIdle,
	})
}

// OnError is the fetch layer's error hook. Surfaced errors go to the
// boundary; everything else is only logged.
func (p *Policy) OnError(err error, key string) Verdict {
	if err == nil {
		return Verdict{Decision: Suppress, Reason: "no error"}
	}

	p.mu.Lock()
	attempt := 0
	if a, ok := p.attempts[key]; ok {
		attempt = a.Attempt
	}
	p.mu.Unlock()

	v := p.Evaluate(err, attempt)
	c := faults.Classify(err)
	p.metrics.RecordRevalidationDecision(v.Decision.String(), string(c.Source), v.Delay)

	switch v.Decision {
	case Surface:
		p.logger.Warn("Revalidation failed",
			zap.String("key", key),
			zap.String("kind", c.KindName),
			zap.Int("attempts", attempt),
			zap.String("reason", v.Reason),
			zap.Error(err),
		)
		p.boundary.Report(Report{
			Key:            key,
			Error:          err.Error(),
			Classification: c,
			Recovery:       faults.RecoveryFor(c),
			Attempts:       attempt,
			At:             p.clk.Now(),
		})
	default:
		p.logger.Debug("Revalidation error not surfaced",
			zap.String("key", key),
			zap.String("decision", v.Decision.String()),
			zap.String("reason", v.Reason),
			zap.Error(err),
		)
	}
	return v
}

// OnErrorRetry is the fetch layer's retry hook. On a Retry verdict it
// schedules revalidate after the backoff delay, replacing any retry already
// pending for key. Any other verdict discards the key's attempt.
func (p *Policy) OnErrorRetry(err error, key string, state AttemptState, revalidate func()) Verdict {
	if err == nil {
		p.Reset(key)
		return Verdict{Decision: Suppress, Reason: "no error"}
	}

	v := p.Evaluate(err, state.RetryCount)

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.attempts[key]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	if v.Decision != Retry || revalidate == nil {
		delete(p.attempts, key)
		return v
	}

	kind := faults.KindOf(err)
	a := &RetryAttempt{
		Key:       key,
		Kind:      kind,
		KindName:  kind.String(),
		Attempt:   state.RetryCount + 1,
		NextDelay: v.Delay,
		DueAt:     p.clk.Now().Add(v.Delay),
	}
	a.timer = p.clk.AfterFunc(v.Delay, func() { p.fire(a, revalidate) })
	p.attempts[key] = a

	p.logger.Debug("Retry scheduled",
		zap.String("key", key),
		zap.Int("attempt", a.Attempt),
		zap.Duration("delay", v.Delay),
	)
	return v
}

func (p *Policy) fire(a *RetryAttempt, revalidate func()) {
	p.mu.Lock()
	current, ok := p.attempts[a.Key]
	if !ok || current != a {
		p.mu.Unlock()
		return
	}
	a.timer = nil
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Revalidate panicked", zap.String("key", a.Key), zap.Any("panic", r))
		}
	}()
	revalidate()
}

// Reset forgets key after a successful fetch, cancelling a pending retry.
func (p *Policy) Reset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.attempts[key]; ok {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(p.attempts, key)
	}
}

// Attempt returns the retry state of key.
func (p *Policy) Attempt(key string) (RetryAttempt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attempts[key]
	if !ok {
		return RetryAttempt{}, false
	}
	out := *a
	out.timer = nil
	return out, true
}

// Pending returns every key with retry state, sorted by key.
func (p *Policy) Pending() []RetryAttempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RetryAttempt, 0, len(p.attempts))
	for _, a := range p.attempts {
		cp := *a
		cp.timer = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AllowFocus reports whether a focus-triggered revalidation may run now.
func (p *Policy) AllowFocus() bool {
	if p.focus.AllowN(p.clk.Now(), 1) {
		return true
	}
	p.metrics.IncFocusThrottled()
	p.logger.Debug("Focus revalidation throttled")
	return false
}

// Close cancels every pending retry and stops watching the bus.
func (p *Policy) Close() {
	p.mu.Lock()
	for key, a := range p.attempts {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(p.attempts, key)
	}
	unwatch := p.unwatch
	p.unwatch = nil
	p.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}
