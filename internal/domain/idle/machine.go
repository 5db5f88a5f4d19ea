package idle

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/activity"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

var ErrAlreadyStarted = errors.New("idle machine already started")

// State is the idle state
type State int

const (
	Active State = iota
	Idle
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots encode the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Visibility is the page visibility signal
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// ParseVisibility maps a hidden flag onto Visibility.
func ParseVisibility(hidden bool) Visibility {
	if hidden {
		return Hidden
	}
	return Visible
}

// Transition reasons carried on lifecycle events.
const (
	ReasonInactivity = "inactivity"
	ReasonHidden     = "hidden"
	ReasonActivity   = "activity"
	ReasonVisible    = "visible"
)

// Config configures the idle machine
type Config struct {
	// Threshold is the silence after which the session goes idle
	Threshold time.Duration
	// VisibilityGrace is how long the page may stay hidden before going idle
	VisibilityGrace time.Duration
	// TickInterval is the idle duration update period
	TickInterval time.Duration
	// DebounceWindow bounds activity updates to one per window
	DebounceWindow time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:       30 * time.Second,
		VisibilityGrace: 5 * time.Second,
		TickInterval:    time.Second,
		DebounceWindow:  activity.DefaultWindow,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.VisibilityGrace <= 0 {
		c.VisibilityGrace = def.VisibilityGrace
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = def.DebounceWindow
	}
	return c
}

// Snapshot is an immutable view of the machine.
type Snapshot struct {
	State          State
	IdleSince      *time.Time
	IdleDuration   time.Duration
	LastActivityAt time.Time
	Hidden         bool
	Started        bool
}

// Machine derives idle transitions from user activity and page visibility
// and broadcasts them on the lifecycle bus. Nothing else may force a
// transition.
type Machine struct {
	// emitMu serialises transition+broadcast so listeners observe
	// transitions in the order they happened
	emitMu sync.Mutex
	mu     sync.Mutex

	clk     clock.Clock
	cfg     Config
	bus     lifecycle.Emitter
	logger  *zap.Logger
	metrics *monitoring.Metrics

	started  bool
	gen      uint64
	activity *activity.Clock

	state        State
	idleSince    time.Time
	idleDuration time.Duration
	idleEpoch    uint64
	hidden       bool

	idleTimer  clock.Timer
	graceTimer clock.Timer
	tickTimer  clock.Timer
}

// New creates an idle machine broadcasting on bus.
func New(bus lifecycle.Emitter, clk clock.Clock, cfg Config, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		clk:    clk,
		cfg:    cfg.withDefaults(),
		bus:    bus,
		logger: logger,
	}
}

// WithMetrics attaches a metrics collector
func (m *Machine) WithMetrics(metrics *monitoring.Metrics) *Machine {
	m.metrics = metrics
	return m
}

// Config returns the effective configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// Start installs the machine's timers and returns the disposer that tears
// them down. The machine starts Active. Calling Start again before the
// disposer ran returns ErrAlreadyStarted.
func (m *Machine) Start() (func(), error) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, ErrAlreadyStarted
	}

	m.gen++
	gen := m.gen
	now := m.clk.Now()

	m.started = true
	m.state = Active
	m.idleSince = time.Time{}
	m.idleDuration = 0
	m.hidden = false
	m.activity = activity.NewClock(m.clk, m.cfg.DebounceWindow, func(rec activity.Record) {
		m.onActivity(gen, rec)
	})
	m.activity.Reset(now)
	m.armIdleTimerLocked(now)

	m.logger.Debug("Idle machine started",
		zap.Duration("threshold", m.cfg.Threshold),
		zap.Duration("visibility_grace", m.cfg.VisibilityGrace),
	)

	var once sync.Once
	return func() { once.Do(func() { m.stop(gen) }) }, nil
}

func (m *Machine) stop(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.gen != gen {
		return
	}

	if m.state == Idle {
		m.metrics.DropIdle()
	}
	m.started = false
	m.gen++
	m.activity.Stop()
	stopTimer(&m.idleTimer)
	stopTimer(&m.graceTimer)
	stopTimer(&m.tickTimer)

	m.logger.Debug("Idle machine stopped", zap.String("state", m.state.String()))
}

// RecordActivity notes a qualifying user input. It is ignored while the
// machine is not started.
func (m *Machine) RecordActivity() {
	m.mu.Lock()
	ac := m.activity
	started := m.started
	m.mu.Unlock()

	if !started {
		return
	}
	ac.Record()
}

// SetVisibility feeds a page visibility change. Becoming visible counts as
// activity; becoming hidden starts the grace period.
func (m *Machine) SetVisibility(v Visibility) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}

	now := m.clk.Now()
	var (
		ev   lifecycle.Event
		emit bool
	)

	switch v {
	case Hidden:
		if m.hidden {
			m.mu.Unlock()
			return
		}
		m.hidden = true
		gen := m.gen
		stopTimer(&m.graceTimer)
		m.graceTimer = m.clk.AfterFunc(m.cfg.VisibilityGrace, func() { m.onGraceExpired(gen) })

	case Visible:
		if !m.hidden {
			m.mu.Unlock()
			return
		}
		m.hidden = false
		stopTimer(&m.graceTimer)
		m.activity.Reset(now)
		ev, emit = m.leaveIdleLocked(now, ReasonVisible)
		m.armIdleTimerLocked(now)
	}
	m.mu.Unlock()

	if emit {
		m.emit(ev)
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:        m.state,
		IdleDuration: m.idleDuration,
		Hidden:       m.hidden,
		Started:      m.started,
	}
	if !m.idleSince.IsZero() {
		since := m.idleSince
		snap.IdleSince = &since
	}
	if m.activity != nil {
		snap.LastActivityAt = m.activity.Last().LastActivityAt
	}
	return snap
}

func (m *Machine) onActivity(gen uint64, rec activity.Record) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.started || m.gen != gen {
		m.mu.Unlock()
		return
	}
	now := m.clk.Now()
	ev, emit := m.leaveIdleLocked(now, ReasonActivity)
	m.armIdleTimerLocked(rec.LastActivityAt)
	m.mu.Unlock()

	if emit {
		m.emit(ev)
	}
}

func (m *Machine) onIdleTimeout(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.started || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.idleTimer = nil

	now := m.clk.Now()
	last := m.activity.Last().LastActivityAt
	if silent := now.Sub(last); silent < m.cfg.Threshold {
		// activity landed after the timer was armed
		m.armIdleTimerLocked(last)
		m.mu.Unlock()
		return
	}
	ev, emit := m.enterIdleLocked(now, ReasonInactivity)
	m.mu.Unlock()

	if emit {
		m.emit(ev)
	}
}

func (m *Machine) onGraceExpired(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if !m.started || m.gen != gen || !m.hidden {
		m.mu.Unlock()
		return
	}
	m.graceTimer = nil
	ev, emit := m.enterIdleLocked(m.clk.Now(), ReasonHidden)
	m.mu.Unlock()

	if emit {
		m.emit(ev)
	}
}

func (m *Machine) onTick(gen, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.gen != gen || m.idleEpoch != epoch || m.state != Idle {
		return
	}
	m.idleDuration = m.clk.Now().Sub(m.idleSince)
	m.scheduleTickLocked()
}

func (m *Machine) enterIdleLocked(now time.Time, reason string) (lifecycle.Event, bool) {
	if m.state == Idle {
		return lifecycle.Event{}, false
	}

	m.state = Idle
	m.idleSince = now
	m.idleDuration = 0
	m.idleEpoch++
	stopTimer(&m.idleTimer)
	m.scheduleTickLocked()

	return lifecycle.Event{
		Kind:      lifecycle.IdleStart,
		At:        now,
		IdleSince: now,
		Reason:    reason,
	}, true
}

func (m *Machine) leaveIdleLocked(now time.Time, reason string) (lifecycle.Event, bool) {
	if m.state != Idle {
		return lifecycle.Event{}, false
	}

	idleFor := now.Sub(m.idleSince)
	m.state = Active
	m.idleSince = time.Time{}
	m.idleDuration = 0
	m.idleEpoch++
	stopTimer(&m.tickTimer)

	return lifecycle.Event{
		Kind:   lifecycle.IdleEnd,
		At:     now,
		Idle:   idleFor,
		Reason: reason,
	}, true
}

func (m *Machine) armIdleTimerLocked(lastActivity time.Time) {
	stopTimer(&m.idleTimer)
	if m.state == Idle {
		return
	}

	remaining := m.cfg.Threshold - m.clk.Now().Sub(lastActivity)
	if remaining < 0 {
		remaining = 0
	}
	gen := m.gen
	m.idleTimer = m.clk.AfterFunc(remaining, func() { m.onIdleTimeout(gen) })
}

func (m *Machine) scheduleTickLocked() {
	gen, epoch := m.gen, m.idleEpoch
	m.tickTimer = m.clk.AfterFunc(m.cfg.TickInterval, func() { m.onTick(gen, epoch) })
}

// emit runs with emitMu held and mu released.
func (m *Machine) emit(ev lifecycle.Event) {
	switch ev.Kind {
	case lifecycle.IdleStart:
		m.metrics.RecordIdleStart(ev.Reason)
		m.logger.Info("Session idle", zap.String("reason", ev.Reason))
	case lifecycle.IdleEnd:
		m.metrics.RecordIdleEnd(ev.Reason, ev.Idle)
		m.logger.Info("Session active",
			zap.String("reason", ev.Reason),
			zap.Duration("idle_for", ev.Idle),
		)
	}
	if m.bus != nil {
		m.bus.Emit(ev)
	}
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
