package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/activity"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/idle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/renderer"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/revalidation"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
	ErrNoSurface      = errors.New("session has no render surface")
)

// Options configures every session a manager creates.
type Options struct {
	Idle            idle.Config
	Revalidation    revalidation.Config
	Renderer        renderer.Config
	RendererEnabled bool
	RendererParams  renderer.Params
	RefreshInterval time.Duration
	// Keys are revalidated from the moment the session starts
	Keys []string
}

// DefaultOptions returns the standard session settings.
func DefaultOptions() Options {
	return Options{
		Idle:            idle.DefaultConfig(),
		Revalidation:    revalidation.DefaultConfig(),
		Renderer:        renderer.DefaultConfig(),
		RendererEnabled: true,
		RendererParams:  renderer.Params{Width: 1280, Height: 720, Segments: 64},
	}
}

// Deps are the collaborators shared by sessions.
type Deps struct {
	Clock   clock.Clock
	Fetcher fetch.Fetcher
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Session is one page session: one bus, one idle machine, and the
// background work that reacts to it.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	clk     clock.Clock
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics

	bus         *lifecycle.Bus
	machine     *idle.Machine
	policy      *revalidation.Policy
	recorder    *revalidation.Recorder
	revalidator *fetch.Revalidator
	renderer    *renderer.Manager
	surfaces    *renderer.HeadlessProvider

	mu      sync.Mutex
	started bool
	closed  bool
	dispose func()
}

// New assembles a session. Nothing runs until Start.
func New(opts Options, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	id := uuid.New()
	logger := deps.Logger.With(zap.String("session", id.String()))

	s := &Session{
		ID:        id,
		CreatedAt: deps.Clock.Now(),
		clk:       deps.Clock,
		opts:      opts,
		logger:    logger,
		metrics:   deps.Metrics,
		bus:       lifecycle.New(logger.Named("bus")),
		recorder:  revalidation.NewRecorder(0),
	}

	s.machine = idle.New(s.bus, s.clk, opts.Idle, logger.Named("idle")).WithMetrics(deps.Metrics)
	s.policy = revalidation.NewPolicy(opts.Revalidation, s.clk, s.recorder, logger.Named("revalidation")).
		WithMetrics(deps.Metrics)

	if deps.Fetcher != nil {
		s.revalidator = fetch.NewRevalidator(deps.Fetcher, s.policy, s.clk, opts.RefreshInterval, logger.Named("fetch"))
	}
	if opts.RendererEnabled {
		s.surfaces = renderer.NewHeadlessProvider()
		s.renderer = renderer.NewManager(s.surfaces, s.bus, s.clk, opts.RendererParams, opts.Renderer, logger.Named("renderer")).
			WithMetrics(deps.Metrics)
	}
	return s
}

// Start wires every component to the bus and starts the idle machine. The
// returned disposer tears all of it down; Start fails until it is called.
func (s *Session) Start() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.started {
		return nil, ErrAlreadyStarted
	}

	var stops []func()
	undo := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	unwatch, err := s.policy.Watch(s.bus)
	if err != nil {
		return nil, err
	}
	stops = append(stops, unwatch)

	if s.revalidator != nil {
		stopRefresh, err := s.revalidator.Watch(s.bus)
		if err != nil {
			undo()
			return nil, err
		}
		stops = append(stops, stopRefresh)
		for _, key := range s.opts.Keys {
			s.revalidator.Add(key)
		}
	}

	if s.renderer != nil {
		unmount, err := s.renderer.Mount()
		if err != nil {
			undo()
			return nil, err
		}
		stops = append(stops, unmount)
	}

	stopIdle, err := s.machine.Start()
	if err != nil {
		undo()
		return nil, err
	}
	stops = append(stops, stopIdle)

	s.started = true
	s.logger.Info("Session started", zap.Bool("renderer", s.renderer != nil), zap.Bool("fetch", s.revalidator != nil))

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			undo()
			s.mu.Lock()
			s.started = false
			s.dispose = nil
			s.mu.Unlock()
			s.logger.Debug("Session stopped")
		})
	}
	s.dispose = dispose
	return dispose, nil
}

// Close stops the session for good.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dispose := s.dispose
	s.mu.Unlock()

	if dispose != nil {
		dispose()
	}
	if s.revalidator != nil {
		s.revalidator.Close()
	}
	s.policy.Close()
	s.bus.Close()
	s.logger.Info("Session closed")
}

// RecordActivity reports a qualifying user input.
func (s *Session) RecordActivity(in activity.Input) {
	s.machine.RecordActivity()
	s.logger.Debug("Activity", zap.String("input", string(in)))
}

// SetHidden reports a page visibility change.
func (s *Session) SetHidden(hidden bool) {
	s.machine.SetVisibility(idle.ParseVisibility(hidden))
}

// Focus runs a throttled focus revalidation. It reports whether it ran.
func (s *Session) Focus() bool {
	if s.revalidator == nil {
		return s.policy.AllowFocus()
	}
	return s.revalidator.Focus()
}

// Subscribe registers l for lifecycle broadcasts of kind.
func (s *Session) Subscribe(kind lifecycle.Kind, l lifecycle.Listener) (*lifecycle.Subscription, error) {
	return s.bus.Subscribe(kind, l)
}

// Renderer returns the render manager, or nil when rendering is disabled.
func (s *Session) Renderer() *renderer.Manager {
	return s.renderer
}

// LoseContext makes the platform drop the session's GPU context.
func (s *Session) LoseContext() error {
	surface, err := s.surface()
	if err != nil {
		return err
	}
	surface.LoseContext()
	return nil
}

// RestoreContext hands the session a fresh GPU context.
func (s *Session) RestoreContext() error {
	surface, err := s.surface()
	if err != nil {
		return err
	}
	surface.RestoreContext()
	return nil
}

func (s *Session) surface() (*renderer.HeadlessSurface, error) {
	if s.surfaces == nil {
		return nil, ErrNoSurface
	}
	surface := s.surfaces.Current()
	if surface == nil || surface.Disposed() {
		return nil, ErrNoSurface
	}
	return surface, nil
}

// Errors returns the reports surfaced to the error boundary.
func (s *Session) Errors() []revalidation.Report {
	return s.recorder.Reports()
}

// Entry returns the cached state of a revalidated key.
func (s *Session) Entry(key string) (fetch.Entry, bool) {
	if s.revalidator == nil {
		return fetch.Entry{}, false
	}
	return s.revalidator.Get(key)
}

// Watch adds a key to revalidate.
func (s *Session) Watch(key string) bool {
	if s.revalidator == nil {
		return false
	}
	s.revalidator.Add(key)
	return true
}

// View is a point-in-time description of a session.
type View struct {
	ID             string                      `json:"id"`
	CreatedAt      time.Time                   `json:"created_at"`
	Started        bool                        `json:"started"`
	State          string                      `json:"state"`
	IdleSince      *time.Time                  `json:"idle_since"`
	IdleDurationMs int64                       `json:"idle_duration_ms"`
	LastActivityAt time.Time                   `json:"last_activity_at"`
	Hidden         bool                        `json:"hidden"`
	Renderer       *renderer.Stats             `json:"renderer,omitempty"`
	Keys           []string                    `json:"keys,omitempty"`
	PendingRetries []revalidation.RetryAttempt `json:"pending_retries"`
	Errors         int                         `json:"errors"`
}

// View returns the current state of the session.
func (s *Session) View() View {
	snap := s.machine.Snapshot()
	v := View{
		ID:             s.ID.String(),
		CreatedAt:      s.CreatedAt,
		Started:        snap.Started,
		State:          snap.State.String(),
		IdleSince:      snap.IdleSince,
		IdleDurationMs: snap.IdleDuration.Milliseconds(),
		LastActivityAt: snap.LastActivityAt,
		Hidden:         snap.Hidden,
		PendingRetries: s.policy.Pending(),
		Errors:         s.recorder.Len(),
	}
	if s.renderer != nil {
		stats := s.renderer.Stats()
		v.Renderer = &stats
	}
	if s.revalidator != nil {
		v.Keys = s.revalidator.Keys()
	}
	return v
}
