package renderer

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

// IdleBus is the part of the lifecycle bus the renderer listens on.
type IdleBus interface {
	SubscribeIdle(onStart, onEnd lifecycle.Listener) (func(), error)
}

// Config configures the animation loop
type Config struct {
	FrameInterval time.Duration
	// StatsWindow is how many recent frame deltas feed the pacing stats
	StatsWindow int
}

// DefaultConfig returns a ~60 fps loop.
func DefaultConfig() Config {
	return Config{
		FrameInterval: 16 * time.Millisecond,
		StatsWindow:   120,
	}
}

// Stats summarises the animation loop.
type Stats struct {
	State          State         `json:"state"`
	Frames         uint64        `json:"frames"`
	FrameScheduled bool          `json:"frame_scheduled"`
	LastDelta      time.Duration `json:"-"`
	MeanDeltaMs    float64       `json:"mean_delta_ms"`
	StdDevDeltaMs  float64       `json:"stddev_delta_ms"`
	LastDeltaMs    float64       `json:"last_delta_ms"`
	ContextLosses  int           `json:"context_losses"`
	Unavailable    string        `json:"unavailable,omitempty"`
}

// Manager owns one rendering surface and drives its animation loop across
// idle pauses, context loss and unmount.
type Manager struct {
	mu sync.Mutex

	provider Provider
	bus      IdleBus
	clk      clock.Clock
	params   Params
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	state   State
	mounted bool
	gen     uint64
	idle    bool

	surface Surface
	scene   *Scene
	camera  Camera
	detach  []func()

	frameTimer clock.Timer
	lastFrame  time.Time
	elapsed    time.Duration
	frames     uint64
	deltas     []float64
	lastDelta  time.Duration
	losses     int
	createErr  error
}

// NewManager creates a renderer for the surface built by provider.
func NewManager(provider Provider, bus IdleBus, clk clock.Clock, params Params, cfg Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		bus:      bus,
		clk:      clk,
		params:   params,
		cfg:      cfg,
		logger:   logger,
		state:    Initializing,
	}
}

// WithMetrics attaches a metrics collector
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Mount creates the surface, attaches every listener and starts the loop.
// When the platform cannot create a surface the failure is logged, the
// manager settles in Disposed and renders nothing; the returned error is
// reserved for mounting twice.
func (m *Manager) Mount() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return nil, ErrAlreadyMounted
	}

	m.gen++
	gen := m.gen
	m.createErr = nil
	m.setStateLocked(Initializing)

	surface, err := m.provider.Create(m.params)
	if err != nil {
		m.unavailableLocked(err)
		return func() {}, nil
	}
	m.surface = surface

	if err := m.buildLocked(); err != nil {
		surface.Dispose()
		m.surface = nil
		m.unavailableLocked(err)
		return func() {}, nil
	}

	m.camera = Camera{Width: m.params.Width, Height: m.params.Height}
	m.detach = append(m.detach,
		surface.On(SignalContextLost, func(Signal) { m.onContextLost(gen) }),
		surface.On(SignalContextRestored, func(Signal) { m.onContextRestored(gen) }),
		surface.On(SignalResize, func(s Signal) { m.onResize(gen, s) }),
		surface.On(SignalPointer, func(s Signal) { m.onPointer(gen, s) }),
	)

	if m.bus != nil {
		stopIdle, err := m.bus.SubscribeIdle(
			func(lifecycle.Event) { m.onIdle(gen, true) },
			func(lifecycle.Event) { m.onIdle(gen, false) },
		)
		if err != nil {
			m.logger.Warn("Renderer not subscribed to idle events", zap.Error(err))
		} else {
			m.detach = append(m.detach, stopIdle)
		}
	}

	m.mounted = true
	m.idle = false
	m.elapsed = 0
	m.lastFrame = m.clk.Now()
	m.setStateLocked(Running)
	m.scheduleFrameLocked()

	m.logger.Debug("Renderer mounted",
		zap.Int("width", m.params.Width),
		zap.Int("height", m.params.Height),
	)

	var once sync.Once
	return func() { once.Do(func() { m.unmount(gen) }) }, nil
}

// Pause stops the animation loop, keeping GPU resources allocated.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseLocked()
}

// Resume restarts a paused loop. It is a no-op while a frame is already
// scheduled, while the context is lost, and before mount.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeLocked()
}

// State returns the current surface state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the loop's pacing statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		State:          m.state,
		Frames:         m.frames,
		FrameScheduled: m.frameTimer != nil,
		LastDelta:      m.lastDelta,
		LastDeltaMs:    float64(m.lastDelta) / float64(time.Millisecond),
		ContextLosses:  m.losses,
	}
	if len(m.deltas) > 0 {
		s.MeanDeltaMs, s.StdDevDeltaMs = stat.MeanStdDev(m.deltas, nil)
		if len(m.deltas) == 1 {
			s.StdDevDeltaMs = 0
		}
	}
	if m.createErr != nil {
		s.Unavailable = m.createErr.Error()
	}
	return s
}

func (m *Manager) unmount(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.gen != gen {
		return
	}

	m.cancelFrameLocked()
	for _, detach := range m.detach {
		detach()
	}
	m.detach = nil

	// after a context loss the platform already reclaimed the resources
	if m.scene != nil && m.state != ContextLost {
		m.scene.Geometry.Dispose()
		m.scene.Program.Dispose()
	}
	m.scene = nil
	if m.surface != nil {
		m.surface.Dispose()
		m.surface = nil
	}

	m.mounted = false
	m.gen++
	m.setStateLocked(Disposed)
	m.logger.Debug("Renderer unmounted", zap.Uint64("frames", m.frames))
}

func (m *Manager) frame(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.state != Running {
		return
	}
	m.frameTimer = nil

	now := m.clk.Now()
	delta := now.Sub(m.lastFrame)
	m.lastFrame = now
	m.elapsed += delta
	m.frames++
	m.recordDeltaLocked(delta)

	m.scene.Frame = m.frames
	m.scene.Time = m.elapsed
	m.scene.Delta = delta

	if err := m.surface.Render(m.scene, m.camera); err != nil {
		if faults.KindOf(err) == faults.GraphicsContextLoss {
			m.contextLostLocked()
			return
		}
		m.logger.Warn("Frame render failed", zap.Uint64("frame", m.frames), zap.Error(err))
	}
	m.metrics.IncFrames()
	m.scheduleFrameLocked()
}

func (m *Manager) onIdle(gen uint64, idle bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || !m.mounted {
		return
	}
	m.idle = idle
	if idle {
		m.pauseLocked()
	} else {
		m.resumeLocked()
	}
}

func (m *Manager) onContextLost(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || !m.mounted {
		return
	}
	m.contextLostLocked()
}

func (m *Manager) onContextRestored(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || !m.mounted || m.state != ContextLost {
		return
	}

	m.setStateLocked(Initializing)
	if err := m.buildLocked(); err != nil {
		m.logger.Warn("Rebuilding graphics resources failed", zap.Error(err))
		m.setStateLocked(ContextLost)
		return
	}
	m.logger.Info("Graphics context restored")

	m.lastFrame = m.clk.Now()
	if m.idle {
		m.setStateLocked(PausedIdle)
		return
	}
	m.setStateLocked(Running)
	m.scheduleFrameLocked()
}

func (m *Manager) onResize(gen uint64, s Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || !m.mounted || m.surface == nil {
		return
	}
	m.camera = Camera{Width: s.Width, Height: s.Height}
	m.params.Width, m.params.Height = s.Width, s.Height
	m.surface.SetSize(s.Width, s.Height)
}

func (m *Manager) onPointer(gen uint64, s Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.scene == nil {
		return
	}
	m.scene.PointerX, m.scene.PointerY = s.X, s.Y
}

func (m *Manager) pauseLocked() {
	if m.state != Running {
		return
	}
	m.cancelFrameLocked()
	m.setStateLocked(PausedIdle)
}

func (m *Manager) resumeLocked() {
	if m.frameTimer != nil || !m.mounted {
		return
	}
	switch m.state {
	case PausedIdle:
		// reset the baseline so the first frame does not see the pause
		m.lastFrame = m.clk.Now()
		m.setStateLocked(Running)
		m.scheduleFrameLocked()
	case Running:
		m.scheduleFrameLocked()
	}
}

func (m *Manager) contextLostLocked() {
	if m.state == ContextLost || m.state == Disposed {
		return
	}
	m.cancelFrameLocked()
	m.losses++
	m.setStateLocked(ContextLost)
	m.logger.Info("Graphics context lost, waiting for restore")
}

// buildLocked creates geometry and program from the source parameters.
func (m *Manager) buildLocked() error {
	geometry, err := m.surface.CreateGeometry(m.params)
	if err != nil {
		return faults.Wrap(faults.GraphicsContextLoss, "create geometry", err)
	}
	program, err := m.surface.CreateProgram(m.params)
	if err != nil {
		geometry.Dispose()
		return faults.Wrap(faults.GraphicsContextLoss, "create program", err)
	}

	scene := &Scene{Geometry: geometry, Program: program}
	if m.scene != nil {
		scene.Frame = m.scene.Frame
		scene.Time = m.scene.Time
		scene.PointerX, scene.PointerY = m.scene.PointerX, m.scene.PointerY
	}
	m.scene = scene
	return nil
}

func (m *Manager) unavailableLocked(err error) {
	m.createErr = err
	m.logger.Warn("Graphics surface unavailable, rendering disabled", zap.Error(err))
	m.setStateLocked(Disposed)
}

func (m *Manager) scheduleFrameLocked() {
	gen := m.gen
	m.frameTimer = m.clk.AfterFunc(m.cfg.FrameInterval, func() { m.frame(gen) })
}

func (m *Manager) cancelFrameLocked() {
	if m.frameTimer != nil {
		m.frameTimer.Stop()
		m.frameTimer = nil
	}
}

func (m *Manager) recordDeltaLocked(delta time.Duration) {
	m.lastDelta = delta
	m.deltas = append(m.deltas, float64(delta)/float64(time.Millisecond))
	if over := len(m.deltas) - m.cfg.StatsWindow; over > 0 {
		m.deltas = m.deltas[over:]
	}
}

func (m *Manager) setStateLocked(to State) {
	if m.state == to {
		return
	}
	m.metrics.RecordRendererTransition(m.state.String(), to.String())
	m.state = to
}
