package renderer

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
)

// HeadlessProvider creates in-memory surfaces. The daemon uses it to drive
// the lifecycle without a GPU, and it doubles as the platform side of the
// surface: LoseContext and RestoreContext deliver the native signals.
type HeadlessProvider struct {
	mu          sync.Mutex
	unsupported bool
	surfaces    []*HeadlessSurface
}

// NewHeadlessProvider returns a provider whose surfaces always succeed.
func NewHeadlessProvider() *HeadlessProvider {
	return &HeadlessProvider{}
}

// SetUnsupported makes subsequent Create calls fail.
func (p *HeadlessProvider) SetUnsupported(v bool) {
	p.mu.Lock()
	p.unsupported = v
	p.mu.Unlock()
}

// Create implements Provider.
func (p *HeadlessProvider) Create(params Params) (Surface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsupported {
		return nil, ErrUnsupported
	}
	s := &HeadlessSurface{
		width:     params.Width,
		height:    params.Height,
		listeners: make(map[SignalKind][]*headlessListener),
	}
	p.surfaces = append(p.surfaces, s)
	return s, nil
}

// Current returns the most recently created surface, or nil.
func (p *HeadlessProvider) Current() *HeadlessSurface {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.surfaces) == 0 {
		return nil
	}
	return p.surfaces[len(p.surfaces)-1]
}

type headlessListener struct {
	fn func(Signal)
}

type headlessResource struct {
	mu       sync.Mutex
	disposed bool
}

func (r *headlessResource) Dispose() {
	r.mu.Lock()
	r.disposed = true
	r.mu.Unlock()
}

// Disposed reports whether Dispose was called.
func (r *headlessResource) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// HeadlessSurface is a Surface that counts what it is asked to do.
type HeadlessSurface struct {
	mu        sync.Mutex
	width     int
	height    int
	lost      bool
	disposed  bool
	renders   uint64
	builds    int
	lastScene Scene
	resources []*headlessResource
	listeners map[SignalKind][]*headlessListener
}

// CreateGeometry implements Surface.
func (s *HeadlessSurface) CreateGeometry(Params) (Geometry, error) {
	r, err := s.newResource("create geometry")
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateProgram implements Surface.
func (s *HeadlessSurface) CreateProgram(Params) (Program, error) {
	s.mu.Lock()
	s.builds++
	s.mu.Unlock()
	r, err := s.newResource("compile program")
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *HeadlessSurface) newResource(op string) (*headlessResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return nil, faults.New(faults.GraphicsContextLoss, op+": context lost")
	}
	r := &headlessResource{}
	s.resources = append(s.resources, r)
	return r, nil
}

// Render implements Surface.
func (s *HeadlessSurface) Render(scene *Scene, _ Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return faults.New(faults.GraphicsContextLoss, "render: context lost")
	}
	s.renders++
	s.lastScene = *scene
	return nil
}

// SetSize implements Surface.
func (s *HeadlessSurface) SetSize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

// On implements Surface.
func (s *HeadlessSurface) On(kind SignalKind, fn func(Signal)) func() {
	l := &headlessListener{fn: fn}
	s.mu.Lock()
	s.listeners[kind] = append(s.listeners[kind], l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.listeners[kind]
			for i, candidate := range list {
				if candidate == l {
					s.listeners[kind] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispose implements Surface.
func (s *HeadlessSurface) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

// LoseContext simulates the platform dropping the GPU context.
func (s *HeadlessSurface) LoseContext() {
	s.mu.Lock()
	s.lost = true
	s.mu.Unlock()
	s.signal(Signal{Kind: SignalContextLost})
}

// RestoreContext simulates the platform handing back a fresh context.
func (s *HeadlessSurface) RestoreContext() {
	s.mu.Lock()
	s.lost = false
	s.mu.Unlock()
	s.signal(Signal{Kind: SignalContextRestored})
}

// Resize delivers a resize signal.
func (s *HeadlessSurface) Resize(width, height int) {
	s.signal(Signal{Kind: SignalResize, Width: width, Height: height})
}

// Point delivers a pointer signal.
func (s *HeadlessSurface) Point(x, y float64) {
	s.signal(Signal{Kind: SignalPointer, X: x, Y: y})
}

// signal runs handlers outside the lock.
func (s *HeadlessSurface) signal(sig Signal) {
	s.mu.Lock()
	list := append([]*headlessListener(nil), s.listeners[sig.Kind]...)
	s.mu.Unlock()
	for _, l := range list {
		l.fn(sig)
	}
}

// Renders returns how many frames were drawn.
func (s *HeadlessSurface) Renders() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Builds returns how many times the program was compiled.
func (s *HeadlessSurface) Builds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds
}

// LastScene returns a copy of the last drawn scene.
func (s *HeadlessSurface) LastScene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScene
}

// Listeners returns the number of attached signal handlers.
func (s *HeadlessSurface) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, list := range s.listeners {
		n += len(list)
	}
	return n
}

// Size returns the current drawing buffer size.
func (s *HeadlessSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Disposed reports whether the surface was released.
func (s *HeadlessSurface) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// LiveResources counts created resources that were never disposed.
func (s *HeadlessSurface) LiveResources() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.resources {
		if !r.Disposed() {
			n++
		}
	}
	return n
}
