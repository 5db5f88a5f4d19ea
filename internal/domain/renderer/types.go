package renderer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupported    = errors.New("renderer: graphics surface unsupported")
	ErrAlreadyMounted = errors.New("renderer: already mounted")
)

// State is the render surface state
type State int

const (
	Initializing State = iota
	Running
	PausedIdle
	ContextLost
	Disposed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case PausedIdle:
		return "paused_idle"
	case ContextLost:
		return "context_lost"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := Initializing; st <= Disposed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("renderer: unknown state %q", text)
}

// Params are the source parameters the GPU resources are built from. A
// context restore rebuilds everything from these.
type Params struct {
	Width    int
	Height   int
	Shader   string
	Segments int
}

// SignalKind identifies a native surface signal.
type SignalKind int

const (
	SignalContextLost SignalKind = iota
	SignalContextRestored
	SignalResize
	SignalPointer
)

// Signal is a native event delivered by the surface.
type Signal struct {
	Kind   SignalKind
	Width  int
	Height int
	X, Y   float64
}

// Geometry is a GPU vertex resource.
type Geometry interface {
	Dispose()
}

// Program is a compiled shader program.
type Program interface {
	Dispose()
}

// Scene is what one frame draws.
type Scene struct {
	Geometry Geometry
	Program  Program
	Frame    uint64
	Time     time.Duration
	Delta    time.Duration
	PointerX float64
	PointerY float64
}

// Camera is the viewport.
type Camera struct {
	Width  int
	Height int
}

// Aspect returns width over height.
func (c Camera) Aspect() float64 {
	if c.Height == 0 {
		return 1
	}
	return float64(c.Width) / float64(c.Height)
}

// Surface is a GPU rendering surface owned by one Manager. Signal handlers
// must be invoked without the surface's internal locks held.
type Surface interface {
	CreateGeometry(p Params) (Geometry, error)
	CreateProgram(p Params) (Program, error)
	Render(scene *Scene, camera Camera) error
	SetSize(width, height int)
	// On registers fn for kind and returns the function that detaches it.
	On(kind SignalKind, fn func(Signal)) (detach func())
	Dispose()
}

// Provider creates surfaces, for example a GPU context factory.
type Provider interface {
	Create(p Params) (Surface, error)
}
