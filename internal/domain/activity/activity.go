package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

// DefaultWindow is the debounce window for bursts of input.
const DefaultWindow = 100 * time.Millisecond

// Input is a qualifying user interaction.
type Input string

const (
	PointerMove Input = "pointer"
	KeyPress    Input = "key"
	Click       Input = "click"
	Scroll      Input = "scroll"
	Touch       Input = "touch"
	Wheel       Input = "wheel"
)

var qualifying = map[Input]bool{
	PointerMove: true,
	KeyPress:    true,
	Click:       true,
	Scroll:      true,
	Touch:       true,
	Wheel:       true,
}

// ParseInput validates an input kind name.
func ParseInput(s string) (Input, error) {
	in := Input(s)
	if !qualifying[in] {
		return "", fmt.Errorf("activity: %q is not a qualifying input", s)
	}
	return in, nil
}

// Record is the activity record.
type Record struct {
	LastActivityAt time.Time
}

// Clock tracks the most recent user interaction. Bursts are throttled: the
// first input after a quiet window is flushed immediately, later inputs in
// the same window collapse into one trailing flush carrying the last
// timestamp. At most one flush happens per window.
type Clock struct {
	mu      sync.Mutex
	clk     clock.Clock
	window  time.Duration
	onFlush func(Record)

	record    Record
	lastFlush time.Time
	pending   *time.Time
	trailing  clock.Timer
	gen       uint64
}

// NewClock creates an activity clock. onFlush receives every state update
// and is called without the clock's lock held.
func NewClock(clk clock.Clock, window time.Duration, onFlush func(Record)) *Clock {
	if window <= 0 {
		window = DefaultWindow
	}
	if onFlush == nil {
		onFlush = func(Record) {}
	}
	return &Clock{clk: clk, window: window, onFlush: onFlush}
}

// Record notes a qualifying input at the current time.
func (c *Clock) Record() {
	now := c.clk.Now()

	c.mu.Lock()
	if c.lastFlush.IsZero() || now.Sub(c.lastFlush) >= c.window {
		if c.trailing != nil {
			c.trailing.Stop()
			c.trailing = nil
		}
		c.pending = nil
		rec := c.commit(now)
		c.mu.Unlock()

		c.onFlush(rec)
		return
	}

	c.pending = &now
	if c.trailing == nil {
		gen := c.gen
		c.trailing = c.clk.AfterFunc(c.lastFlush.Add(c.window).Sub(now), func() {
			c.flushTrailing(gen)
		})
	}
	c.mu.Unlock()
}

// Last returns the committed activity record.
func (c *Clock) Last() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// Reset discards pending input and seeds the record with at.
func (c *Clock) Reset(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.record = Record{LastActivityAt: at}
	c.lastFlush = time.Time{}
}

// Stop cancels a pending trailing flush. No flush fires after Stop returns.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Clock) cancelLocked() {
	if c.trailing != nil {
		c.trailing.Stop()
		c.trailing = nil
	}
	c.pending = nil
	c.gen++
}

func (c *Clock) flushTrailing(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.pending == nil {
		c.mu.Unlock()
		return
	}
	at := *c.pending
	c.pending = nil
	c.trailing = nil
	rec := c.commit(at)
	// the window restarts from the flush, not the input
	c.lastFlush = c.clk.Now()
	c.mu.Unlock()

	c.onFlush(rec)
}

func (c *Clock) commit(at time.Time) Record {
	c.record = Record{LastActivityAt: at}
	c.lastFlush = at
	return c.record
}
