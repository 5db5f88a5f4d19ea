package fetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/revalidation"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

// IdleBus is the part of the lifecycle bus the revalidator listens on.
type IdleBus interface {
	SubscribeIdle(onStart, onEnd lifecycle.Listener) (func(), error)
}

// Entry is the cached state of one key.
type Entry struct {
	Key        string    `json:"key"`
	Data       []byte    `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Fetches    int       `json:"fetches"`
	Validating bool      `json:"validating"`
}

type entry struct {
	Entry
	deferred bool
}

// Revalidator keeps a set of keys fresh. Failures go through the policy's
// hooks; while the session is idle, periodic refresh and due retries are
// held back until idle-end.
type Revalidator struct {
	mu sync.Mutex

	fetcher Fetcher
	policy  *revalidation.Policy
	clk     clock.Clock
	logger  *zap.Logger

	interval time.Duration
	entries  map[string]*entry
	paused   bool
	closed   bool
	refresh  clock.Timer
	unwatch  func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRevalidator creates a revalidator. interval 0 disables periodic refresh.
func NewRevalidator(fetcher Fetcher, policy *revalidation.Policy, clk clock.Clock, interval time.Duration, logger *zap.Logger) *Revalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Revalidator{
		fetcher:  fetcher,
		policy:   policy,
		clk:      clk,
		logger:   logger,
		interval: interval,
		entries:  make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Watch pauses and resumes the revalidator on idle transitions of bus and
// starts periodic refresh. The returned function detaches it again.
func (r *Revalidator) Watch(bus IdleBus) (func(), error) {
	stop, err := bus.SubscribeIdle(
		func(lifecycle.Event) { r.Pause() },
		func(lifecycle.Event) { r.Resume() },
	)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.unwatch != nil {
		r.unwatch()
	}
	r.unwatch = stop
	r.paused = false
	r.scheduleRefreshLocked()
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.refresh != nil {
				r.refresh.Stop()
				r.refresh = nil
			}
		})
	}, nil
}

// Add registers key and fetches it.
func (r *Revalidator) Add(key string) {
	r.mu.Lock()
	if _, ok := r.entries[key]; !ok {
		r.entries[key] = &entry{Entry: Entry{Key: key}}
	}
	r.mu.Unlock()
	r.Revalidate(key)
}

// Remove forgets key and any retry pending for it.
func (r *Revalidator) Remove(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	r.policy.Reset(key)
}

// Revalidate fetches key in the background.
func (r *Revalidator) Revalidate(key string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_ = r.RevalidateNow(r.ctx, key)
	}()
}

// RevalidateAll fetches every registered key in the background.
func (r *Revalidator) RevalidateAll() {
	for _, key := range r.Keys() {
		r.Revalidate(key)
	}
}

// Focus revalidates everything unless a focus revalidation ran within the
// throttle interval. It reports whether it ran.
func (r *Revalidator) Focus() bool {
	if !r.policy.AllowFocus() {
		return false
	}
	r.RevalidateAll()
	return true
}

// RevalidateNow fetches key synchronously. A fetch already in flight for
// key makes this a no-op.
func (r *Revalidator) RevalidateNow(ctx context.Context, key string) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{Entry: Entry{Key: key}}
		r.entries[key] = e
	}
	if e.Validating || r.closed {
		r.mu.Unlock()
		return nil
	}
	e.Validating = true
	r.mu.Unlock()

	data, err := r.fetcher.Fetch(ctx, key)

	r.mu.Lock()
	e.Validating = false
	e.Fetches++
	if err == nil {
		e.Data = data
		e.Error = ""
		e.UpdatedAt = r.clk.Now()
	} else {
		e.Error = err.Error()
	}
	r.mu.Unlock()

	if err == nil {
		r.policy.Reset(key)
		return nil
	}

	var state revalidation.AttemptState
	if a, ok := r.policy.Attempt(key); ok {
		state.RetryCount = a.Attempt
	}
	r.policy.OnError(err, key)
	r.policy.OnErrorRetry(err, key, state, func() { r.retry(key) })
	return err
}

func (r *Revalidator) retry(key string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	if r.paused {
		e.deferred = true
		r.mu.Unlock()
		r.logger.Debug("Retry deferred until idle ends", zap.String("key", key))
		return
	}
	r.mu.Unlock()
	r.Revalidate(key)
}

// Pause holds back periodic refresh and retries.
func (r *Revalidator) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		return
	}
	r.paused = true
	if r.refresh != nil {
		r.refresh.Stop()
		r.refresh = nil
	}
	r.logger.Debug("Revalidation paused")
}

// Resume restarts periodic refresh and runs retries that came due while
// paused.
func (r *Revalidator) Resume() {
	r.mu.Lock()
	if !r.paused || r.closed {
		r.mu.Unlock()
		return
	}
	r.paused = false
	r.scheduleRefreshLocked()

	var due []string
	for key, e := range r.entries {
		if e.deferred {
			e.deferred = false
			due = append(due, key)
		}
	}
	r.mu.Unlock()

	sort.Strings(due)
	for _, key := range due {
		r.Revalidate(key)
	}
	r.logger.Debug("Revalidation resumed", zap.Int("deferred", len(due)))
}

// Paused reports whether revalidation is held back.
func (r *Revalidator) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Revalidator) scheduleRefreshLocked() {
	if r.interval <= 0 || r.paused || r.closed || r.refresh != nil {
		return
	}
	var t clock.Timer
	t = r.clk.AfterFunc(r.interval, func() {
		r.mu.Lock()
		if r.refresh != t {
			r.mu.Unlock()
			return
		}
		r.refresh = nil
		r.scheduleRefreshLocked()
		r.mu.Unlock()
		r.RevalidateAll()
	})
	r.refresh = t
}

// Get returns the cached entry for key.
func (r *Revalidator) Get(key string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := e.Entry
	out.Data = append([]byte(nil), e.Data...)
	return out, true
}

// Keys returns the registered keys, sorted.
func (r *Revalidator) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close cancels in-flight fetches and waits for them to return.
func (r *Revalidator) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.refresh != nil {
		r.refresh.Stop()
		r.refresh = nil
	}
	unwatch := r.unwatch
	r.unwatch = nil
	r.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	r.cancel()
	r.wg.Wait()
}
