package producer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

// Func is an asynchronous multi-step producer. It calls emit for every
// intermediate value and returns the final one. emit fails once the stream
// is abandoned; the producer should return promptly when it does.
type Func[T any] func(ctx context.Context, emit func(T) error) (T, error)

// Outcome is how a stream settled.
type Outcome int

const (
	Pending Outcome = iota
	Running
	Completed
	Failed
	TimedOut
	Cancelled
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options tunes a bounded stream. The zero value uses the real clock.
type Options struct {
	Name    string
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// RaceState is a snapshot of one invocation.
type RaceState[T any] struct {
	LastValue T
	Yielded   int
	Elapsed   time.Duration
	TimedOut  bool
	Outcome   Outcome
}

type settled[T any] struct {
	value T
	err   error
}

// Stream is the bounded view of one producer invocation. Next, Value and
// Result belong to a single consumer; State and Close are safe from any
// goroutine.
type Stream[T any] struct {
	parent  context.Context
	fn      Func[T]
	timeout time.Duration
	opts    Options

	ctx     context.Context
	cancel  context.CancelFunc
	values  chan T
	result  chan settled[T]
	expired chan struct{}

	startOnce sync.Once

	mu        sync.Mutex
	timer     clock.Timer
	startedAt time.Time
	elapsed   time.Duration
	current   T
	yielded   int
	outcome   Outcome
	final     T
	err       error
}

// Bound wraps fn so that it runs for at most timeout. A timeout <= 0 leaves
// the run unbounded apart from ctx. Nothing runs until the first call to
// Next; each stream is a single, non-restartable run with its own timer.
func Bound[T any](ctx context.Context, timeout time.Duration, fn Func[T], opts Options) *Stream[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Stream[T]{
		parent:  ctx,
		fn:      fn,
		timeout: timeout,
		opts:    opts,
		values:  make(chan T),
		result:  make(chan settled[T], 1),
		expired: make(chan struct{}),
	}
}

func (s *Stream[T]) start() {
	s.mu.Lock()
	if s.outcome != Pending {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(s.parent)
	s.startedAt = s.opts.Clock.Now()
	s.outcome = Running
	if s.timeout > 0 {
		s.timer = s.opts.Clock.AfterFunc(s.timeout, func() { close(s.expired) })
	}
	ctx := s.ctx
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Stream[T]) run(ctx context.Context) {
	var (
		value T
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		s.result <- settled[T]{value: value, err: err}
	}()

	emit := func(v T) error {
		select {
		case s.values <- v:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	value, err = s.fn(ctx, emit)
}

// Next waits for the next intermediate value. It returns false once the
// producer settled, failed, timed out or the stream was closed; Result
// then reports which.
func (s *Stream[T]) Next() bool {
	s.startOnce.Do(s.start)

	s.mu.Lock()
	if s.outcome != Running {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if s.isExpired() {
		s.settleTimeout()
		return false
	}

	select {
	case v := <-s.values:
		// a value that raced the deadline is discarded
		if s.isExpired() {
			s.settleTimeout()
			return false
		}
		s.mu.Lock()
		s.current = v
		s.yielded++
		s.mu.Unlock()
		return true
	case r := <-s.result:
		if s.isExpired() {
			s.settleTimeout()
			return false
		}
		s.settle(r.value, r.err)
		return false
	case <-s.expired:
		s.settleTimeout()
		return false
	case <-s.parent.Done():
		s.settle(s.zero(), s.parent.Err())
		return false
	}
}

// Value returns the value produced by the last successful Next.
func (s *Stream[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Result returns the final value and error. Until the stream settles it
// returns the zero value and a nil error.
func (s *Stream[T]) Result() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.err
}

// Err returns the terminal error, if any.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns a snapshot of the invocation.
func (s *Stream[T]) State() RaceState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.elapsed
	if s.outcome == Running {
		elapsed = s.opts.Clock.Now().Sub(s.startedAt)
	}
	return RaceState[T]{
		LastValue: s.current,
		Yielded:   s.yielded,
		Elapsed:   elapsed,
		TimedOut:  s.outcome == TimedOut,
		Outcome:   s.outcome,
	}
}

// Close abandons the stream. The producer's context is cancelled and the
// timer stopped. Closing a settled stream does nothing.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	switch s.outcome {
	case Pending:
		s.outcome = Cancelled
		s.err = ErrClosed
		s.mu.Unlock()
		return
	case Running:
		s.mu.Unlock()
		s.settleAs(Cancelled, s.zero(), ErrClosed)
	default:
		s.mu.Unlock()
	}
}

func (s *Stream[T]) isExpired() bool {
	select {
	case <-s.expired:
		return true
	default:
		return false
	}
}

func (s *Stream[T]) settleTimeout() {
	s.mu.Lock()
	elapsed := s.opts.Clock.Now().Sub(s.startedAt)
	s.mu.Unlock()
	s.settleAs(TimedOut, s.zero(), &TimeoutError{Name: s.opts.Name, Timeout: s.timeout, Elapsed: elapsed})
}

func (s *Stream[T]) settle(value T, err error) {
	if err != nil {
		s.settleAs(Failed, value, err)
		return
	}
	s.settleAs(Completed, value, nil)
}

func (s *Stream[T]) settleAs(outcome Outcome, value T, err error) {
	s.mu.Lock()
	if s.outcome != Running {
		s.mu.Unlock()
		return
	}
	s.outcome = outcome
	s.final = value
	s.err = err
	s.elapsed = s.opts.Clock.Now().Sub(s.startedAt)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	elapsed := s.elapsed
	yielded := s.yielded
	s.mu.Unlock()

	s.cancel()
	s.opts.Metrics.RecordProducer(outcome.String(), elapsed)

	fields := []zap.Field{
		zap.String("name", s.opts.Name),
		zap.String("outcome", outcome.String()),
		zap.Int("yielded", yielded),
		zap.Duration("elapsed", elapsed),
	}
	switch outcome {
	case Completed, Cancelled:
		s.opts.Logger.Debug("Producer settled", fields...)
	default:
		s.opts.Logger.Warn("Producer settled", append(fields, zap.Error(err))...)
	}
}

func (s *Stream[T]) zero() T {
	var zero T
	return zero
}

// Collect drains a bounded producer, returning every intermediate value
// delivered before it settled.
func Collect[T any](ctx context.Context, timeout time.Duration, fn Func[T], opts Options) ([]T, T, error) {
	s := Bound(ctx, timeout, fn, opts)
	defer s.Close()
	return s.Drain()
}

// Drain consumes the remaining intermediate values and returns them with
// the settled result. The returned slice is never nil.
func (s *Stream[T]) Drain() ([]T, T, error) {
	values := []T{}
	for s.Next() {
		values = append(values, s.Value())
	}
	final, err := s.Result()
	return values, final, err
}
