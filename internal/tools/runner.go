package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/producer"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

var ErrEmptyScript = errors.New("tools: empty script")

// Config configures the runner
type Config struct {
	// Timeout applies when a run does not pass its own
	Timeout          time.Duration
	MaxCallStackSize int
	MaxConsoleLines  int
}

// DefaultConfig returns the standard runner settings.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxCallStackSize: 1024,
		MaxConsoleLines:  200,
	}
}

// Result is a collected tool run.
type Result struct {
	Progress []any         `json:"progress"`
	Value    any           `json:"result"`
	Console  []string      `json:"console,omitempty"`
	Duration time.Duration `json:"-"`
	TimedOut bool          `json:"timed_out"`
}

// Runner executes tool scripts as bounded producers. A script is a
// function body: it reports intermediate values with progress(v), may
// wait with sleep(ms) and returns its final value.
type Runner struct {
	cfg     Config
	clk     clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewRunner creates a runner.
func NewRunner(cfg Config, clk clock.Clock, logger *zap.Logger) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = def.MaxCallStackSize
	}
	if cfg.MaxConsoleLines <= 0 {
		cfg.MaxConsoleLines = def.MaxConsoleLines
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, clk: clk, logger: logger}
}

// WithMetrics attaches a metrics collector
func (r *Runner) WithMetrics(metrics *monitoring.Metrics) *Runner {
	r.metrics = metrics
	return r
}

// console collects console output of one run.
type console struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func (c *console) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) < c.limit {
		c.lines = append(c.lines, line)
	}
}

func (c *console) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Stream starts nothing until the first Next. timeout <= 0 uses the
// configured default.
func (r *Runner) Stream(ctx context.Context, name, script string, timeout time.Duration) *producer.Stream[any] {
	s, _ := r.stream(ctx, name, script, timeout)
	return s
}

func (r *Runner) stream(ctx context.Context, name, script string, timeout time.Duration) (*producer.Stream[any], *console) {
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	out := &console{limit: r.cfg.MaxConsoleLines}
	fn := func(ctx context.Context, emit func(any) error) (any, error) {
		return r.execute(ctx, script, emit, out)
	}
	return producer.Bound[any](ctx, timeout, fn, producer.Options{
		Name:    name,
		Clock:   r.clk,
		Logger:  r.logger,
		Metrics: r.metrics,
	}), out
}

// Run executes script to completion and collects everything it produced.
// On timeout the returned error satisfies producer.IsTimeoutError and the
// result still carries the progress delivered in time.
func (r *Runner) Run(ctx context.Context, name, script string, timeout time.Duration) (*Result, error) {
	if strings.TrimSpace(script) == "" {
		return nil, ErrEmptyScript
	}

	s, out := r.stream(ctx, name, script, timeout)
	defer s.Close()

	progress, value, err := s.Drain()
	state := s.State()
	return &Result{
		Value:    value,
		Progress: progress,
		Duration: state.Elapsed,
		TimedOut: state.TimedOut,
		Console:  out.snapshot(),
	}, err
}

func (r *Runner) execute(ctx context.Context, script string, emit func(any) error, out *console) (any, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(r.cfg.MaxCallStackSize)

	r.setupGlobals(ctx, vm, emit, out)

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	val, err := vm.RunString("(function(){\n" + script + "\n})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}
		return nil, fmt.Errorf("tool script: %w", err)
	}
	return exportValue(val), nil
}

func (r *Runner) setupGlobals(ctx context.Context, vm *goja.Runtime, emit func(any) error, out *console) {
	// Remove dangerous globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	vm.Set("progress", func(call goja.FunctionCall) goja.Value {
		if err := emit(exportValue(call.Argument(0))); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})

	vm.Set("sleep", func(call goja.FunctionCall) goja.Value {
		d := time.Duration(call.Argument(0).ToInteger()) * time.Millisecond
		if d <= 0 {
			return goja.Undefined()
		}
		done := make(chan struct{})
		t := r.clk.AfterFunc(d, func() { close(done) })
		select {
		case <-done:
		case <-ctx.Done():
			t.Stop()
			panic(vm.NewGoError(ctx.Err()))
		}
		return goja.Undefined()
	})

	con := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		level := level
		_ = con.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			out.add(level + ": " + strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	vm.Set("console", con)
}

// exportValue converts goja value to Go value
func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
