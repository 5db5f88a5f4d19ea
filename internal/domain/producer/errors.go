package producer

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
)

var ErrClosed = errors.New("producer: stream closed")

// TimeoutError reports that a producer ran out of time. Its type is the
// marker IsTimeoutError checks; the message is not.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: exceeded %s (ran %s)", e.Name, e.Timeout, e.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("producer exceeded %s (ran %s)", e.Timeout, e.Elapsed.Round(time.Millisecond))
}

// FaultKind implements faults.Kinded.
func (e *TimeoutError) FaultKind() faults.Kind {
	return faults.TimeoutExceeded
}

// IsTimeoutError reports whether err is, or wraps, a TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// PanicError is a producer panic converted to an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("producer panicked: %v", e.Value)
}
