package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Source is the probable cause reported to error boundaries.
type Source string

const (
	SourceGraphics    Source = "graphics"
	SourceNetwork     Source = "network"
	SourceDataRefresh Source = "dataRefresh"
	SourceStaleUI     Source = "staleUi"
	SourceUnknown     Source = "unknown"
)

// Classification labels an error for the UI boundary.
type Classification struct {
	Source        Source `json:"source"`
	Kind          Kind   `json:"-"`
	KindName      string `json:"kind"`
	IsRecoverable bool   `json:"is_recoverable"`
	UserMessage   string `json:"user_message"`
}

var userMessages = map[Source]string{
	SourceGraphics:    "The graphics view was interrupted and is being restored.",
	SourceNetwork:     "A network problem occurred. Retrying may help.",
	SourceDataRefresh: "Fresh data could not be loaded. Showing the last known values.",
	SourceStaleUI:     "This page is out of date. Reload to continue.",
	SourceUnknown:     "Something went wrong.",
}

// heuristic substrings, checked in order
var messageRules = []struct {
	kind     Kind
	patterns []string
}{
	{GraphicsContextLoss, []string{"context lost", "context_lost", "webgl", "gpu device lost"}},
	{Aborted, []string{"aborterror", "aborted"}},
	{NetworkTransient, []string{"fetch", "network", "connection refused", "connection reset", "econn", "timed out", "timeout"}},
	{DataRefresh, []string{"revalidat"}},
	{StaleUIMismatch, []string{"hydrat", "mismatch"}},
}

func kindFromMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.kind
			}
		}
	}
	return Unknown
}

// SourceOf maps a kind onto the boundary-facing source.
func SourceOf(kind Kind) Source {
	switch kind {
	case GraphicsContextLoss:
		return SourceGraphics
	case NetworkTransient, ClientRequest, TimeoutExceeded, Aborted:
		return SourceNetwork
	case DataRefresh:
		return SourceDataRefresh
	case StaleUIMismatch:
		return SourceStaleUI
	default:
		return SourceUnknown
	}
}

// Classify labels any value by probable cause. It never panics; nil and
// non-error values classify as unknown.
func Classify(v any) (c Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = unknownClassification()
		}
	}()

	var kind Kind
	switch e := v.(type) {
	case nil:
		return unknownClassification()
	case error:
		if isNilError(e) {
			return unknownClassification()
		}
		kind = KindOf(e)
	case string:
		kind = kindFromMessage(e)
	case fmt.Stringer:
		kind = kindFromMessage(e.String())
	default:
		return unknownClassification()
	}

	source := SourceOf(kind)
	return Classification{
		Source:        source,
		Kind:          kind,
		KindName:      kind.String(),
		IsRecoverable: source != SourceUnknown,
		UserMessage:   userMessages[source],
	}
}

// Recovery is the action an error boundary offers the user.
type Recovery string

const (
	RecoveryRetry Recovery = "retry"
	RecoveryReset Recovery = "reset"
)

// RecoveryFor returns the boundary action for a classification.
func RecoveryFor(c Classification) Recovery {
	if c.Source == SourceStaleUI {
		return RecoveryReset
	}
	return RecoveryRetry
}

func unknownClassification() Classification {
	return Classification{
		Source:      SourceUnknown,
		Kind:        Unknown,
		KindName:    Unknown.String(),
		UserMessage: userMessages[SourceUnknown],
	}
}

// isNilError catches typed nil pointers stored in an error interface.
func isNilError(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe == nil
}
