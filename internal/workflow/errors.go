package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/engage-agent/internal/driver"
)

// Kind classifies stage failures into a closed set, so callers can branch on
// failure class instead of matching message text.
type Kind int

const (
	// KindNetwork covers navigation and transport failures.
	KindNetwork Kind = iota + 1
	// KindElementNotFound covers elements absent from the rendered page.
	KindElementNotFound
	// KindTimeout covers waits that expired before their condition held.
	KindTimeout
	// KindAssertionFailed covers pages in an unexpected state (wrong text,
	// action did not apply, no matching entry).
	KindAssertionFailed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindElementNotFound:
		return "element_not_found"
	case KindTimeout:
		return "timeout"
	case KindAssertionFailed:
		return "assertion_failed"
	default:
		return "unknown"
	}
}

// StageError is the failure of one workflow stage, carrying the stage name
// and failure kind as structured context.
type StageError struct {
	Stage   string
	Kind    Kind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stage %s: %s (%s): %v", e.Stage, e.Message, e.Kind, e.Cause)
	}
	return fmt.Sprintf("stage %s: %s (%s)", e.Stage, e.Message, e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// classify maps a driver error to a failure kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, driver.ErrNotFound):
		return KindElementNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindNetwork
	}
}

// stageErr builds a StageError classified from the underlying driver error.
func stageErr(stage, message string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: classify(cause), Message: message, Cause: cause}
}

// assertErr builds an assertion-kind StageError with no underlying cause.
func assertErr(stage, message string) *StageError {
	return &StageError{Stage: stage, Kind: KindAssertionFailed, Message: message}
}
