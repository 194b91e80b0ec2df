package speech

import (
	"context"
	"errors"
	"net"
)

// Failure sentinels used to classify a failed Result.
var (
	ErrAuthFailed      = errors.New("speech: no token obtainable")
	ErrSynthesisFailed = errors.New("speech: no audio produced")
	ErrTimeout         = errors.New("speech: deadline exceeded")
	ErrTransport       = errors.New("speech: transport error")
	ErrCanceled        = errors.New("speech: canceled")
)

// Outcome classifies how a synthesis call ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAuthFailure
	OutcomeSynthesisFailure
	OutcomeTimeout
	OutcomeTransportError
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthFailure:
		return "auth_failure"
	case OutcomeSynthesisFailure:
		return "synthesis_failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is what every synthesis call returns. On failure Audio and
// ContainerFormat are empty and Err carries the cause.
type Result struct {
	Outcome         Outcome
	ContainerFormat string
	Audio           []byte
	Err             error
}

// OK reports whether audio was produced.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Success builds a successful result.
func Success(container string, audio []byte) Result {
	return Result{Outcome: OutcomeSuccess, ContainerFormat: container, Audio: audio}
}

// Failure builds a failed result of the given kind.
func Failure(outcome Outcome, err error) Result {
	return Result{Outcome: outcome, Err: err}
}

// FailureFromError maps an error returned by a network exchange to a Result.
// Errors that already wrap one of the sentinels keep their classification.
func FailureFromError(err error) Result {
	return Failure(Classify(err), err)
}

// Classify maps an error to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case isNetTimeout(err):
		return OutcomeTimeout
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrAuthFailed):
		return OutcomeAuthFailure
	case errors.Is(err, ErrSynthesisFailed):
		return OutcomeSynthesisFailure
	default:
		return OutcomeTransportError
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
