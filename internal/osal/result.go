package osal

import (
	"errors"

	"github.com/zboralski/pteosal/internal/kernel"
)

// Result is the status the threads layer sees for every operation.
// Operations return it as an error; a nil error is OK.
type Result int

const (
	OK Result = iota
	NoResources
	GeneralFailure
	Timeout
	Interrupted
	InvalidParam
)

var resultNames = [...]string{
	OK:             "ok",
	NoResources:    "no resources",
	GeneralFailure: "general failure",
	Timeout:        "timeout",
	Interrupted:    "interrupted",
	InvalidParam:   "invalid parameter",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown result"
}

func (r Result) Error() string {
	return "osal: " + r.String()
}

// Sentinel errors for errors.Is.
var (
	ErrNoResources    error = NoResources
	ErrGeneralFailure error = GeneralFailure
	ErrTimeout        error = Timeout
	ErrInterrupted    error = Interrupted
	ErrInvalidParam   error = InvalidParam
)

// ResultOf recovers the result code carried by err. Errors that carry no
// Result map to GeneralFailure.
func ResultOf(err error) Result {
	if err == nil {
		return OK
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return GeneralFailure
}

// timedResult maps a failed timed wait: expiry is Timeout, anything else a
// general failure.
func timedResult(err error) Result {
	var en kernel.Errno
	if errors.As(err, &en) && en.Timeout() {
		return Timeout
	}
	return GeneralFailure
}
