package actor

import "errors"

var (
	// ErrCircuitOpen is the drop cause when the target's circuit breaker
	// rejects a delivery (the request is then retried like any other
	// drop), and the TECHERR cause Send reports to its callback when the
	// container's rate limiter rejects a request.
	ErrCircuitOpen = errors.New("actor: circuit breaker open")
	// ErrNotStarted names the not-started condition. No function in this
	// package returns or logs it.
	ErrNotStarted = errors.New("actor: container not started")
	// ErrAlreadyStarted is returned (and logged) when Start is called on
	// a container that is already started or mid-transition.
	ErrAlreadyStarted = errors.New("actor: container already started")
	// ErrNotRunning is returned (and logged) when Stop is called on a
	// container that is not running.
	ErrNotRunning = errors.New("actor: container not running")
)

// techErr wraps cause as a TECHERR ErrInfo, the code assigned to
// validation and internal errors.
func techErr(cause error) *ErrInfo { return &ErrInfo{Code: CodeTechErr, Cause: cause} }

func timeoutErr() *ErrInfo { return &ErrInfo{Code: CodeTimeout} }

func notFoundErr() *ErrInfo { return &ErrInfo{Code: CodeNotFound} }

func droppedErr(cause error) *ErrInfo { return &ErrInfo{Code: CodeDropped, Cause: cause} }

