package actor

import "time"

// Scope classifies where a known actor lives relative to this container.
type Scope uint8

const (
	// ScopeProcess actors are hosted directly by this container.
	ScopeProcess Scope = iota
	// ScopeLocal actors are hosted by another container on this host.
	ScopeLocal
	// ScopeRemote actors are hosted by a container on a different host.
	ScopeRemote
)

// String renders a Scope the way logs and error contexts expect it.
func (s Scope) String() string {
	switch s {
	case ScopeProcess:
		return "PROCESS"
	case ScopeLocal:
		return "LOCAL"
	case ScopeRemote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// MessageKind tags a message with the pipeline station middleware runs
// at.
type MessageKind uint8

const (
	ReqOut MessageKind = iota
	ReqIn
	ResOut
	ResIn
)

func (k MessageKind) String() string {
	switch k {
	case ReqOut:
		return "REQ_OUT"
	case ReqIn:
		return "REQ_IN"
	case ResOut:
		return "RES_OUT"
	case ResIn:
		return "RES_IN"
	default:
		return "UNKNOWN"
	}
}

// NetInfo describes a container's network identity.
type NetInfo struct {
	ID   string
	IP   string
	PID  int
	Port int
}

// ContainerRef identifies the container hosting an actor, without
// carrying the full Container value (which owns unexported runtime
// state such as the registry and correlation table).
type ContainerRef struct {
	ID      string
	NetInfo NetInfo
}

// ErrInfo is the structured error surfaced to callers: one of TECHERR,
// TIMEOUT, NOTFOUND, DROPPED.
type ErrInfo struct {
	Code  string
	Cause error
}

func (e *ErrInfo) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Code + ": " + e.Cause.Error()
	}
	return e.Code
}

func (e *ErrInfo) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

const (
	CodeTechErr  = "TECHERR"
	CodeTimeout  = "TIMEOUT"
	CodeNotFound = "NOTFOUND"
	CodeDropped  = "DROPPED"
)

// Request is the wire and in-process request shape.
type Request struct {
	ID      string
	From    string
	To      string
	Content any
	Headers map[string]any
	Date    int64 // ms since epoch
	Timeout time.Duration
	CB      bool
}

// deadline is the absolute point past which this request is expired.
// Date + Timeout is fixed at send time and never shifts across retries.
func (r *Request) deadline() time.Time {
	return time.UnixMilli(r.Date).Add(r.Timeout)
}

func (r *Request) expired(now time.Time) bool {
	return !now.Before(r.deadline())
}

// Response is the wire and in-process response shape.
type Response struct {
	ID      string
	From    string
	To      string
	Err     *ErrInfo
	Content any
	Headers map[string]any
	Date    int64
}

// ReplyFunc is exposed to REQ_IN and RES_OUT middleware stations (and to
// actor handlers via Context.Reply): an explicit parameter rather than a
// mutated field on the message.
type ReplyFunc func(errInfo *ErrInfo, content any, headers map[string]any)

// SendOverride collects the normalized shape of Send's optional
// timeout/callback/headers argument.
type SendOverride struct {
	Timeout time.Duration
	CB      func(err *ErrInfo, res *Response)
	Headers map[string]any
}
