package actor

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAID is returned when an actor identifier fails validation:
// an empty bare part, or an explicit resource part that is empty.
var ErrInvalidAID = errors.New("actor: invalid aid")

// aidSep separates the bare role from the disambiguating resource in an
// AID string of the form "bare[/resource]".
const aidSep = "/"

// ParseAID splits an AID into its bare role and optional resource.
// ok is false when aid fails validation: empty bare, or a resource part
// present but empty (a trailing "/" with nothing after it).
func ParseAID(aid string) (bare, resource string, ok bool) {
	if aid == "" {
		return "", "", false
	}
	idx := strings.Index(aid, aidSep)
	if idx < 0 {
		return aid, "", true
	}
	bare = aid[:idx]
	resource = aid[idx+len(aidSep):]
	if bare == "" || resource == "" {
		return "", "", false
	}
	return bare, resource, true
}

// ValidAID reports whether aid parses as a well-formed identifier.
func ValidAID(aid string) bool {
	_, _, ok := ParseAID(aid)
	return ok
}

// BareOf returns the bare role of aid, ignoring any resource suffix. It
// does not validate aid; callers that need validation should call
// ParseAID.
func BareOf(aid string) string {
	if idx := strings.Index(aid, aidSep); idx >= 0 {
		return aid[:idx]
	}
	return aid
}

// IsBareEqual reports whether a and b share the same bare role,
// regardless of resource.
func IsBareEqual(a, b string) bool {
	return BareOf(a) == BareOf(b)
}

// qualify returns aid unchanged if it already carries a resource part, or
// aid+"/"+a freshly generated resource otherwise: a bare id passed to
// AddActor gets its resource auto-assigned from a UUID.
func qualify(aid string) string {
	if strings.Contains(aid, aidSep) {
		return aid
	}
	return aid + aidSep + uuid.NewString()
}

// newContainerID mints a container NetInfo identifier. Containers need a
// globally-unique, human-opaque id with no ordering requirement, so this
// uses google/uuid directly rather than the correlation-id scheme below.
func newContainerID() string {
	return uuid.NewString()
}

var correlationCounter atomic.Uint64

// newCorrelationID mints a request/correlation id. Unlike AID resources
// or container ids, correlation ids are purely process-local and
// short-lived (retired the moment a request completes), so a cheap
// monotonic-plus-timestamp scheme is preferable to minting a UUID per
// send on the hot path.
func newCorrelationID() string {
	n := correlationCounter.Add(1)
	return time.Now().UTC().Format("150405.000000000") + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0'+n%10)
		n /= 10
	}
	return string(buf[i:])
}

