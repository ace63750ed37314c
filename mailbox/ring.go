package mailbox

import (
	"sync/atomic"
)

// ringCell is one slot of a Ring: a sequence number plus the stored
// value, the pair Vyukov's algorithm uses to coordinate producers and
// consumers without a lock.
type ringCell[T any] struct {
	seq atomic.Uint64
	val atomic.Pointer[T]
}

// Ring is a lock-free bounded MPMC queue (Dmitry Vyukov's algorithm),
// the fixed-capacity building block SegmentedQueue chains to grow
// beyond one Ring's capacity.
//
// Coordination is by per-cell sequence number rather than a lock: a
// producer CASes tail forward and stamps the cell it claimed, a
// consumer CASes head forward and reads the cell it claimed; a
// mismatched sequence number tells either side the buffer is full or
// empty without touching a shared counter.
type Ring[T any] struct {
	mask uint64 // capacity-1; capacity is always a power of two
	buf  []ringCell[T]
	head atomic.Uint64
	tail atomic.Uint64
}

// NewRing creates a ring rounded up to the next power of two (minimum
// 2), with every cell's sequence number seeded to its own index.
func NewRing[T any](capacity uint64) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	c := uint64(1)
	for c < capacity {
		c <<= 1
	}
	r := &Ring[T]{
		mask: c - 1,
		buf:  make([]ringCell[T], c),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Capacity returns the ring's actual (rounded-up) capacity.
func (r *Ring[T]) Capacity() uint64 { return uint64(len(r.buf)) }

// Enqueue claims the next cell via CAS on tail and stores v, returning
// false without blocking if the ring is full.
func (r *Ring[T]) Enqueue(v *T) bool {
	for {
		tail := r.tail.Load()
		cell := &r.buf[tail&r.mask]
		seq := cell.seq.Load()
		dif := int64(seq) - int64(tail)
		if dif == 0 {
			if r.tail.CompareAndSwap(tail, tail+1) {
				cell.val.Store(v)
				cell.seq.Store(tail + 1)
				return true
			}
		} else if dif < 0 {
			return false
		}
	}
}

// Dequeue claims the next cell via CAS on head and returns its value,
// returning (nil, false) without blocking if the ring is empty.
func (r *Ring[T]) Dequeue() (*T, bool) {
	for {
		head := r.head.Load()
		cell := &r.buf[head&r.mask]
		seq := cell.seq.Load()
		dif := int64(seq) - int64(head+1)
		if dif == 0 {
			if r.head.CompareAndSwap(head, head+1) {
				v := cell.val.Load()
				cell.val.Store(nil)
				cell.seq.Store(head + r.mask + 1)
				return v, true
			}
		} else if dif < 0 {
			return nil, false
		}
	}
}
