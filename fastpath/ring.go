// fastpath/ring.go
package fastpath

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrRingFull is reported when no slot can be reserved.
var ErrRingFull = errors.New("ring_buf full")

type slot struct {
	// seq == pos: free for the producer at pos.
	// seq == pos+1: published (or discarded) for the consumer at pos.
	seq       atomic.Uint64
	discarded bool
	buf       []byte
}

// Ring is a bounded lock-free ring of fixed-size records. Producers reserve
// a slot, fill it in place and submit it; consumers see a record only after
// its submit, in reservation order, and never see a discarded one.
//
// A Ring holds capacity/size records. The kernel ringbuf backing TARGET_MAP
// spends an 8-byte header on every record, so at the default sizes it holds
// one record fewer (15 of 512 bytes in 8 KiB against 16 here).
type Ring struct {
	slots []slot
	mask  uint64
	size  int

	enq atomic.Uint64
	deq atomic.Uint64

	ready chan struct{}
}

// NewRing sizes a ring of capacity bytes holding records of size bytes.
// capacity/size must be a power of two.
func NewRing(capacity, size int) (*Ring, error) {
	if size <= 0 || capacity < size || capacity%size != 0 {
		return nil, fmt.Errorf("ring capacity %d is not a multiple of record size %d", capacity, size)
	}
	n := capacity / size
	if n&(n-1) != 0 {
		return nil, fmt.Errorf("ring of %d records: count must be a power of two", n)
	}

	r := &Ring{
		slots: make([]slot, n),
		mask:  uint64(n - 1),
		size:  size,
		ready: make(chan struct{}, 1),
	}
	backing := make([]byte, capacity)
	for i := range r.slots {
		r.slots[i].buf = backing[i*size : (i+1)*size : (i+1)*size]
		r.slots[i].seq.Store(uint64(i))
	}
	return r, nil
}

// RecordSize is the byte length of every record.
func (r *Ring) RecordSize() int { return r.size }

// Slots is the number of records the ring holds.
func (r *Ring) Slots() int { return len(r.slots) }

// Len is the number of reserved or published records not yet consumed.
func (r *Ring) Len() int { return int(r.enq.Load() - r.deq.Load()) }

// Ready is signalled after a submit. It is edge-triggered: one pending
// signal covers any number of submits.
func (r *Ring) Ready() <-chan struct{} { return r.ready }

// Reserve claims the next slot, or reports false when the ring is full.
func (r *Ring) Reserve() (*Reservation, bool) {
	pos := r.enq.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch dif := int64(seq - pos); {
		case dif == 0:
			if r.enq.CompareAndSwap(pos, pos+1) {
				return &Reservation{r: r, s: s, pos: pos}, true
			}
			pos = r.enq.Load()
		case dif < 0:
			return nil, false
		default:
			pos = r.enq.Load()
		}
	}
}

// Next hands the oldest published record to fn and releases its slot once
// fn returns. fn must not retain the slice. It reports false when no record
// is ready.
func (r *Ring) Next(fn func([]byte)) bool {
	pos := r.deq.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch dif := int64(seq - (pos + 1)); {
		case dif == 0:
			if !r.deq.CompareAndSwap(pos, pos+1) {
				pos = r.deq.Load()
				continue
			}
			skip := s.discarded
			if !skip {
				fn(s.buf)
			}
			s.seq.Store(pos + r.mask + 1)
			if !skip {
				return true
			}
			pos = r.deq.Load()
		case dif < 0:
			return false
		default:
			pos = r.deq.Load()
		}
	}
}

func (r *Ring) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Reservation is a claimed slot. Exactly one of Submit or Discard must be
// called; later calls are no-ops.
type Reservation struct {
	r    *Ring
	s    *slot
	pos  uint64
	done bool
}

// Bytes is the writable record, always RecordSize bytes long.
func (v *Reservation) Bytes() []byte { return v.s.buf }

// Submit publishes the record.
func (v *Reservation) Submit() { v.release(false) }

// Discard gives the slot back without publishing anything.
func (v *Reservation) Discard() { v.release(true) }

func (v *Reservation) release(discard bool) {
	if v.done {
		return
	}
	v.done = true
	v.s.discarded = discard
	v.s.seq.Store(v.pos + 1)
	if !discard {
		v.r.notify()
	}
}
