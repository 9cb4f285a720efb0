// xdprelay/ring_source.go
package xdprelay

import (
	"time"

	"xdptriangle/fastpath"
)

// RingSource reads the user-space model ring.
type RingSource struct {
	ring *fastpath.Ring
	wake chan struct{}
}

func NewRingSource(r *fastpath.Ring) *RingSource {
	return &RingSource{ring: r, wake: make(chan struct{}, 1)}
}

func (s *RingSource) Wait(timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.ring.Ready():
		return true, nil
	case <-s.wake:
		return false, nil
	case <-t.C:
		return false, nil
	}
}

func (s *RingSource) Next(fn func([]byte)) (bool, error) {
	return s.ring.Next(fn), nil
}

// Interrupt makes a pending or the next Wait return early.
func (s *RingSource) Interrupt() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
