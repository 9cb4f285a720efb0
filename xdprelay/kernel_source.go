// xdprelay/kernel_source.go
package xdprelay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// KernelSource reads TARGET_MAP. Readiness comes from an edge-triggered
// epoll on the map fd; records are taken through a ringbuf.Reader whose
// deadline is always in the past, so reads never block.
type KernelSource struct {
	// Log takes wakeup failures at debug level. Defaults to the standard logger.
	Log log.FieldLogger

	rd    *ringbuf.Reader
	mapFD int
	epFD  int
	evFD  int // wakes Wait on Interrupt

	events [2]unix.EpollEvent
	rec    ringbuf.Record
}

func NewKernelSource(m *ebpf.Map) (*KernelSource, error) {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return nil, fmt.Errorf("ringbuf reader: %w", err)
	}
	rd.SetDeadline(time.Unix(1, 0))

	s := &KernelSource{Log: log.StandardLogger(), rd: rd, mapFD: m.FD(), epFD: -1, evFD: -1}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *KernelSource) init() error {
	if err := unix.SetNonblock(s.mapFD, true); err != nil {
		return os.NewSyscallError("set O_NONBLOCK on ring fd", err)
	}

	var err error
	if s.epFD, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return os.NewSyscallError("epoll_create1", err)
	}
	if s.evFD, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return os.NewSyscallError("eventfd", err)
	}

	for _, fd := range []int{s.mapFD, s.evFD} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
		if err := unix.EpollCtl(s.epFD, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return os.NewSyscallError("epoll_ctl", err)
		}
	}
	return nil
}

func (s *KernelSource) Wait(timeout time.Duration) (bool, error) {
	n, err := unix.EpollWait(s.epFD, s.events[:], int(timeout.Milliseconds()))
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, os.NewSyscallError("epoll_wait", err)
	}

	ready := false
	for _, ev := range s.events[:n] {
		switch int(ev.Fd) {
		case s.mapFD:
			ready = true
		case s.evFD:
			var buf [8]byte
			if _, err := unix.Read(s.evFD, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
				s.Log.WithError(err).Debug("failed to clear ring wakeup")
			}
		}
	}
	return ready, nil
}

func (s *KernelSource) Next(fn func([]byte)) (bool, error) {
	err := s.rd.ReadInto(&s.rec)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fn(s.rec.RawSample)
	return true, nil
}

func (s *KernelSource) Interrupt() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(s.evFD, one[:]); err != nil {
		s.Log.WithError(err).Debug("failed to wake ring wait")
	}
}

func (s *KernelSource) Close() error {
	var errs []error
	for _, fd := range []*int{&s.evFD, &s.epFD} {
		if *fd >= 0 {
			errs = append(errs, unix.Close(*fd))
			*fd = -1
		}
	}
	if s.rd != nil {
		errs = append(errs, s.rd.Close())
	}
	return errors.Join(errs...)
}
