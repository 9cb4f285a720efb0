// traffic/receiver.go
package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync/atomic"

	"xdptriangle/xdprelay/utility"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Receiver accepts streams on Addr and reads them in blocks of Size bytes.
// A full block of Payload bytes is a success; anything else, including a
// trailing partial block, is a failure.
type Receiver struct {
	Addr netip.AddrPort
	TOS  uint8
	Size int
	Log  log.FieldLogger

	success atomic.Uint64
	fail    atomic.Uint64
}

type ReceiverStat struct {
	Success, Fail uint64
}

func (r *Receiver) Stat() ReceiverStat {
	return ReceiverStat{Success: r.success.Load(), Fail: r.fail.Load()}
}

// Listen binds Addr with IP_TOS set so replies carry the mark.
func (r *Receiver) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{Control: withTOS(r.TOS)}
	ln, err := lc.Listen(ctx, "tcp4", r.Addr.String())
	if errors.Is(err, unix.EADDRINUSE) {
		if pids, perr := utility.GetPIDsByPort(uint32(r.Addr.Port())); perr == nil && len(pids) > 0 {
			return nil, fmt.Errorf("port %d held by pid %v: %w", r.Addr.Port(), pids, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", r.Addr, err)
	}
	return ln, nil
}

// Serve handles connections until ctx is done, then closes ln and waits for
// every connection to finish.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		return nil
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			stopped := ctx.Err() != nil
			cancel()
			g.Wait()
			if stopped {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		r.Log.WithField("peer", conn.RemoteAddr()).Debug("connection accepted")
		g.Go(func() error {
			r.handle(gctx, conn)
			return nil
		})
	}
}

func (r *Receiver) handle(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, r.Size)
	for {
		_, err := io.ReadFull(conn, buf)
		switch {
		case err == nil:
			if isPayload(buf) {
				r.success.Add(1)
			} else {
				r.fail.Add(1)
			}
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.fail.Add(1)
			return
		default:
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				r.Log.WithError(err).Debug("connection closed")
			}
			return
		}
	}
}

func isPayload(b []byte) bool {
	for _, c := range b {
		if c != Payload {
			return false
		}
	}
	return true
}
