// traffic/sender.go
package traffic

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sender writes one block of Size Payload bytes per tick to Addr,
// reconnecting when the stream breaks.
type Sender struct {
	Addr netip.AddrPort
	TOS  uint8
	Size int
	// Interval is the gap between two blocks.
	Interval time.Duration
	Log      log.FieldLogger

	sent   atomic.Uint64
	failed atomic.Uint64
}

type SenderStat struct {
	Sent, Failed uint64
}

func (s *Sender) Stat() SenderStat {
	return SenderStat{Sent: s.sent.Load(), Failed: s.failed.Load()}
}

// Run returns nil once ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	if s.Interval <= 0 || s.Size <= 0 {
		return fmt.Errorf("sender needs positive interval and size, got %s and %d", s.Interval, s.Size)
	}
	limiter := rate.NewLimiter(rate.Every(s.Interval), 1)
	dialer := net.Dialer{Timeout: 5 * time.Second, Control: withTOS(s.TOS)}
	block := bytes.Repeat([]byte{Payload}, s.Size)

	for {
		conn, err := dialer.DialContext(ctx, "tcp4", s.Addr.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Log.WithError(err).WithField("addr", s.Addr).Warn("connect failed, retrying")
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		s.Log.WithFields(log.Fields{
			"addr":     s.Addr,
			"interval": s.Interval,
		}).Info("TCP connected, sending")

		err = s.pump(ctx, conn, limiter, block)
		conn.Close()
		if ctx.Err() != nil {
			s.Log.Info("TCP sender stopped")
			return nil
		}
		s.Log.WithError(err).Warn("TCP send failed, reconnecting")
	}
}

func (s *Sender) pump(ctx context.Context, conn net.Conn, limiter *rate.Limiter, block []byte) error {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write(block); err != nil {
			s.failed.Add(1)
			return err
		}
		s.sent.Add(1)
	}
}
