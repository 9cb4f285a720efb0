// xdprelay/xdp_relay_methods.go
package xdprelay

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"xdptriangle/fastpath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func (r *relay) Run(ctx context.Context) error {
	defer r.goneOnce.Do(func() { close(r.gone) })

	g, gctx := errgroup.WithContext(ctx)

	if r.consumer != nil {
		g.Go(func() error {
			defer r.goneOnce.Do(func() { close(r.gone) })
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			r.log.WithFields(log.Fields{
				"pid": os.Getpid(),
				"tid": unix.Gettid(),
			}).Info("ring consumer started")
			return r.consumer.Run(r.stopping)
		})
	}

	g.Go(func() error { return r.pollStats(gctx) })

	g.Go(func() error {
		select {
		case <-gctx.Done():
			r.stop()
		case <-r.stopping:
		}
		return nil
	})

	return g.Wait()
}

func (r *relay) Shutdown() error {
	select {
	case <-r.gone:
		return ErrShutdownUnavailable
	default:
	}
	r.stop()
	return nil
}

func (r *relay) stop() {
	r.stopOnce.Do(func() {
		close(r.stopping)
		if i, ok := r.src.(interrupter); ok {
			i.Interrupt()
		}
	})
}

// pollStats publishes a snapshot every interval and logs when the program
// reported a full ring or an unreadable snapshot window since the last tick.
func (r *relay) pollStats(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.StatsInterval)
	defer ticker.Stop()

	var prev fastpath.StatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopping:
			return nil
		case now := <-ticker.C:
			st, err := r.Stats()
			if err != nil {
				r.log.WithError(err).Warn("failed to read program stats")
				continue
			}
			d := st.Sub(prev)
			prev = st
			if n := d[fastpath.StatRingFull]; n > 0 {
				r.log.WithField("dropped", n).Warn("ring_buf full")
			}
			if n := d[fastpath.StatSnapshotFail]; n > 0 {
				r.log.WithField("discarded", n).Warn("snapshot window out of bounds")
			}

			if r.opts.Feed == nil {
				continue
			}
			select {
			case r.opts.Feed <- Snapshot{At: now, Counters: r.Counters(), Stats: st}:
			default:
			}
		}
	}
}

func (r *relay) Counters() CounterSnapshot      { return r.counters.Snapshot() }
func (r *relay) ResetCounters() CounterSnapshot { return r.counters.Reset() }

func (r *relay) Reference() []byte {
	if r.consumer == nil {
		return nil
	}
	return r.consumer.Reference()
}

func (r *relay) Stats() (fastpath.StatsSnapshot, error) { return r.stats() }

func (r *relay) Close() {
	if c, ok := r.src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.log.WithError(err).Warn("failed to close ring source")
		}
	}
	if r.lnk != nil {
		if err := r.lnk.Close(); err != nil {
			r.log.WithError(err).Warn("failed to detach XDP program")
		}
	}
	if r.coll != nil {
		r.coll.Close()
	}
}
