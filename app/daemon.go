// app/daemon.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xdptriangle/config"
	"xdptriangle/consts"
	"xdptriangle/traffic"
	"xdptriangle/ui"
	"xdptriangle/xdprelay"
	"xdptriangle/xdprelay/utility"

	"github.com/cilium/ebpf/rlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type daemon struct {
	role  consts.Role
	img   consts.Image
	cfg   config.Config
	iface string
	log   *log.Entry

	relay    xdprelay.Relay // nil for a sensor that targets the logger
	sender   *traffic.Sender
	receiver *traffic.Receiver

	cancel context.CancelFunc
}

// attaches reports whether the role loads its XDP program. A sensor only
// needs the source rewrite when its traffic is reflected by the hardworker.
func attaches(role consts.Role, cfg config.Config) bool {
	return role != consts.Sensor || cfg.Target == consts.Hardworker
}

// newSender paces the sensor's stream at the configured freq.
func newSender(cfg config.Config, logger log.FieldLogger) *traffic.Sender {
	return &traffic.Sender{
		Addr:     netip.AddrPortFrom(cfg.IP.Addr(), cfg.Port),
		TOS:      cfg.TOS,
		Size:     cfg.Size,
		Interval: cfg.Interval(),
		Log:      logger,
	}
}

func run(ctx context.Context, role consts.Role, o *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	img, err := consts.Load(o.constsPath)
	if err != nil {
		return err
	}
	file, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	cfg, err := file.Merge(role, img)
	if err != nil {
		return fmt.Errorf("config %q: %w", o.configPath, err)
	}

	d := &daemon{
		role: role,
		img:  img,
		cfg:  cfg,
		log:  log.WithField("role", role.String()),
	}
	if o.interactive {
		d.iface, err = ui.SelectNetworkInterface(fmt.Sprintf("Select the %s interface", role))
	} else {
		d.iface, err = cfg.ResolveInterface()
	}
	if err != nil {
		return err
	}

	pid, err := utility.CreatePidFile(o.pidfile)
	if err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			d.log.WithError(err).Warn("failed to remove pid file")
		}
	}()

	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("remove memlock limit: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.Timeout)
		defer cancelTimeout()
	}
	ctx, d.cancel = context.WithCancel(ctx)
	defer d.cancel()

	var dash *dashboard
	if o.tui {
		dash = newDashboard(d)
		defer dash.close()
	}

	if attaches(role, cfg) {
		opts := xdprelay.Options{
			Role:      role,
			Interface: d.iface,
			Object:    o.object,
			Image:     img,
			Dump:      os.Stdout,
			Log:       d.log,
		}
		if dash != nil {
			opts.Dump = dash.dump
			opts.Feed = dash.feed
		}
		if d.relay, err = xdprelay.New(opts); err != nil {
			return err
		}
		defer d.relay.Close()
	}

	started := time.Now()
	err = d.serve(ctx, o.metricsAddr, dash)

	writeSummary(os.Stdout, d.summary(time.Since(started)))
	return err
}

// serve runs the relay and the role's traffic until ctx ends, then shuts
// everything down.
func (d *daemon) serve(ctx context.Context, metricsAddr string, dash *dashboard) error {
	g, gctx := errgroup.WithContext(ctx)

	if d.relay != nil {
		// the relay is stopped through Shutdown below, not by gctx
		g.Go(func() error { return d.relay.Run(context.WithoutCancel(gctx)) })
	}

	switch d.role {
	case consts.Logger:
		d.receiver = &traffic.Receiver{
			Addr: netip.AddrPortFrom(d.cfg.IP.Addr(), d.cfg.Port),
			TOS:  d.cfg.TOS,
			Size: d.cfg.Size,
			Log:  d.log,
		}
		ln, err := d.receiver.Listen(gctx)
		if err != nil {
			return d.shutdown(g, err)
		}
		g.Go(func() error { return d.receiver.Serve(gctx, ln) })
	case consts.Sensor:
		d.sender = newSender(d.cfg, d.log)
		g.Go(func() error { return d.sender.Run(gctx) })
	}

	if metricsAddr != "" && d.relay != nil {
		g.Go(func() error { return d.serveMetrics(gctx, metricsAddr) })
	}

	if dash != nil {
		g.Go(func() error { return dash.run(gctx) })
	}

	d.log.WithFields(log.Fields{
		"iface":   d.iface,
		"ip":      d.cfg.IP,
		"port":    d.cfg.Port,
		"timeout": d.cfg.Timeout,
	}).Info("running; press Ctrl-C to stop")

	<-gctx.Done()
	return d.shutdown(g, nil)
}

// shutdown stops the consumer, cancels the rest and waits for all of it.
func (d *daemon) shutdown(g *errgroup.Group, cause error) error {
	d.log.Info("shutting down")
	d.cancel()

	var shutdownErr error
	if d.relay != nil {
		if shutdownErr = d.relay.Shutdown(); shutdownErr != nil {
			d.log.WithError(shutdownErr).Error("failed to signal the consumer")
		}
	}
	return errors.Join(cause, g.Wait(), shutdownErr)
}

func (d *daemon) serveMetrics(ctx context.Context, addr string) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		xdprelay.NewCollector(d.role, d.relay),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	d.log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (d *daemon) summary(elapsed time.Duration) summary {
	s := summary{Role: d.role, Iface: d.iface, Elapsed: elapsed}
	if d.relay != nil {
		c := d.relay.Counters()
		s.Counters = &c
		if st, err := d.relay.Stats(); err == nil {
			s.Stats = &st
		}
	}
	if d.sender != nil {
		st := d.sender.Stat()
		s.Sent = &st
	}
	if d.receiver != nil {
		st := d.receiver.Stat()
		s.Received = &st
	}
	if nic, err := utility.GetNICStat(d.iface); err == nil {
		s.NIC = &nic
	}
	return s
}
