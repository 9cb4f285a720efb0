// app/app.go
// Package app is the shared entry point of the three role daemons.
package app

import (
	"fmt"
	"os"

	"xdptriangle/consts"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	constsPath  string
	object      string
	pidfile     string
	logLevel    string
	metricsAddr string
	tui         bool
	interactive bool
}

// Main runs role's daemon and exits non-zero when it fails.
func Main(role consts.Role) {
	if err := NewCommand(role).Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand(role consts.Role) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:          role.String(),
		Short:        fmt.Sprintf("Run the %s node of the XDP telemetry triangle", role),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := log.ParseLevel(o.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			err = run(cmd.Context(), role, o)
			if err != nil {
				log.WithError(err).WithField("role", role.String()).Error("exiting")
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "../config.toml", "per-host settings file")
	f.StringVar(&o.constsPath, "consts", "../const.toml", "shared constant image the objects were built from")
	f.StringVar(&o.object, "object", "", "XDP object to load (default <binary dir>/bpf/"+role.ProgramName()+".o)")
	f.StringVar(&o.pidfile, "pidfile", "/var/run/"+role.String()+".pid", "PID file path")
	f.StringVar(&o.logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	f.BoolVar(&o.tui, "tui", false, "show the terminal dashboard")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "pick the interface from a list")
	return cmd
}
