// app/tui.go
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"xdptriangle/ui"
	"xdptriangle/xdprelay"
	"xdptriangle/xdprelay/utility"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	log "github.com/sirupsen/logrus"
)

// dashboard owns the --tui views and the channels that feed them.
type dashboard struct {
	d *daemon

	app    *tview.Application
	layout *tview.Flex
	input  *tview.InputField

	sysChan  chan string
	feedChan chan string
	feed     chan xdprelay.Snapshot
	dump     ui.ChannelWriter
}

func newDashboard(d *daemon) *dashboard {
	b := &dashboard{
		d:        d,
		sysChan:  make(chan string, 200),
		feedChan: make(chan string, 200),
		feed:     make(chan xdprelay.Snapshot, 16),
	}
	b.dump = ui.ChannelWriter{Ch: b.feedChan}

	app, layout, sysView, feedView, recordsView, statsView, input := ui.SetupUI(d.role.String())
	b.app, b.layout, b.input = app, layout, input

	// logrus writes into the System Log pane while the dashboard is up
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	log.SetOutput(ui.ChannelWriter{Ch: b.sysChan})

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		b.sysChan <- d.command(input.GetText())
		input.SetText("")
		app.SetFocus(input)
	})

	var sysLines, feedLines []string
	go ui.PumpTextview(app, sysView, b.sysChan, &sysLines)
	go ui.PumpTextview(app, feedView, b.feedChan, &feedLines)
	go ui.PumpSnapshots(app, recordsView, statsView, b.feedChan, b.feed)
	return b
}

// run blocks in the tview event loop. Leaving the dashboard stops the daemon.
func (b *dashboard) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.app.Stop()
	}()
	err := b.app.SetRoot(b.layout, true).SetFocus(b.input).Run()
	b.d.cancel()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (b *dashboard) close() {
	log.SetOutput(os.Stderr)
}

// command executes one operator command and returns the reply line.
func (d *daemon) command(text string) string {
	cmd, err := utility.ParseCommand(text)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v; %s", err, utility.Help)
	}

	switch cmd.Op {
	case utility.OpStats:
		if d.relay == nil {
			return "[SYS] no XDP program attached"
		}
		st, err := d.relay.Stats()
		if err != nil {
			return fmt.Sprintf("[ERROR] read program stats: %v", err)
		}
		return fmt.Sprintf("[SYS] %s | %s", d.relay.Counters(), st)
	case utility.OpReset:
		if d.relay == nil {
			return "[SYS] no XDP program attached"
		}
		return fmt.Sprintf("[SYS] counters reset, were %s", d.relay.ResetCounters())
	case utility.OpDump:
		if d.relay == nil {
			return "[SYS] no XDP program attached"
		}
		ref := d.relay.Reference()
		if ref == nil {
			return "[SYS] no snapshot yet"
		}
		return "[SYS] reference snapshot\n" + hex.Dump(ref)
	case utility.OpNIC:
		nic, err := utility.GetNICStat(d.iface)
		if err != nil {
			return fmt.Sprintf("[ERROR] %v", err)
		}
		return "[SYS] " + nic.String()
	case utility.OpShutdown:
		d.cancel()
		return "[SYS] shutting down"
	}
	return "[SYS] " + utility.Help
}
