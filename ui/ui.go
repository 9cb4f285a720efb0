// ui/ui.go
// Package ui provides the --tui dashboard: the system log, a per-second
// snapshot feed, and the consumer and program counters, using tview.
package ui

import (
	"fmt"
	"strings"

	"xdptriangle/fastpath"
	"xdptriangle/xdprelay"

	"github.com/rivo/tview"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const MaxLines = 100 // keep the last 100 entries, exported

// ChannelWriter funnels log output into a text pane.
type ChannelWriter struct{ Ch chan string }

// Write implements the io.Writer interface for our channel.
func (w ChannelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.Ch <- msg
	return len(p), nil
}

// SetupUI creates and configures the tview application, views, and layout.
// It returns the application, the root layout, the system log view, the
// snapshot feed view, the consumer counter view, the program stats view,
// and the command input.
func SetupUI(title string) (
	*tview.Application,
	*tview.Flex,
	*tview.TextView,
	*tview.TextView,
	*tview.TextView,
	*tview.TextView,
	*tview.InputField,
) {
	app := tview.NewApplication()

	sysView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { app.Draw() })
	sysView.SetBorder(true).SetTitle(fmt.Sprintf(" System Log [%s] ", title))

	feedView := tview.NewTextView().
		SetScrollable(true).
		SetChangedFunc(func() { app.Draw() })
	feedView.SetBorder(true).SetTitle(" Snapshots ")

	recordsView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetChangedFunc(func() { app.Draw() })
	recordsView.SetBorder(true).SetTitle(" Ring records ")

	statsView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetChangedFunc(func() { app.Draw() })
	statsView.SetBorder(true).SetTitle(" Program stats ")

	input := tview.NewInputField().
		SetLabel("Command: ").
		SetPlaceholder("help").
		SetFieldWidth(0)

	bottomFlex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(recordsView, 0, 2, false).
		AddItem(statsView, 0, 2, false).
		AddItem(input, 0, 2, true)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(sysView, 0, 2, false).
		AddItem(feedView, 0, 4, false).
		AddItem(bottomFlex, 5, 1, true)

	return app, layout, sysView, feedView, recordsView, statsView, input
}

// PumpTextview reads lines from a channel and updates a tview.TextView, keeping only MaxLines.
func PumpTextview(app *tview.Application, view *tview.TextView, ch <-chan string, buffer *[]string) {
	for line := range ch {
		*buffer = append(*buffer, line)
		if len(*buffer) > MaxLines {
			*buffer = (*buffer)[1:]
		}
		app.QueueUpdateDraw(func() {
			view.SetText(strings.Join(*buffer, "\n"))
			view.ScrollToEnd()
		})
	}
}

// PumpSnapshots renders every relay snapshot: one feed line with the
// growth since the previous one, plus the running totals.
func PumpSnapshots(app *tview.Application, records, stats *tview.TextView, lines chan<- string, ch <-chan xdprelay.Snapshot) {
	p := message.NewPrinter(language.English)
	var prev xdprelay.Snapshot
	for s := range ch {
		lines <- FormatSnapshotLine(p, s, prev)
		prev = s
		app.QueueUpdateDraw(func() {
			records.SetText(p.Sprintf("ok %d  mismatch %d\nlen %d  empty %d",
				s.Counters.Success, s.Counters.MatchFail, s.Counters.AlignFail, s.Counters.GuardFail))
			stats.SetText(p.Sprintf("match %d  pass %d\nfull %d  bad %d",
				s.Stats[fastpath.StatMatch], s.Stats[fastpath.StatPassThrough],
				s.Stats[fastpath.StatRingFull], s.Stats[fastpath.StatSnapshotFail]))
		})
	}
}
