// xdprelay/metrics.go
package xdprelay

import (
	"xdptriangle/consts"
	"xdptriangle/fastpath"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a relay's counters on scrape.
type Collector struct {
	relay Relay

	records *prometheus.Desc
	program *prometheus.Desc
	up      *prometheus.Desc
}

func NewCollector(role consts.Role, r Relay) *Collector {
	labels := prometheus.Labels{"role": role.String()}
	return &Collector{
		relay: r,
		records: prometheus.NewDesc("xdptriangle_consumer_records_total",
			"Ring records seen by the consumer, by outcome.", []string{"outcome"}, labels),
		program: prometheus.NewDesc("xdptriangle_program_events_total",
			"XDP program outcomes summed over CPUs.", []string{"stat"}, labels),
		up: prometheus.NewDesc("xdptriangle_program_stats_up",
			"Whether the last read of the program stats succeeded.", nil, labels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.program
	ch <- c.up
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cs := c.relay.Counters()
	for outcome, v := range map[string]uint64{
		"success":    cs.Success,
		"match_fail": cs.MatchFail,
		"align_fail": cs.AlignFail,
		"guard_fail": cs.GuardFail,
	} {
		ch <- prometheus.MustNewConstMetric(c.records, prometheus.CounterValue, float64(v), outcome)
	}

	st, err := c.relay.Stats()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	for k := fastpath.Stat(0); k < fastpath.NumStats; k++ {
		ch <- prometheus.MustNewConstMetric(c.program, prometheus.CounterValue, float64(st[k]), k.String())
	}
}
