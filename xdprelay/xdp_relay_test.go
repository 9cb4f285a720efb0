// xdprelay/xdp_relay_test.go
package xdprelay_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"xdptriangle/consts"
	"xdptriangle/fastpath"
	"xdptriangle/fastpath/fastpathtest"
	"xdptriangle/xdprelay"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
)

type modelRig struct {
	img   consts.Image
	prog  *fastpath.Program
	relay xdprelay.Relay
	dump  *bytes.Buffer
	done  chan error
}

func startModel(t *testing.T, feed chan<- xdprelay.Snapshot) *modelRig {
	t.Helper()
	img := fastpathtest.Image()
	logger, _ := test.NewNullLogger()
	prog, err := fastpath.NewProgram(img, logger)
	if err != nil {
		t.Fatal(err)
	}
	rig := &modelRig{img: img, prog: prog, dump: &bytes.Buffer{}, done: make(chan error, 1)}
	rig.relay = xdprelay.NewModel(xdprelay.Options{
		Role:          consts.Hardworker,
		Image:         img,
		Dump:          rig.dump,
		Log:           logger,
		Feed:          feed,
		FirstWait:     50 * time.Millisecond,
		Wait:          10 * time.Millisecond,
		StatsInterval: 10 * time.Millisecond,
	}, prog)
	go func() { rig.done <- rig.relay.Run(context.Background()) }()
	t.Cleanup(func() {
		rig.relay.Shutdown()
		<-rig.done
		rig.relay.Close()
	})
	return rig
}

func (r *modelRig) send(t *testing.T, payload byte) {
	t.Helper()
	f := fastpathtest.MustBuild(t, fastpathtest.Marked(r.img).WithPayload(payload, r.img.Data.Size))
	if act := r.prog.Run(consts.Hardworker, f); act != fastpath.TX {
		t.Fatalf("hardworker returned %s", act)
	}
}

// records is the relay's counters without guard_fail. An edge-triggered
// wakeup can find the ring already drained, so guard_fail may tick at any time.
func (r *modelRig) records() xdprelay.CounterSnapshot {
	c := r.relay.Counters()
	c.GuardFail = 0
	return c
}

func TestConsumerCountsIdenticalSnapshots(t *testing.T) {
	RegisterTestingT(t)
	rig := startModel(t, nil)

	for i := 0; i < 3; i++ {
		rig.send(t, 0xaa)
	}

	Eventually(rig.records).Should(Equal(xdprelay.CounterSnapshot{Success: 3}))
	Expect(rig.relay.Reference()).To(Equal(bytes.Repeat([]byte{0xaa}, rig.img.Data.Size)))
	Expect(rig.dump.String()).To(ContainSubstring("aa aa aa aa"))
}

func TestConsumerFlagsDifferingSnapshots(t *testing.T) {
	RegisterTestingT(t)
	rig := startModel(t, nil)

	rig.send(t, 0xaa)
	Eventually(func() uint64 { return rig.relay.Counters().Success }).Should(BeEquivalentTo(1))
	rig.send(t, 0xbb)
	rig.send(t, 0xaa)

	Eventually(rig.records).Should(Equal(xdprelay.CounterSnapshot{Success: 2, MatchFail: 1}))
	Expect(rig.relay.Reference()[0]).To(Equal(byte(0xaa)))
}

func TestResetCounters(t *testing.T) {
	RegisterTestingT(t)
	rig := startModel(t, nil)

	rig.send(t, 0xaa)
	rig.send(t, 0xaa)
	Eventually(func() uint64 { return rig.relay.Counters().Success }).Should(BeEquivalentTo(2))

	Expect(rig.relay.ResetCounters().Success).To(BeEquivalentTo(2))
	Expect(rig.records()).To(Equal(xdprelay.CounterSnapshot{}))

	// the reference survives a reset
	rig.send(t, 0xaa)
	Eventually(rig.records).Should(Equal(xdprelay.CounterSnapshot{Success: 1}))
}

func TestShutdown(t *testing.T) {
	RegisterTestingT(t)
	rig := startModel(t, nil)

	Expect(rig.relay.Shutdown()).To(Succeed())
	var err error
	Eventually(rig.done).Should(Receive(&err))
	Expect(err).NotTo(HaveOccurred())
	rig.done <- nil // for cleanup

	Expect(rig.relay.Shutdown()).To(MatchError(xdprelay.ErrShutdownUnavailable))
}

func TestRunStopsWithContext(t *testing.T) {
	RegisterTestingT(t)
	img := fastpathtest.Image()
	logger, _ := test.NewNullLogger()
	prog, err := fastpath.NewProgram(img, logger)
	Expect(err).NotTo(HaveOccurred())

	r := xdprelay.NewModel(xdprelay.Options{Role: consts.Hardworker, Image: img, Log: logger}, prog)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	// the default first wait is long; the interrupt must cut it short
	Eventually(done, time.Second).Should(Receive(BeNil()))
}

func TestFeedCarriesStats(t *testing.T) {
	RegisterTestingT(t)
	feed := make(chan xdprelay.Snapshot, 16)
	rig := startModel(t, feed)

	rig.send(t, 0xaa)
	Eventually(feed).Should(Receive(WithTransform(func(s xdprelay.Snapshot) uint64 {
		return s.Stats[fastpath.StatSnapshot]
	}, BeEquivalentTo(1))))
}

func TestCollector(t *testing.T) {
	RegisterTestingT(t)
	rig := startModel(t, nil)
	rig.send(t, 0xaa)
	Eventually(func() uint64 { return rig.relay.Counters().Success }).Should(BeEquivalentTo(1))

	c := xdprelay.NewCollector(consts.Hardworker, rig.relay)
	Expect(testutil.CollectAndCount(c)).To(Equal(4 + 1 + int(fastpath.NumStats)))
	Expect(testutil.CollectAndCount(c, "xdptriangle_program_events_total")).To(Equal(int(fastpath.NumStats)))
}

// fakeSource serves queued records and reports ready whenever asked.
type fakeSource struct {
	mu   sync.Mutex
	recs [][]byte
}

func (s *fakeSource) Wait(time.Duration) (bool, error) {
	time.Sleep(time.Millisecond)
	return true, nil
}

func (s *fakeSource) Next(fn func([]byte)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recs) == 0 {
		return false, nil
	}
	fn(s.recs[0])
	s.recs = s.recs[1:]
	return true, nil
}

func TestConsumerAlignAndGuard(t *testing.T) {
	RegisterTestingT(t)
	logger, _ := test.NewNullLogger()

	src := &fakeSource{recs: [][]byte{
		make([]byte, 8),
		make([]byte, 16),
		make([]byte, 15),
		make([]byte, 16),
	}}
	var counters xdprelay.Counters
	c := &xdprelay.Consumer{Source: src, Size: 16, Counters: &counters, FirstWait: time.Millisecond, Wait: time.Millisecond, Log: logger}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.Run(stop) }()

	Eventually(func() uint64 { return counters.Snapshot().GuardFail }).Should(BeNumerically(">", 0))
	close(stop)
	Eventually(done).Should(Receive(BeNil()))

	got := counters.Snapshot()
	Expect(got.Success).To(BeEquivalentTo(2))
	Expect(got.AlignFail).To(BeEquivalentTo(2))
	Expect(got.MatchFail).To(BeZero())
	Expect(got.Records()).To(BeEquivalentTo(4))
	Expect(c.Reference()).To(Equal(make([]byte, 16)))
}
