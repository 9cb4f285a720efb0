// traffic/traffic_test.go
package traffic

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

func startReceiver(t *testing.T, size int) (*Receiver, netip.AddrPort, chan error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := &Receiver{
		Addr: netip.MustParseAddrPort("127.0.0.1:0"),
		TOS:  0x68,
		Size: size,
		Log:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := r.Listen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, ln.Addr().(*net.TCPAddr).AddrPort(), done
}

func TestSenderToReceiver(t *testing.T) {
	RegisterTestingT(t)
	logger, _ := test.NewNullLogger()
	r, addr, _ := startReceiver(t, 512)

	s := &Sender{Addr: addr, TOS: 0x68, Size: 512, Interval: 5 * time.Millisecond, Log: logger}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	Eventually(func() uint64 { return r.Stat().Success }).Should(BeNumerically(">=", 5))
	cancel()
	Eventually(done).Should(Receive(BeNil()))

	Expect(s.Stat().Sent).To(BeNumerically(">=", 5))
	Expect(s.Stat().Failed).To(BeZero())
	Expect(r.Stat().Fail).To(BeZero())
}

func TestReceiverCountsBadBlocks(t *testing.T) {
	RegisterTestingT(t)
	r, addr, _ := startReceiver(t, 16)

	conn, err := net.Dial("tcp4", addr.String())
	Expect(err).NotTo(HaveOccurred())

	good := bytes.Repeat([]byte{Payload}, 16)
	bad := bytes.Repeat([]byte{0x55}, 16)
	_, err = conn.Write(append(append(append([]byte{}, good...), bad...), good[:5]...))
	Expect(err).NotTo(HaveOccurred())
	Expect(conn.Close()).To(Succeed())

	// the trailing 5 bytes are a partial block
	Eventually(r.Stat).Should(Equal(ReceiverStat{Success: 1, Fail: 2}))
}

func TestServeStopsWithContext(t *testing.T) {
	RegisterTestingT(t)
	logger, _ := test.NewNullLogger()
	r := &Receiver{Addr: netip.MustParseAddrPort("127.0.0.1:0"), TOS: 0x68, Size: 8, Log: logger}

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := r.Listen(ctx)
	Expect(err).NotTo(HaveOccurred())

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, ln) }()

	// an idle connection must not hold up shutdown
	conn, err := net.Dial("tcp4", ln.Addr().String())
	Expect(err).NotTo(HaveOccurred())
	defer conn.Close()

	cancel()
	Eventually(done, 2*time.Second).Should(Receive(BeNil()))
}

func TestSenderRejectsZeroRate(t *testing.T) {
	RegisterTestingT(t)
	logger, _ := test.NewNullLogger()

	s := &Sender{Addr: netip.MustParseAddrPort("127.0.0.1:9"), Size: 8, Log: logger}
	Expect(s.Run(context.Background())).To(MatchError(ContainSubstring("positive interval")))
}
